package api

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/npyfile/internal/compress"
	"github.com/samcharles93/npyfile/internal/store"
	"github.com/samcharles93/npyfile/pkg/npy"
)

func newTestEcho(t *testing.T) (*echo.Echo, *store.Store) {
	t.Helper()
	st := store.New(memfs.New(), store.Options{Compression: compress.Zstd})
	server := NewServer(Config{Store: st, MaxBodyBytes: 4096})
	e := echo.New()
	server.Register(e)
	return e, st
}

func do(t *testing.T, e *echo.Echo, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func encodeArray(t *testing.T, a *npy.Array, elemSize int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, npy.Encode(&buf, a, elemSize))
	return buf.Bytes()
}

func sample() *npy.Array {
	return &npy.Array{Descr: "<i2", Shape: []int{2, 2}, Data: []byte{1, 0, 2, 0, 3, 0, 4, 0}}
}

func TestPutGetDeleteLifecycle(t *testing.T) {
	t.Parallel()
	e, st := newTestEcho(t)

	rec := do(t, e, http.MethodPut, "/v1/arrays/grid", bytes.NewReader(encodeArray(t, sample(), 2)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	var created ArrayInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "grid", created.Name)
	require.Equal(t, "zstd", created.Compression)

	loaded, err := st.Load("grid")
	require.NoError(t, err)
	require.Equal(t, sample(), loaded)

	rec = do(t, e, http.MethodGet, "/v1/arrays/grid", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var info ArrayInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.Equal(t, "<i2", info.Descr)
	require.Equal(t, []int{2, 2}, info.Shape)
	require.Equal(t, "1.0", info.Version)
	require.Equal(t, formatChecksum(xxhash.Sum64(sample().Data)), info.Checksum)

	rec = do(t, e, http.MethodGet, "/v1/arrays/grid/data", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, echo.MIMEOctetStream, rec.Header().Get(echo.HeaderContentType))
	require.Equal(t, "2,2", rec.Header().Get("X-Npy-Shape"))
	require.Equal(t, sample().Data, rec.Body.Bytes())

	rec = do(t, e, http.MethodDelete, "/v1/arrays/grid", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, e, http.MethodGet, "/v1/arrays/grid", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "not_found_error")
}

func TestListArrays(t *testing.T) {
	t.Parallel()
	e, st := newTestEcho(t)
	require.NoError(t, st.Save("b", sample(), 2))
	require.NoError(t, st.Save("a", &npy.Array{Descr: "|u1", Shape: []int{}, Data: []byte{7}}, 1))

	rec := do(t, e, http.MethodGet, "/v1/arrays", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list ListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data, 2)
	require.Equal(t, "a", list.Data[0].Name)
	require.Equal(t, []int{}, list.Data[0].Shape)
	require.Equal(t, "b", list.Data[1].Name)
}

func TestPutRejectsBadBodies(t *testing.T) {
	t.Parallel()
	e, _ := newTestEcho(t)

	tests := []struct {
		name string
		path string
		body []byte
		code int
	}{
		{"not npy", "/v1/arrays/x", []byte("hello world"), http.StatusBadRequest},
		{"truncated", "/v1/arrays/x", encodeArray(t, sample(), 2)[:20], http.StatusBadRequest},
		{"short data", "/v1/arrays/x?elem_size=4", encodeArray(t, sample(), 2), http.StatusBadRequest},
		{"bad elem size", "/v1/arrays/x?elem_size=zero", encodeArray(t, sample(), 2), http.StatusBadRequest},
		{"unknown descr", "/v1/arrays/x", encodeArray(t, &npy.Array{Descr: "|O8", Shape: []int{1}, Data: make([]byte, 8)}, 8), http.StatusBadRequest},
		{"bad name", "/v1/arrays/..x", encodeArray(t, sample(), 2), http.StatusBadRequest},
		{"too large", "/v1/arrays/x", bytes.Repeat([]byte{0}, 5000), http.StatusRequestEntityTooLarge},
	}
	for _, tc := range tests {
		rec := do(t, e, http.MethodPut, tc.path, bytes.NewReader(tc.body))
		require.Equal(t, tc.code, rec.Code, "%s: %s", tc.name, rec.Body.String())
	}
}

func TestPutWithExplicitElemSize(t *testing.T) {
	t.Parallel()
	e, st := newTestEcho(t)

	arr := &npy.Array{Descr: "|O8", Shape: []int{1}, Data: make([]byte, 8)}
	rec := do(t, e, http.MethodPut, "/v1/arrays/obj?elem_size=8", bytes.NewReader(encodeArray(t, arr, 8)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	got, err := st.Load("obj")
	require.NoError(t, err)
	require.Equal(t, arr, got)
}

func TestCopyArray(t *testing.T) {
	t.Parallel()
	e, st := newTestEcho(t)
	require.NoError(t, st.Save("src", sample(), 2))

	rec := do(t, e, http.MethodPost, "/v1/arrays/src/copy", strings.NewReader(`{"to":"dst"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	got, err := st.Load("dst")
	require.NoError(t, err)
	require.Equal(t, sample(), got)

	rec = do(t, e, http.MethodPost, "/v1/arrays/src/copy", strings.NewReader(`{}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodPost, "/v1/arrays/missing/copy", strings.NewReader(`{"to":"x"}`))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInspect(t *testing.T) {
	t.Parallel()
	e, _ := newTestEcho(t)

	body := encodeArray(t, &npy.Array{Descr: ">f4", Fortran: true, Shape: []int{3}, Data: make([]byte, 12)}, 4)
	rec := do(t, e, http.MethodPost, "/v1/inspect", bytes.NewReader(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var info ArrayInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.Equal(t, ">f4", info.Descr)
	require.True(t, info.FortranOrder)
	require.Equal(t, []int{3}, info.Shape)
	require.Equal(t, int64(len(body)), info.FileSize)
	require.Zero(t, info.DataOffset%npy.HeaderAlign)

	rec = do(t, e, http.MethodPost, "/v1/inspect", strings.NewReader("\x93NUMPY\x03\x00"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	t.Parallel()
	e, _ := newTestEcho(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/arrays", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))
}
