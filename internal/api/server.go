// Package api serves a directory of .npy arrays over HTTP.
package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/npyfile/internal/logger"
	"github.com/samcharles93/npyfile/internal/store"
	"github.com/samcharles93/npyfile/pkg/npy"
)

const (
	DefaultMaxBodyBytes = 1 << 30

	HeaderRequestID = "X-Request-ID"
)

var errBodyTooLarge = errors.New("request body too large")

type Config struct {
	Store *store.Store
	// MaxBodyBytes bounds uploaded .npy streams. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
	Logger       logger.Logger
}

type Server struct {
	store   *store.Store
	maxBody int64
	log     logger.Logger
}

func NewServer(cfg Config) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		store:   cfg.Store,
		maxBody: cfg.MaxBodyBytes,
		log:     log.With("component", "api"),
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.Use(s.requestID)

	e.GET("/v1/arrays", s.handleList)
	e.GET("/v1/arrays/:name", s.handleGet)
	e.GET("/v1/arrays/:name/data", s.handleData)
	e.PUT("/v1/arrays/:name", s.handlePut)
	e.DELETE("/v1/arrays/:name", s.handleDelete)
	e.POST("/v1/arrays/:name/copy", s.handleCopy)
	e.POST("/v1/inspect", s.handleInspect)
}

// requestID echoes the caller's request id or assigns a new one.
func (s *Server) requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		id := c.Request().Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Response().Header().Set(HeaderRequestID, id)
		s.log.Debug("request", "id", id, "method", c.Request().Method, "path", c.Request().URL.Path)
		return next(c)
	}
}

func (s *Server) handleList(c *echo.Context) error {
	entries, err := s.store.List()
	if err != nil {
		return s.writeError(c, err)
	}
	resp := ListResponse{Object: "list", Data: make([]ArrayInfo, 0, len(entries))}
	for _, e := range entries {
		resp.Data = append(resp.Data, entryInfo(e))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGet(c *echo.Context) error {
	name := c.Param("name")
	e, err := s.store.Stat(name)
	if err != nil {
		return s.writeError(c, err)
	}
	sum, err := s.store.Checksum(name)
	if err != nil {
		return s.writeError(c, err)
	}
	info := entryInfo(e)
	info.Checksum = formatChecksum(sum)
	return c.JSON(http.StatusOK, info)
}

func (s *Server) handleData(c *echo.Context) error {
	rc, hdr, err := s.store.Open(c.Param("name"))
	if err != nil {
		return s.writeError(c, err)
	}
	defer func() { _ = rc.Close() }()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, echo.MIMEOctetStream)
	w.Header().Set("X-Npy-Descr", hdr.Descr)
	w.Header().Set("X-Npy-Shape", shapeHeader(hdr.Shape))
	w.Header().Set("X-Npy-Fortran-Order", strconv.FormatBool(hdr.Fortran))
	w.WriteHeader(http.StatusOK)
	_, err = io.Copy(w, rc)
	return err
}

func (s *Server) handlePut(c *echo.Context) error {
	name := c.Param("name")
	if err := store.ValidateName(name); err != nil {
		return s.writeError(c, err)
	}
	arr, err := s.decodeBody(c)
	if err != nil {
		return s.writeError(c, err)
	}
	elemSize, err := elemSizeFor(c, arr)
	if err != nil {
		return s.writeError(c, err)
	}
	if err := s.store.Save(name, arr, elemSize); err != nil {
		return s.writeError(c, err)
	}
	e, err := s.store.Stat(name)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, entryInfo(e))
}

func (s *Server) handleDelete(c *echo.Context) error {
	if err := s.store.Remove(c.Param("name")); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleCopy(c *echo.Context) error {
	req, err := decodeJSON[CopyRequest](c.Request().Body)
	if err != nil {
		return s.writeError(c, newInvalidRequest(err.Error()))
	}
	if req.To == "" {
		return s.writeError(c, newInvalidRequest("to is required"))
	}
	arr, err := s.store.Load(c.Param("name"))
	if err != nil {
		return s.writeError(c, err)
	}
	elemSize, err := elemSizeFor(c, arr)
	if err != nil {
		return s.writeError(c, err)
	}
	if err := s.store.Save(req.To, arr, elemSize); err != nil {
		return s.writeError(c, err)
	}
	e, err := s.store.Stat(req.To)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, entryInfo(e))
}

func (s *Server) handleInspect(c *echo.Context) error {
	raw, err := s.readBody(c)
	if err != nil {
		return s.writeError(c, err)
	}
	r := bytes.NewReader(raw)
	hdr, err := npy.ReadHeader(r)
	if err != nil {
		return s.writeError(c, err)
	}
	info := headerInfo(hdr)
	info.FileSize = int64(len(raw))
	return c.JSON(http.StatusOK, info)
}

func (s *Server) readBody(c *echo.Context) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, s.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > s.maxBody {
		return nil, fmt.Errorf("%w: limit is %d bytes", errBodyTooLarge, s.maxBody)
	}
	return raw, nil
}

func (s *Server) decodeBody(c *echo.Context) (*npy.Array, error) {
	raw, err := s.readBody(c)
	if err != nil {
		return nil, err
	}
	return npy.Decode(bytes.NewReader(raw))
}

// elemSizeFor takes the element size from the elem_size query parameter,
// falling back to the descriptor.
func elemSizeFor(c *echo.Context, arr *npy.Array) (int, error) {
	if v := c.QueryParam("elem_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, newInvalidRequest(fmt.Sprintf("invalid elem_size %q", v))
		}
		return n, nil
	}
	return npy.ElemSize(arr.Descr)
}

func shapeHeader(shape []int) string {
	var b []byte
	for i, d := range shape {
		if i > 0 {
			b = append(b, ',')
		}
		b = strconv.AppendInt(b, int64(d), 10)
	}
	return string(b)
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
