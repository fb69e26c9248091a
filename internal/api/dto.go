package api

import (
	"strconv"
	"time"

	"github.com/samcharles93/npyfile/internal/store"
	"github.com/samcharles93/npyfile/pkg/npy"
)

// ArrayInfo is the JSON view of an array header.
type ArrayInfo struct {
	Name         string     `json:"name,omitempty"`
	Descr        string     `json:"descr"`
	FortranOrder bool       `json:"fortran_order"`
	Shape        []int      `json:"shape"`
	Version      string     `json:"version"`
	HeaderLen    int        `json:"header_len"`
	DataOffset   int64      `json:"data_offset"`
	FileSize     int64      `json:"file_size,omitempty"`
	Compression  string     `json:"compression,omitempty"`
	Checksum     string     `json:"checksum,omitempty"`
	ModifiedAt   *time.Time `json:"modified_at,omitempty"`
}

type ListResponse struct {
	Object string      `json:"object"`
	Data   []ArrayInfo `json:"data"`
}

type CopyRequest struct {
	To string `json:"to"`
}

func headerInfo(h npy.Header) ArrayInfo {
	return ArrayInfo{
		Descr:        h.Descr,
		FortranOrder: h.Fortran,
		Shape:        append([]int{}, h.Shape...),
		Version:      strconv.Itoa(int(h.Major)) + "." + strconv.Itoa(int(h.Minor)),
		HeaderLen:    h.HeaderLen,
		DataOffset:   h.DataOffset,
	}
}

func entryInfo(e store.Entry) ArrayInfo {
	info := headerInfo(e.Header)
	info.Name = e.Name
	info.FileSize = e.Size
	info.Compression = e.Compression.String()
	mod := e.ModTime.UTC()
	info.ModifiedAt = &mod
	return info
}

func formatChecksum(sum uint64) string {
	return strconv.FormatUint(sum, 16)
}
