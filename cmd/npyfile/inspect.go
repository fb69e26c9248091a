package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/npyfile/internal/compress"
	"github.com/samcharles93/npyfile/internal/logger"
	"github.com/samcharles93/npyfile/internal/npz"
	"github.com/samcharles93/npyfile/pkg/npy"
)

type report struct {
	Path         string   `json:"path"`
	Member       string   `json:"member,omitempty"`
	Compression  string   `json:"compression,omitempty"`
	Version      string   `json:"version"`
	HeaderLen    int      `json:"header_len"`
	DataOffset   int64    `json:"data_offset"`
	Descr        string   `json:"descr"`
	FortranOrder bool     `json:"fortran_order"`
	Shape        []int    `json:"shape"`
	Elements     int      `json:"elements"`
	ElemSize     int      `json:"elem_size,omitempty"`
	DataBytes    int64    `json:"data_bytes"`
	ExpectBytes  int      `json:"expected_bytes,omitempty"`
	Checksum     string   `json:"xxhash64"`
	Problems     []string `json:"problems,omitempty"`
}

func inspectCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print the header of .npy files or the members of .npz archives",
		ArgsUsage: "<file>...",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print JSON instead of text", Destination: &asJSON},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			if c.NArg() == 0 {
				return cli.Exit("error: inspect needs at least one file", 1)
			}

			var reports []report
			for _, path := range c.Args().Slice() {
				rs, err := inspectPath(path)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %s: %v", path, err), 1)
				}
				log.Debug("inspected", "path", path, "arrays", len(rs))
				reports = append(reports, rs...)
			}

			w := outWriter(c)
			if asJSON {
				out, err := json.MarshalIndent(reports, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(w, string(out))
				return err
			}
			for i, r := range reports {
				if i > 0 {
					_, _ = fmt.Fprintln(w)
				}
				printReport(w, r)
			}
			return nil
		},
	}
}

func inspectPath(path string) ([]report, error) {
	if strings.EqualFold(filepath.Ext(path), ".npz") {
		var reports []report
		err := npz.WalkFile(path, func(name string, raw []byte) error {
			r, err := inspectStream(bytes.NewReader(raw))
			if err != nil {
				return err
			}
			r.Path = path
			r.Member = name
			reports = append(reports, r)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return reports, nil
	}

	t := compress.TypeForPath(path)
	var (
		r   report
		err error
	)
	if t == compress.None {
		f, oerr := os.Open(path)
		if oerr != nil {
			return nil, oerr
		}
		defer func() { _ = f.Close() }()
		r, err = inspectStream(f)
	} else {
		raw, derr := readDecoded(path)
		if derr != nil {
			return nil, derr
		}
		r, err = inspectStream(bytes.NewReader(raw))
		r.Compression = t.String()
	}
	if err != nil {
		return nil, err
	}
	r.Path = path
	return []report{r}, nil
}

// inspectStream reads the header and hashes the rest of rs as the data block.
func inspectStream(rs io.ReadSeeker) (report, error) {
	hdr, err := npy.ReadHeader(rs)
	if err != nil {
		return report{}, err
	}
	h := xxhash.New()
	n, err := io.Copy(h, rs)
	if err != nil {
		return report{}, err
	}

	r := report{
		Version:      fmt.Sprintf("%d.%d", hdr.Major, hdr.Minor),
		HeaderLen:    hdr.HeaderLen,
		DataOffset:   hdr.DataOffset,
		Descr:        hdr.Descr,
		FortranOrder: hdr.Fortran,
		Shape:        append([]int{}, hdr.Shape...),
		DataBytes:    n,
		Checksum:     fmt.Sprintf("%016x", h.Sum64()),
	}
	arr := &npy.Array{Shape: hdr.Shape}
	if r.Elements, err = arr.NumElements(); err != nil {
		r.Problems = append(r.Problems, err.Error())
		return r, nil
	}
	if r.ElemSize, err = npy.ElemSize(hdr.Descr); err != nil {
		r.Problems = append(r.Problems, err.Error())
		return r, nil
	}
	if r.ExpectBytes, err = arr.DataSize(r.ElemSize); err != nil {
		r.Problems = append(r.Problems, err.Error())
	} else if int64(r.ExpectBytes) != n {
		r.Problems = append(r.Problems, fmt.Sprintf("data block is %d bytes, shape needs %d", n, r.ExpectBytes))
	}
	return r, nil
}

func printReport(w io.Writer, r report) {
	name := r.Path
	if r.Member != "" {
		name += ":" + r.Member
	}
	_, _ = fmt.Fprintf(w, "file:          %s\n", name)
	if r.Compression != "" {
		_, _ = fmt.Fprintf(w, "compression:   %s\n", r.Compression)
	}
	_, _ = fmt.Fprintf(w, "version:       %s\n", r.Version)
	_, _ = fmt.Fprintf(w, "header_len:    %d\n", r.HeaderLen)
	_, _ = fmt.Fprintf(w, "data_offset:   %d\n", r.DataOffset)
	_, _ = fmt.Fprintf(w, "descr:         %s\n", r.Descr)
	_, _ = fmt.Fprintf(w, "fortran_order: %t\n", r.FortranOrder)
	_, _ = fmt.Fprintf(w, "shape:         %s\n", formatShape(r.Shape))
	_, _ = fmt.Fprintf(w, "elements:      %d\n", r.Elements)
	if r.ElemSize > 0 {
		_, _ = fmt.Fprintf(w, "elem_size:     %d\n", r.ElemSize)
	}
	_, _ = fmt.Fprintf(w, "data_bytes:    %d\n", r.DataBytes)
	_, _ = fmt.Fprintf(w, "xxhash64:      %s\n", r.Checksum)
	for _, p := range r.Problems {
		_, _ = fmt.Fprintf(w, "warning:       %s\n", p)
	}
}

// formatShape renders shape as a Python tuple.
func formatShape(shape []int) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, d := range shape {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d", d)
	}
	if len(shape) == 1 {
		b.WriteByte(',')
	}
	b.WriteByte(')')
	return b.String()
}
