package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/npyfile/internal/logger"
	"github.com/samcharles93/npyfile/internal/npz"
	"github.com/samcharles93/npyfile/pkg/npy"
)

func packCmd() *cli.Command {
	var (
		out        string
		compressed bool
	)

	return &cli.Command{
		Name:      "pack",
		Usage:     "Bundle .npy files into an .npz archive",
		ArgsUsage: "<file>...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output .npz path",
				Required:    true,
				Destination: &out,
			},
			&cli.BoolFlag{Name: "compress", Usage: "deflate members", Destination: &compressed},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			if c.NArg() == 0 {
				return cli.Exit("error: pack needs at least one file", 1)
			}

			entries := make([]npz.Entry, 0, c.NArg())
			for _, path := range c.Args().Slice() {
				arr, err := readArray(path)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: read %s: %v", path, err), 1)
				}
				size, err := inferElemSize(arr, 0)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %s: %v", path, err), 1)
				}
				entries = append(entries, npz.Entry{Name: arrayName(path), Array: arr, ElemSize: size})
			}

			err := npy.WriteAtomic(out, func(w io.Writer) error {
				return npz.Write(w, entries, compressed)
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: write %s: %v", out, err), 1)
			}
			log.Info("packed", "out", out, "arrays", len(entries))
			return nil
		},
	}
}
