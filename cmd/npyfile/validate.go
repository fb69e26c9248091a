package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/npyfile/internal/logger"
	"github.com/samcharles93/npyfile/pkg/npy"
)

func validateCmd() *cli.Command {
	var elemSize int

	return &cli.Command{
		Name:      "validate",
		Usage:     "Check that files decode and that their data matches their shape",
		ArgsUsage: "<file>...",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "elem-size", Usage: "element size for descriptors npyfile does not know", Destination: &elemSize},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			if c.NArg() == 0 {
				return cli.Exit("error: validate needs at least one file", 1)
			}

			w := outWriter(c)
			failed := 0
			for _, path := range c.Args().Slice() {
				if err := validateFile(path, elemSize); err != nil {
					failed++
					log.Warn("invalid array", "path", path, "error", err)
					_, _ = fmt.Fprintf(w, "FAIL %s: %v\n", path, err)
					continue
				}
				_, _ = fmt.Fprintf(w, "ok   %s\n", path)
			}
			if failed > 0 {
				return cli.Exit(fmt.Sprintf("%d of %d files failed validation", failed, c.NArg()), 1)
			}
			return nil
		},
	}
}

func validateFile(path string, override int) error {
	arr, err := readArray(path)
	if err != nil {
		return err
	}
	size := override
	if size <= 0 {
		if size, err = npy.ElemSize(arr.Descr); err != nil {
			return err
		}
	}
	return arr.Validate(size)
}
