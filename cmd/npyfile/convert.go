package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/npyfile/internal/logger"
)

func convertCmd() *cli.Command {
	var elemSize int

	return &cli.Command{
		Name:  "convert",
		Usage: "Re-encode an array, changing its compression container by file suffix",
		Description: "The output is written in canonical form: a version 1.0 header when it fits,\n" +
			"padded so the data starts on a 16 byte boundary. Suffixes .zst, .s2, .lz4\n" +
			"and .gz on either path select a compression container.",
		ArgsUsage: "<in> <out>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "elem-size", Usage: "element size for descriptors npyfile does not know", Destination: &elemSize},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			if c.NArg() != 2 {
				return cli.Exit("error: convert needs <in> and <out>", 1)
			}
			in, out := c.Args().Get(0), c.Args().Get(1)

			arr, err := readArray(in)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: read %s: %v", in, err), 1)
			}
			size, err := inferElemSize(arr, elemSize)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %s: %v", in, err), 1)
			}
			if err := writeArray(out, arr, size); err != nil {
				return cli.Exit(fmt.Sprintf("error: write %s: %v", out, err), 1)
			}
			log.Info("converted", "in", in, "out", out, "descr", arr.Descr, "shape", arr.Shape)
			return nil
		},
	}
}
