package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/npyfile/internal/logger"
	"github.com/samcharles93/npyfile/internal/safetensors"
)

func importCmd() *cli.Command {
	var (
		tensor    string
		out       string
		dir       string
		all       bool
		widenBF16 bool
	)

	return &cli.Command{
		Name:      "import",
		Usage:     "Extract tensors from a .safetensors file as .npy arrays",
		ArgsUsage: "<file.safetensors>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tensor", Aliases: []string{"t"}, Usage: "tensor to extract", Destination: &tensor},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output path for --tensor (default <tensor>.npy)", Destination: &out},
			&cli.BoolFlag{Name: "all", Usage: "extract every tensor into --dir", Destination: &all},
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "output directory for --all", Value: ".", Destination: &dir},
			&cli.BoolFlag{Name: "widen-bf16", Usage: "convert bfloat16 tensors to <f4 instead of opaque <V2", Destination: &widenBF16},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			if c.NArg() != 1 {
				return cli.Exit("error: import needs exactly one .safetensors file", 1)
			}
			if (tensor == "") == !all {
				return cli.Exit("error: pass either --tensor or --all", 1)
			}

			st, err := safetensors.Open(c.Args().First())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			var names []string
			if all {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				names = st.Names()
			} else {
				if _, ok := st.Tensor(tensor); !ok {
					return cli.Exit(fmt.Sprintf("error: %v: %s", safetensors.ErrTensorNotFound, tensor), 1)
				}
				names = []string{tensor}
			}

			for _, name := range names {
				path := filepath.Join(dir, tensorFileName(name))
				if !all {
					path = out
					if path == "" {
						path = tensorFileName(name)
					}
				}
				if err := importTensor(st, name, path, widenBF16); err != nil {
					return cli.Exit(fmt.Sprintf("error: %s: %v", name, err), 1)
				}
				log.Debug("imported", "tensor", name, "path", path)
			}
			log.Info("imported tensors", "file", c.Args().First(), "count", len(names))
			return nil
		},
	}
}

func importTensor(st *safetensors.File, name, path string, widenBF16 bool) error {
	arr, err := st.ToArray(name, widenBF16)
	if err != nil {
		return err
	}
	size, err := inferElemSize(arr, 0)
	if err != nil {
		return err
	}
	return writeArray(path, arr, size)
}
