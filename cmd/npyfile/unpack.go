package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/npyfile/internal/compress"
	"github.com/samcharles93/npyfile/internal/logger"
	"github.com/samcharles93/npyfile/internal/npz"
)

func unpackCmd() *cli.Command {
	var (
		dir       string
		container string
	)

	return &cli.Command{
		Name:      "unpack",
		Usage:     "Extract the arrays of an .npz archive as .npy files",
		ArgsUsage: "<archive.npz>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "dir",
				Aliases:     []string{"d"},
				Usage:       "output directory (default $NPYFILE_OUT_DIR or the archive name)",
				Destination: &dir,
			},
			&cli.StringFlag{
				Name:        "compression",
				Usage:       "container for extracted files (none, zstd, s2, lz4, gzip)",
				Value:       "none",
				Destination: &container,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			if c.NArg() != 1 {
				return cli.Exit("error: unpack needs exactly one archive", 1)
			}
			archive := c.Args().First()

			t, err := compress.ParseType(container)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			outDir, err := resolveOutDir(archive, dir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			entries, err := npz.ReadFile(archive)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %s: %v", archive, err), 1)
			}

			for _, e := range entries {
				size, err := inferElemSize(e.Array, 0)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: member %s: %v", e.Name, err), 1)
				}
				path := filepath.Join(outDir, tensorFileName(e.Name)+t.Ext())
				if err := writeArray(path, e.Array, size); err != nil {
					return cli.Exit(fmt.Sprintf("error: write %s: %v", path, err), 1)
				}
				log.Debug("extracted", "member", e.Name, "path", path)
			}
			log.Info("unpacked", "archive", archive, "dir", outDir, "arrays", len(entries))
			return nil
		},
	}
}
