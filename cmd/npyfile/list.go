package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/npyfile/internal/compress"
	"github.com/samcharles93/npyfile/internal/logger"
)

func listCmd() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List the arrays in a data directory",
		Flags:   storeFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyStoreConfig(cmd, cfg)

			st, err := openStore(log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			entries, err := st.List()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if len(entries) == 0 {
				log.Info("no arrays found", "path", dataDir)
				return nil
			}

			w := outWriter(cmd)
			_, _ = fmt.Fprintf(w, "Arrays in %s:\n\n", dataDir)
			for _, e := range entries {
				container := ""
				if e.Compression != compress.None {
					container = " " + e.Compression.String()
				}
				_, _ = fmt.Fprintf(w, "  %-32s %-8s %-20s %9s%s\n",
					e.Name, e.Header.Descr, formatShape(e.Header.Shape), formatSize(e.Size), container)
			}
			_, _ = fmt.Fprintf(w, "\n%d array(s) found\n", len(entries))
			return nil
		},
	}
}

func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
