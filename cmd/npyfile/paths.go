package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/npyfile/internal/compress"
)

const envOutDir = "NPYFILE_OUT_DIR"

func outWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

// arrayName derives an array name from a file path by dropping the
// directory, any compression suffix and the .npy extension.
func arrayName(path string) string {
	base := compress.TrimExt(filepath.Base(path))
	return strings.TrimSuffix(base, ".npy")
}

// resolveOutDir returns dirFlag, or $NPYFILE_OUT_DIR, or ./<stem> for the
// archive being unpacked. The directory is created.
func resolveOutDir(archive, dirFlag string) (string, error) {
	dir := strings.TrimSpace(dirFlag)
	if dir == "" {
		dir = strings.TrimSpace(os.Getenv(envOutDir))
	}
	if dir == "" {
		dir = strings.TrimSuffix(filepath.Base(archive), filepath.Ext(archive))
	}
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// tensorFileName maps a tensor name such as "model.layers.0.weight" to a
// file name that stays inside the output directory.
func tensorFileName(name string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	name = r.Replace(name)
	if name == "" || strings.HasPrefix(name, ".") {
		name = "_" + name
	}
	return name + ".npy"
}
