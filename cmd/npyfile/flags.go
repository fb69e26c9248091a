package main

import "github.com/urfave/cli/v3"

const (
	envConfigPath = "NPYFILE_CONFIG"
	envDataDir    = "NPYFILE_DATA_DIR"
)

var (
	configFile  string
	dataDir     string
	compression string
	strict      bool
	logLevel    string
	logFormat   string
	debug       bool
)

func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "dir",
			Aliases:     []string{"d"},
			Usage:       "directory holding the arrays",
			Value:       ".",
			Sources:     cli.EnvVars(envDataDir),
			Destination: &dataDir,
		},
		&cli.StringFlag{
			Name:        "compression",
			Usage:       "container for saved arrays (none, zstd, s2, lz4, gzip)",
			Value:       "none",
			Destination: &compression,
		},
		&cli.BoolFlag{
			Name:        "strict",
			Usage:       "reject arrays whose data size does not match their shape",
			Destination: &strict,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
