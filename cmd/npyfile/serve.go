package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/npyfile/internal/api"
	"github.com/samcharles93/npyfile/internal/compress"
	"github.com/samcharles93/npyfile/internal/logger"
	"github.com/samcharles93/npyfile/internal/store"
	"github.com/samcharles93/npyfile/internal/webui"
)

func serveCmd() *cli.Command {
	var (
		addr              string
		readHeaderTimeout time.Duration
		maxBody           int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve a directory of arrays over HTTP",
		Flags: append(storeFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-header-timeout",
				Usage:       "time allowed to read request headers",
				Value:       30 * time.Second,
				Destination: &readHeaderTimeout,
			},
			&cli.Int64Flag{
				Name:        "max-body",
				Usage:       "largest accepted upload in bytes",
				Value:       api.DefaultMaxBodyBytes,
				Destination: &maxBody,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyServeConfig(cmd, cfg, &addr)

			st, err := openStore(log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			server := api.NewServer(api.Config{Store: st, MaxBodyBytes: maxBody, Logger: log})

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			ui := webui.Handler()
			e.GET("/", func(c *echo.Context) error {
				ui.ServeHTTP(c.Response(), c.Request())
				return nil
			})
			log.Info("starting server", "address", addr, "dir", dataDir, "compression", compression)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readHeaderTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}

func openStore(log logger.Logger) (*store.Store, error) {
	t, err := compress.ParseType(compression)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(dataDir)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dataDir)
	}
	return store.New(osfs.New(dataDir), store.Options{
		Compression: t,
		Strict:      strict,
		Logger:      log,
	}), nil
}
