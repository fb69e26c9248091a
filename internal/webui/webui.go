// Package webui provides the embedded page that browses a served array
// directory.
package webui

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFS embed.FS

// StaticFS returns an http.FileSystem for the embedded static files.
func StaticFS() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}

// Handler serves the static files, index.html at the root.
func Handler() http.Handler {
	return http.FileServer(StaticFS())
}
