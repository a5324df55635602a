package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var StaticAssets embed.FS

//go:embed templates/*
var TemplateAssets embed.FS

// StaticFS returns the embedded static filesystem
func StaticFS() fs.FS {
	static, err := fs.Sub(StaticAssets, "static")
	if err != nil {
		panic(err)
	}
	return static
}

// TemplateFS returns the embedded template filesystem
func TemplateFS() fs.FS {
	templates, err := fs.Sub(TemplateAssets, "templates")
	if err != nil {
		panic(err)
	}
	return templates
}

// NewStaticHandler serves the embedded assets; mount it behind StripPrefix.
func NewStaticHandler() http.Handler {
	return http.FileServer(http.FS(StaticFS()))
}
