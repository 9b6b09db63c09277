//go:build !dev

// Package static provides the embedded client assets for production builds.
package static

import (
	"embed"
	"net/http"
)

//go:embed index.html app.js style.css
var assetsFS embed.FS

// Handler returns an http.Handler that serves the embedded client assets.
func Handler() http.Handler {
	return http.FileServer(http.FS(assetsFS))
}

// Index returns an http.Handler that serves the application shell.
func Index() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, assetsFS, "index.html")
	})
}
