//go:build dev

// Package static serves the client assets from disk, so edits show up on
// reload without a rebuild.
package static

import "net/http"

const assetDir = "./internal/web/static"

// Handler returns an http.Handler that serves the client assets from the
// filesystem.
func Handler() http.Handler {
	return http.FileServer(http.Dir(assetDir))
}

// Index returns an http.Handler that serves the application shell.
func Index() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, assetDir+"/index.html")
	})
}
