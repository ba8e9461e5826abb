// Package console serves the single-page upload form for manual extraction.
package console

import (
	_ "embed"
	"net/http"
)

const (
	RobotsTagHeader = "X-Robots-Tag"
	RobotsTagValue  = "noindex, nofollow"
)

//go:embed console.html
var consoleHTML []byte

// Handler serves the console page. The page holds no data of its own; it
// posts to /extract_entities with the caller's API key.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(RobotsTagHeader, RobotsTagValue)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'unsafe-inline'; style-src 'unsafe-inline'")
		_, _ = w.Write(consoleHTML)
	})
}
