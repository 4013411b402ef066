// Package web embeds the browser host: a WebGL2 page that draws the frames
// streamed from /api/v1/stream/frames.
package web

import "embed"

// Content holds the embedded web frontend files (index.html, app.js, styles.css).
//
//go:embed index.html app.js styles.css
var Content embed.FS
