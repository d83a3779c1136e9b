package main

import "embed"

// staticFiles embeds the built frontend so the server ships as one binary.
// In dev mode (--dev flag), files are served from the filesystem instead.
//
//go:embed all:dist
var staticFiles embed.FS
