// Package web holds the embedded page templates and static assets.
package web

import "embed"

// TemplatesFS holds the page and partial templates.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the stylesheet and the dashboard script.
//
//go:embed static/*.css static/*.js
var StaticFS embed.FS
