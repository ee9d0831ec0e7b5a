// Package web embeds the UI templates and static assets into the binary.
package web

import "embed"

// TemplatesFS holds the page and htmx partial templates.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the stylesheet and client script.
//
//go:embed static/*
var StaticFS embed.FS
