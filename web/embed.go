package web

import "embed"

// TemplatesFS holds the page templates; every page is rendered inside
// templates/layout.html.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the stylesheet and the notification script.
//
//go:embed static/*
var StaticFS embed.FS
