package web

import "embed"

// StaticFS embeds the dashboard assets (html/css/js).
//
//go:embed static/*
var StaticFS embed.FS
