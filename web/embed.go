// Package webassets embeds the static files served to the dashboard
// frontend.
package webassets

import "embed"

// FS contains the embedded dashboard assets from this directory.
//
//go:embed dashboard.js
var FS embed.FS
