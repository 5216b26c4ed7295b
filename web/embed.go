package web

import "embed"

// Templates embeds HTML templates rendered into PDF exports.
//
//go:embed templates/**/*.html
var Templates embed.FS
