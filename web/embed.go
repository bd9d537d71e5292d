// Package web embeds the MoodTunes page templates and browser assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed all:templates all:static
var assets embed.FS

// Templates returns the template tree rooted at layouts/, pages/ and
// partials/.
func Templates() (fs.FS, error) {
	return fs.Sub(assets, "templates")
}

// Static returns the script and stylesheet tree served under /static/.
func Static() (fs.FS, error) {
	return fs.Sub(assets, "static")
}
