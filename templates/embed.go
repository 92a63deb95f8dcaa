// Package templates embeds the default configuration written by rdpms setup.
package templates

import "embed"

//go:embed config.yaml
var FS embed.FS
