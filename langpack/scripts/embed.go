// Package scripts embeds the builtin Risor lowering scripts.
package scripts

import "embed"

//go:embed *.risor
var FS embed.FS
