package langpack

import (
	"github.com/efletch/trellis/langpack/mini"
	"github.com/efletch/trellis/langpack/scripts"
)

// Mini returns the builtin reference-language pack: the hand-written mini
// grammar plus the embedded Risor lowering script.
func Mini() *Pack {
	return &Pack{
		Name:       "mini",
		Extensions: []string{".mini"},
		Grammar:    mini.New(),
		Lower:      NewScriptLowerer(scripts.FS, "mini.risor"),
	}
}
