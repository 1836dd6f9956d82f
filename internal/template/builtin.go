package template

import (
	"embed"
	"io/fs"

	"github.com/spf13/afero"
)

//go:embed builtin
var builtinFS embed.FS

// Builtin references shipped with the binary.
const (
	RefELI3         = "eli3"
	RefActivityPlan = "eyfs/activity-plan"
	RefEYFSRequest  = "eyfs/request"
)

// Builtin returns a read-only store over the embedded prompt set.
func Builtin() *FSStore {
	sub, err := fs.Sub(builtinFS, "builtin")
	if err != nil {
		panic(err)
	}
	return NewFSStore(afero.FromIOFS{FS: sub})
}
