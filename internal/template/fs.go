package template

import (
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

var extensions = []string{".json", ".yaml", ".yml"}

// FSStore reads records from a filesystem. References are slash-separated
// paths relative to the store root, with or without an extension.
type FSStore struct {
	fs afero.Fs
}

var _ Store = (*FSStore)(nil)

// NewFSStore serves records from fs.
func NewFSStore(fs afero.Fs) *FSStore {
	return &FSStore{fs: fs}
}

// NewDirStore serves records from dir on the local disk. Nothing outside dir
// can be read through the store.
func NewDirStore(dir string) *FSStore {
	return NewFSStore(afero.NewBasePathFs(afero.NewOsFs(), dir))
}

func (s *FSStore) Load(ref string) (Template, error) {
	ts, err := s.LoadAll(ref)
	if err != nil {
		return Template{}, err
	}
	return single(ref, ts)
}

func (s *FSStore) LoadAll(ref string) ([]Template, error) {
	p, format, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Ref: ref}
		}
		return nil, err
	}
	return Decode(ref, data, format)
}

// Refs lists every reference the store can resolve, without extensions.
func (s *FSStore) Refs() ([]string, error) {
	var refs []string
	err := afero.Walk(s.fs, ".", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if _, ok := formatFor(p); ok {
			refs = append(refs, strings.TrimSuffix(strings.TrimPrefix(p, "./"), path.Ext(p)))
		}
		return nil
	})
	return refs, err
}

func (s *FSStore) resolve(ref string) (string, Format, error) {
	if escapes(ref) {
		return "", 0, &NotFoundError{Ref: ref}
	}
	clean := path.Clean("/" + strings.TrimSpace(ref))
	if clean == "/" {
		return "", 0, &NotFoundError{Ref: ref}
	}
	clean = strings.TrimPrefix(clean, "/")

	if format, ok := formatFor(clean); ok {
		if exists, _ := afero.Exists(s.fs, clean); !exists {
			return "", 0, &NotFoundError{Ref: ref}
		}
		return clean, format, nil
	}

	for _, ext := range extensions {
		candidate := clean + ext
		if exists, _ := afero.Exists(s.fs, candidate); exists {
			format, _ := formatFor(candidate)
			return candidate, format, nil
		}
	}
	return "", 0, &NotFoundError{Ref: ref}
}

func formatFor(p string) (Format, bool) {
	switch strings.ToLower(path.Ext(p)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	}
	return 0, false
}

func escapes(ref string) bool {
	if strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, `\`) {
		return true
	}
	for _, seg := range strings.FieldsFunc(ref, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}
