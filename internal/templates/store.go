// Package templates loads the reference image of each tracked region.
package templates

import (
	"errors"
	"image"
	_ "image/jpeg" // JPEG templates
	_ "image/png"  // PNG templates
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/corona10/goimagehash"

	apperrors "github.com/GriffinCanCode/hookwatch/internal/errors"
	"github.com/GriffinCanCode/hookwatch/internal/vision"
)

// Extensions are tried in this order for each region id.
var Extensions = []string{".png", ".jpg", ".jpeg"}

// Template is a decoded reference image ready for comparison.
type Template struct {
	ID   string
	Path string
	Gray *image.Gray
	Hash *goimagehash.ImageHash
}

// Size returns the template dimensions.
func (t *Template) Size() image.Point { return t.Gray.Bounds().Size() }

// Store holds the templates found at startup. It is read-only afterwards.
type Store struct {
	dir       string
	templates map[string]*Template
	failures  map[string]error
}

// Load reads one template per id from dir. Problems are per region and
// never fail the whole load; they are logged once here and reported by Err.
func Load(dir string, ids []string) *Store {
	s := &Store{
		dir:       dir,
		templates: make(map[string]*Template, len(ids)),
		failures:  make(map[string]error),
	}
	for _, id := range ids {
		tpl, err := loadOne(dir, id)
		if err != nil {
			s.failures[id] = err
			slog.Warn("region not monitored", "region", id, "error", err)
			continue
		}
		s.templates[id] = tpl
		slog.Debug("template loaded", "region", id, "path", tpl.Path, "size", tpl.Size())
	}
	return s
}

// FromImages builds a store from in-memory images, keyed by region id.
func FromImages(images map[string]image.Image) (*Store, error) {
	s := &Store{
		templates: make(map[string]*Template, len(images)),
		failures:  make(map[string]error),
	}
	for id, img := range images {
		tpl, err := newTemplate(id, "", img)
		if err != nil {
			return nil, err
		}
		s.templates[id] = tpl
	}
	return s, nil
}

func loadOne(dir, id string) (*Template, error) {
	for _, ext := range Extensions {
		path := filepath.Join(dir, id+ext)
		f, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, apperrors.Wrapf(err, apperrors.TemplateInvalid, "open %s", path).WithMetadata("region", id)
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			return nil, apperrors.Wrapf(err, apperrors.TemplateInvalid, "decode %s", path).WithMetadata("region", id)
		}
		return newTemplate(id, path, img)
	}
	return nil, apperrors.Newf(apperrors.TemplateMissing, "no template for %q in %s", id, dir).WithMetadata("region", id)
}

func newTemplate(id, path string, img image.Image) (*Template, error) {
	size := img.Bounds().Size()
	if size.X < vision.WindowSize || size.Y < vision.WindowSize {
		return nil, apperrors.Newf(apperrors.TemplateInvalid, "template %q is %dx%d, smaller than %dx%d",
			id, size.X, size.Y, vision.WindowSize, vision.WindowSize).WithMetadata("region", id)
	}
	gray := vision.ToGray(img)
	return &Template{ID: id, Path: path, Gray: gray, Hash: vision.PerceptionHash(gray)}, nil
}

// Get returns the template for id.
func (s *Store) Get(id string) (*Template, bool) {
	t, ok := s.templates[id]
	return t, ok
}

// Err returns why id has no template, or nil.
func (s *Store) Err(id string) error { return s.failures[id] }

// Len returns the number of loaded templates.
func (s *Store) Len() int { return len(s.templates) }

// Dir returns the directory templates were read from.
func (s *Store) Dir() string { return s.dir }
