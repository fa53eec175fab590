package hook

import (
	"image"

	apperrors "github.com/GriffinCanCode/hookwatch/internal/errors"
	"github.com/GriffinCanCode/hookwatch/internal/templates"
	"github.com/GriffinCanCode/hookwatch/internal/vision"
)

// Matcher scores a region crop against that region's reference.
type Matcher interface {
	// Monitored returns nil if id can be matched, or why it cannot.
	Monitored(id string) error
	Match(id string, crop image.Image) (vision.Score, error)
}

// TemplateMatcher matches crops against templates loaded from disk.
type TemplateMatcher struct {
	store *templates.Store
}

// NewTemplateMatcher wraps a template store.
func NewTemplateMatcher(store *templates.Store) *TemplateMatcher {
	return &TemplateMatcher{store: store}
}

func (m *TemplateMatcher) Monitored(id string) error {
	if _, ok := m.store.Get(id); ok {
		return nil
	}
	return m.missing(id)
}

func (m *TemplateMatcher) Match(id string, crop image.Image) (vision.Score, error) {
	tpl, ok := m.store.Get(id)
	if !ok {
		return vision.Score{}, m.missing(id)
	}
	return vision.Compare(crop, tpl.Gray, tpl.Hash)
}

func (m *TemplateMatcher) missing(id string) error {
	if err := m.store.Err(id); err != nil {
		return err
	}
	return apperrors.Newf(apperrors.TemplateMissing, "no template for %q", id)
}
