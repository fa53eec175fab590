package screen

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/GriffinCanCode/hookwatch/internal/errors"
)

// ReplayCapturer returns recorded frames from a directory in name order,
// wrapping around at the end. Used for offline runs and tests.
type ReplayCapturer struct {
	mu    sync.Mutex
	paths []string
	next  int
}

// NewReplay lists the PNG and JPEG files in dir.
func NewReplay(dir string) (*ReplayCapturer, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CaptureFailed, "read replay dir %s", dir)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, apperrors.Newf(apperrors.CaptureFailed, "no frames in replay dir %s", dir)
	}
	sort.Strings(paths)
	return &ReplayCapturer{paths: paths}, nil
}

// Capture decodes the next frame.
func (r *ReplayCapturer) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	path := r.paths[r.next]
	r.next = (r.next + 1) % len(r.paths)
	r.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CaptureFailed, "open frame")
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CaptureFailed, "decode frame %s", filepath.Base(path))
	}
	return img, nil
}

// Frames returns the number of recorded frames.
func (r *ReplayCapturer) Frames() int { return len(r.paths) }

func (r *ReplayCapturer) Close() {}
