// Package snapshot writes debug images of captured frames and region crops.
package snapshot

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	apperrors "github.com/GriffinCanCode/hookwatch/internal/errors"
)

const timeLayout = "20060102-150405.000"

// Writer dumps every Nth cycle to a directory. A nil *Writer is valid and
// writes nothing.
type Writer struct {
	dir   string
	every int

	mu    sync.Mutex
	cycle int
}

// New creates dir and returns a writer, or nil when every <= 0.
func New(dir string, every int) (*Writer, error) {
	if every <= 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.DebugWriteFailed, "create debug dir %s", dir)
	}
	return &Writer{dir: dir, every: every}, nil
}

// Due advances the cycle counter and reports whether this cycle is dumped.
func (w *Writer) Due() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cycle++
	return w.cycle%w.every == 0
}

// Save writes the frame and each crop as PNG. Names share the timestamp so
// one cycle's files sort together. It returns the written paths.
func (w *Writer) Save(at time.Time, frame image.Image, crops map[string]image.Image) ([]string, error) {
	if w == nil {
		return nil, nil
	}
	stamp := at.Format(timeLayout)

	var paths []string
	if frame != nil {
		p := filepath.Join(w.dir, stamp+"_frame.png")
		if err := writePNG(p, frame); err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}

	ids := make([]string, 0, len(crops))
	for id := range crops {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := filepath.Join(w.dir, fmt.Sprintf("%s_%s.png", stamp, id))
		if err := writePNG(p, crops[id]); err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.DebugWriteFailed, "create %s", filepath.Base(path))
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return apperrors.Wrapf(err, apperrors.DebugWriteFailed, "encode %s", filepath.Base(path))
	}
	if err := f.Close(); err != nil {
		return apperrors.Wrapf(err, apperrors.DebugWriteFailed, "close %s", filepath.Base(path))
	}
	return nil
}
