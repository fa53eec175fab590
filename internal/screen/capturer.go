// Package screen captures full display frames for hook detection.
package screen

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg" // JPEG decoder for tool fallbacks
	_ "image/png"  // PNG decoder for tool fallbacks
	"log/slog"
	"os"
	"sync"

	"github.com/kbinani/screenshot"

	apperrors "github.com/GriffinCanCode/hookwatch/internal/errors"
)

// Capturer produces one full-screen frame per call.
type Capturer interface {
	Capture(ctx context.Context) (image.Image, error)
	Close()
}

// backend is a platform screenshot tool producing encoded image bytes.
type backend interface {
	captureRaw(ctx context.Context) ([]byte, error)
	cleanup()
}

// displayCapturer grabs a display through the native screenshot API and
// falls back to the platform tool when that fails (e.g. Wayland sessions).
type displayCapturer struct {
	display  int
	displays func() int
	grab     func(display int) (*image.RGBA, error)
	fallback backend
	tempDir  string

	warnOnce sync.Once
}

// New creates a capturer for the given display index.
func New(display int) Capturer {
	tmpDir, err := os.MkdirTemp("", "hookwatch-screen-*")
	if err != nil {
		slog.Error("failed to create temp dir", "error", err)
		tmpDir = os.TempDir()
	}
	return &displayCapturer{
		display:  display,
		displays: screenshot.NumActiveDisplays,
		grab:     screenshot.CaptureDisplay,
		fallback: newBackend(tmpDir),
		tempDir:  tmpDir,
	}
}

func (c *displayCapturer) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var grabErr error
	if n := c.displays(); c.display < n {
		img, err := c.grab(c.display)
		if err == nil {
			return img, nil
		}
		grabErr = err
	} else {
		grabErr = apperrors.Newf(apperrors.CaptureFailed, "display %d not found (%d active)", c.display, n)
	}

	c.warnOnce.Do(func() {
		slog.Warn("native screen capture unavailable, using screenshot tool", "display", c.display, "error", grabErr)
	})
	if c.fallback == nil {
		return nil, apperrors.Wrap(grabErr, apperrors.CaptureFailed, "capture display")
	}

	data, err := c.fallback.captureRaw(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CaptureFailed, "screenshot tool")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CaptureFailed, "decode screenshot")
	}
	return img, nil
}

func (c *displayCapturer) Close() {
	if c.fallback != nil {
		c.fallback.cleanup()
	}
	if c.tempDir != "" && c.tempDir != os.TempDir() {
		os.RemoveAll(c.tempDir)
	}
}
