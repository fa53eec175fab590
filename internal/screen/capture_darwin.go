//go:build darwin

package screen

import (
	"context"
	"path/filepath"
)

type darwinBackend struct{ tempDir string }

func (d *darwinBackend) captureRaw(ctx context.Context) ([]byte, error) {
	tmpFile := filepath.Join(d.tempDir, "screenshot.png")
	// -x: no sound, -m: main display only
	return runTool(ctx, tmpFile, "screencapture", "-x", "-t", "png", "-m", tmpFile)
}

func (d *darwinBackend) cleanup() {}

func newBackend(tempDir string) backend {
	return &darwinBackend{tempDir: tempDir}
}
