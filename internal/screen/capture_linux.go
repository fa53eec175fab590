//go:build linux

package screen

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
)

type linuxBackend struct{ tempDir string }

func (l *linuxBackend) captureRaw(ctx context.Context) ([]byte, error) {
	tmpFile := filepath.Join(l.tempDir, "screenshot.png")
	// Try gnome-screenshot first, fall back to scrot
	if _, err := exec.LookPath("gnome-screenshot"); err == nil {
		return runTool(ctx, tmpFile, "gnome-screenshot", "-f", tmpFile)
	}
	if _, err := exec.LookPath("scrot"); err == nil {
		return runTool(ctx, tmpFile, "scrot", "-o", tmpFile)
	}
	return nil, errors.New("no screenshot tool found (install gnome-screenshot or scrot)")
}

func (l *linuxBackend) cleanup() {}

func newBackend(tempDir string) backend {
	return &linuxBackend{tempDir: tempDir}
}
