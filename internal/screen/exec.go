package screen

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
)

// runTool executes a screenshot command that writes to file and returns the
// file contents.
func runTool(ctx context.Context, file string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, bytes.TrimSpace(stderr.Bytes()))
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	os.Remove(file)
	return data, nil
}
