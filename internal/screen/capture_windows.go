//go:build windows

package screen

// The native GDI path in kbinani/screenshot is the only capture route on
// Windows, so there is no tool fallback.
func newBackend(string) backend { return nil }
