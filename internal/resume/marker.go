package resume

import (
	"os"
	"path/filepath"
)

// Marker is a process-scoped filesystem path whose existence signals
// "continue". It is consumed (deleted) the moment the hold loop observes it.
type Marker struct {
	path string
}

// NewMarker wraps a marker path.
func NewMarker(path string) *Marker {
	return &Marker{path: path}
}

// Path returns the marker path.
func (m *Marker) Path() string { return m.path }

// Exists reports whether the marker is present.
func (m *Marker) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Touch creates the marker, creating parent directories as needed.
func (m *Marker) Touch() error {
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// Consume removes the marker. A marker that is already gone is not an error.
func (m *Marker) Consume() error {
	err := os.Remove(m.path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
