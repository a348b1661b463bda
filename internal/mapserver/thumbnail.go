package mapserver

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Thumbnailer invokes the external render executable. The renderer
// reports errors on its standard output; any output means the thumbnail
// is skipped.
type Thumbnailer struct {
	bin  string
	size string
}

func NewThumbnailer(bin, size string) *Thumbnailer {
	if bin == "" {
		return nil
	}
	return &Thumbnailer{bin: bin, size: size}
}

// Render writes the map to a temp file, runs the renderer and returns the
// produced PNG.
func (t *Thumbnailer) Render(name string, mapData []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "thumbnail")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	mapPath := filepath.Join(dir, name+".map")
	if err := os.WriteFile(mapPath, mapData, 0o644); err != nil {
		return nil, err
	}

	out, err := exec.Command(t.bin, mapPath, t.size).Output()
	if err != nil {
		return nil, fmt.Errorf("renderer: %w", err)
	}
	if msg := strings.TrimSpace(string(out)); msg != "" {
		return nil, fmt.Errorf("renderer: %s", msg)
	}

	return os.ReadFile(filepath.Join(dir, name+".png"))
}
