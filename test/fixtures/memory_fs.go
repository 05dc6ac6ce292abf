package fixtures

import (
	"strings"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
)

// MemoryFS is an in-memory domain.FileSystemManager rooted at /home/kiosk.
type MemoryFS struct {
	Files map[string]bool
	Dirs  map[string]bool
}

// NewMemoryFS returns a filesystem holding the given files.
func NewMemoryFS(files ...string) *MemoryFS {
	fs := &MemoryFS{
		Files: make(map[string]bool),
		Dirs:  make(map[string]bool),
	}
	for _, f := range files {
		fs.Files[f] = true
	}
	return fs
}

func (m *MemoryFS) Exists(path string) bool {
	return m.Files[path] || m.Dirs[path]
}

func (m *MemoryFS) IsDir(path string) bool {
	return m.Dirs[path]
}

func (m *MemoryFS) ExpandHome(path string) string {
	if path == "~" {
		return "/home/kiosk"
	}
	if strings.HasPrefix(path, "~/") {
		return "/home/kiosk" + path[1:]
	}
	return path
}

var _ domain.FileSystemManager = (*MemoryFS)(nil)
