// filesystem/create.go
package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/vinizap/pronode/domain"
	"gopkg.in/yaml.v3"
)

// Export writes one directory per folder below root, each holding the
// folder's metadata and one markdown file per note. Existing files with the
// same names are overwritten; nothing is removed.
func Export(root string, folders []domain.FolderView) error {
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	used := map[string]bool{}
	for _, f := range folders {
		name := DirName(f.Folder)
		if used[name] {
			name += "-" + f.ID
		}
		used[name] = true

		dir := filepath.Join(root, name)
		if err := CreateFolder(dir, f.Folder); err != nil {
			return err
		}
		for _, n := range f.Notes {
			if err := WriteNote(filepath.Join(dir, n.ID+".md"), n); err != nil {
				return fmt.Errorf("export note %s: %w", n.ID, err)
			}
		}
	}
	return nil
}

// Import reads a tree written by Export.
func Import(root string) ([]domain.FolderView, error) {
	return ListFolders(root)
}

// CreateFolder makes dir and writes f's metadata into it.
func CreateFolder(dir string, f domain.Folder) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	raw, err := yaml.Marshal(folderFile{ID: f.ID, Name: f.Name, Position: f.Position})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, FolderMeta), raw, 0644)
}

// DirName is the directory a folder is exported to: its name with path
// separators and control characters replaced, or its id if nothing is left.
func DirName(f domain.Folder) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':' || unicode.IsControl(r):
			return '_'
		}
		return r
	}, strings.TrimSpace(f.Name))
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return f.ID
	}
	return name
}
