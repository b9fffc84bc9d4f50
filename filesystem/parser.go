// filesystem/parser.go
package filesystem

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vinizap/pronode/domain"
	"gopkg.in/yaml.v3"
)

// FolderMeta is the file holding a folder's identity inside its directory.
const FolderMeta = ".folder.yaml"

var errNoFrontmatter = errors.New("invalid frontmatter format")

type folderFile struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Position int    `yaml:"position"`
}

// ParseNote reads a markdown document with a YAML frontmatter block.
func ParseNote(data []byte) (domain.Note, error) {
	var note domain.Note
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(data, []byte("---\n")) {
		return note, errNoFrontmatter
	}
	rest := data[len("---\n"):]
	end := bytes.Index(rest, []byte("\n---\n"))
	var front, body []byte
	switch {
	case end >= 0:
		front, body = rest[:end], rest[end+len("\n---\n"):]
	case bytes.HasSuffix(rest, []byte("\n---")):
		front = rest[:len(rest)-len("\n---")]
	default:
		return note, errNoFrontmatter
	}

	if err := yaml.Unmarshal(front, &note); err != nil {
		return note, fmt.Errorf("failed to parse frontmatter: %w", err)
	}
	note.Content = strings.TrimPrefix(string(body), "\n")
	return note, nil
}

func ReadNote(path string) (domain.Note, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Note{}, err
	}
	note, err := ParseNote(data)
	if err != nil {
		return note, fmt.Errorf("%s: %w", path, err)
	}
	return note, nil
}

// FormatNote renders note as frontmatter followed by its content.
func FormatNote(note domain.Note) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")

	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(note); err != nil {
		return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	encoder.Close()

	buf.WriteString("---\n\n")
	buf.WriteString(note.Content)
	return buf.Bytes(), nil
}

func WriteNote(path string, note domain.Note) error {
	data, err := FormatNote(note)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ListNotes reads every markdown file in dir, sorted by creation time.
// Files without valid frontmatter are skipped.
func ListNotes(dir string) ([]domain.Note, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var notes []domain.Note
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		note, err := ReadNote(filepath.Join(dir, entry.Name()))
		if err != nil || note.ID == "" {
			continue
		}
		notes = append(notes, note)
	}
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].Created().Before(notes[j].Created())
	})
	return notes, nil
}

// ListFolders reads every folder directory below root, sorted by position.
// Directories without a FolderMeta file are skipped.
func ListFolders(root string) ([]domain.FolderView, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var folders []domain.FolderView
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		raw, err := os.ReadFile(filepath.Join(dir, FolderMeta))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var meta folderFile
		if err := yaml.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("%s: %w", dir, err)
		}
		if meta.ID == "" {
			return nil, fmt.Errorf("%s: folder has no id", dir)
		}
		if meta.Name == "" {
			meta.Name = entry.Name()
		}

		notes, err := ListNotes(dir)
		if err != nil {
			return nil, err
		}
		for i := range notes {
			notes[i].ParentID = meta.ID
		}
		folders = append(folders, domain.FolderView{
			Folder: domain.Folder{ID: meta.ID, Name: meta.Name, Position: meta.Position},
			Notes:  notes,
		})
	}
	sort.SliceStable(folders, func(i, j int) bool {
		if folders[i].Position != folders[j].Position {
			return folders[i].Position < folders[j].Position
		}
		return folders[i].ID < folders[j].ID
	})
	return folders, nil
}
