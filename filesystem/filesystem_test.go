package filesystem

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/vinizap/pronode/domain"
)

func TestNoteRoundTrip(t *testing.T) {
	n := domain.Note{
		ID:        "n1",
		Title:     "Einkaufsliste: Woche 12",
		Content:   "# Liste\n\n---\n\n- Milch\n",
		ParentID:  "f1",
		CreatedAt: "2024-03-01T09:00:00Z",
	}
	data, err := FormatNote(n)
	assert.Equal(t, err, nil)

	got, err := ParseNote(data)
	assert.Equal(t, err, nil)
	if diff := cmp.Diff(n, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseNoteRejectsMissingFrontmatter(t *testing.T) {
	_, err := ParseNote([]byte("# just markdown\n"))
	assert.NotEqual(t, err, nil)
	_, err = ParseNote([]byte("---\nid: x\nno end marker"))
	assert.NotEqual(t, err, nil)

	n, err := ParseNote([]byte("---\r\nid: x\r\ntitle: T\r\n---"))
	assert.Equal(t, err, nil)
	assert.Equal(t, n.ID, "x")
	assert.Equal(t, n.Content, "")
}

func TestExportImport(t *testing.T) {
	root := t.TempDir()
	folders := []domain.FolderView{
		{
			Folder: domain.Folder{ID: "f2", Name: "Arbeit", Position: 1},
			Notes: []domain.Note{
				{ID: "n2", Title: "Später", Content: "b", ParentID: "f2", CreatedAt: "2024-03-02T00:00:00Z"},
				{ID: "n3", Title: "Früher", Content: "a", ParentID: "f2", CreatedAt: "2024-03-01T00:00:00Z"},
			},
		},
		{Folder: domain.Folder{ID: "f1", Name: "Privat/Familie", Position: 0}},
		{Folder: domain.Folder{ID: "f3", Name: "Arbeit", Position: 2}},
	}
	assert.Equal(t, Export(root, folders), nil)

	_, err := os.Stat(filepath.Join(root, "Privat_Familie", FolderMeta))
	assert.Equal(t, err, nil)
	_, err = os.Stat(filepath.Join(root, "Arbeit-f3", FolderMeta))
	assert.Equal(t, err, nil)

	got, err := Import(root)
	assert.Equal(t, err, nil)
	want := []domain.FolderView{
		{Folder: domain.Folder{ID: "f1", Name: "Privat/Familie", Position: 0}},
		{
			Folder: domain.Folder{ID: "f2", Name: "Arbeit", Position: 1},
			Notes: []domain.Note{
				{ID: "n3", Title: "Früher", Content: "a", ParentID: "f2", CreatedAt: "2024-03-01T00:00:00Z"},
				{ID: "n2", Title: "Später", Content: "b", ParentID: "f2", CreatedAt: "2024-03-02T00:00:00Z"},
			},
		},
		{Folder: domain.Folder{ID: "f3", Name: "Arbeit", Position: 2}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("import mismatch (-want +got):\n%s", diff)
	}
}

func TestImportUsesDirectoryForParent(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "Inbox")
	assert.Equal(t, CreateFolder(dir, domain.Folder{ID: "inbox", Name: "Inbox"}), nil)
	assert.Equal(t, WriteNote(filepath.Join(dir, "n1.md"), domain.Note{ID: "n1", Title: "T", ParentID: "elsewhere"}), nil)
	assert.Equal(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("no frontmatter"), 0644), nil)
	assert.Equal(t, os.Mkdir(filepath.Join(root, "loose"), 0755), nil)

	got, err := Import(root)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(got), 1)
	assert.Equal(t, len(got[0].Notes), 1)
	assert.Equal(t, got[0].Notes[0].ParentID, "inbox")
}

func TestDirName(t *testing.T) {
	assert.Equal(t, DirName(domain.Folder{ID: "x", Name: "  ..versteckt "}), "versteckt")
	assert.Equal(t, DirName(domain.Folder{ID: "x", Name: "..."}), "x")
	assert.Equal(t, DirName(domain.Folder{ID: "x", Name: `a\b:c`}), "a_b_c")
}
