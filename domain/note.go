// domain/note.go
package domain

import "time"

// WelcomeNoteID is reserved for the static placeholder shown before any
// note is opened. It never exists in storage.
const WelcomeNoteID = "welcome"

type Note struct {
	ID        string `json:"id" yaml:"id"`
	Title     string `json:"title" yaml:"title"`
	Content   string `json:"content" yaml:"-"`
	ParentID  string `json:"parentId" yaml:"parent_id"`
	CreatedAt string `json:"createdAt" yaml:"created_at"`
}

// Created parses CreatedAt. Unparseable values yield the zero time.
func (n Note) Created() time.Time {
	t, err := time.Parse(time.RFC3339Nano, n.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

type Folder struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`

	// IsEditing is UI-only state and is never persisted.
	IsEditing bool `json:"-"`
}

// FolderView is a folder joined with the notes whose ParentID points at it.
type FolderView struct {
	Folder
	Notes []Note `json:"notes"`
}
