// engine/reconcile.go
package engine

import (
	"encoding/json"
	"sort"

	"github.com/vinizap/pronode/domain"
	"github.com/vinizap/pronode/remote"
)

// Records as stored remotely. The id is the key, never part of the value.
type folderRecord struct {
	Name     string `json:"name"`
	Position int    `json:"position"`
}

type noteRecord struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	ParentID  string `json:"parentId"`
	CreatedAt string `json:"createdAt"`
}

func toNoteRecord(n domain.Note) noteRecord {
	return noteRecord{Title: n.Title, Content: n.Content, ParentID: n.ParentID, CreatedAt: n.CreatedAt}
}

// reconcileFolders replaces the folder collection wholesale.
func (e *Engine) reconcileFolders(gen uint64, snap remote.Snapshot) {
	if gen != e.gen {
		return
	}
	folders := make([]domain.Folder, 0, len(snap.Children))
	for _, c := range snap.Children {
		var rec folderRecord
		if err := json.Unmarshal(c.Value, &rec); err != nil {
			e.log.Warn().Err(err).Str("folder", c.Key).Msg("skipping malformed folder")
			continue
		}
		folders = append(folders, domain.Folder{ID: c.Key, Name: rec.Name, Position: rec.Position})
	}
	e.remoteFolders = folders
	e.gotFolders = true

	// A stub is confirmed once its id comes back from the store.
	stubs := e.stubs[:0]
	for _, s := range e.stubs {
		if e.remoteFolderIndex(s.ID) < 0 {
			stubs = append(stubs, s)
		}
	}
	e.stubs = stubs

	e.publish()
	e.markSynced()
}

// reconcileNotes replaces the note collection wholesale.
func (e *Engine) reconcileNotes(gen uint64, snap remote.Snapshot) {
	if gen != e.gen {
		return
	}
	notes := make([]domain.Note, 0, len(snap.Children))
	for _, c := range snap.Children {
		var rec noteRecord
		if err := json.Unmarshal(c.Value, &rec); err != nil {
			e.log.Warn().Err(err).Str("note", c.Key).Msg("skipping malformed note")
			continue
		}
		notes = append(notes, domain.Note{
			ID:        c.Key,
			Title:     rec.Title,
			Content:   rec.Content,
			ParentID:  rec.ParentID,
			CreatedAt: rec.CreatedAt,
		})
	}
	e.remoteNotes = notes
	e.gotNotes = true

	e.publish()
	e.markSynced()
}

func (e *Engine) markSynced() {
	if e.gotFolders && e.gotNotes && !e.synced.Get() {
		e.synced.Set(true)
	}
}

// publish derives the visible collections from the last reconciled state,
// the pending deletions, the stubs and the UI side-map.
func (e *Engine) publish() {
	hiddenFolders := map[string]bool{}
	for _, d := range e.deletions {
		if d.kind == kindFolder {
			hiddenFolders[d.ID] = true
		}
	}

	folders := make([]domain.Folder, 0, len(e.remoteFolders)+len(e.stubs))
	for _, f := range e.remoteFolders {
		if hiddenFolders[f.ID] {
			continue
		}
		f.IsEditing = e.editing[f.ID]
		folders = append(folders, f)
	}
	for _, s := range e.stubs {
		s.IsEditing = e.editing[s.ID]
		folders = append(folders, s)
	}
	sort.SliceStable(folders, func(i, j int) bool {
		if folders[i].Position != folders[j].Position {
			return folders[i].Position < folders[j].Position
		}
		return folders[i].ID < folders[j].ID
	})

	notes := make([]domain.Note, 0, len(e.remoteNotes))
	for _, n := range e.remoteNotes {
		if _, ok := e.deletions[deletionKey(kindNote, n.ID)]; ok {
			continue
		}
		if hiddenFolders[n.ParentID] {
			continue
		}
		notes = append(notes, n)
	}

	e.folders.Set(folders)
	e.notes.Set(notes)
	e.refreshSelection(notes)
}

// refreshSelection points the selection at the freshest copy of the
// selected id, or clears it once the note is gone.
func (e *Engine) refreshSelection(notes []domain.Note) {
	if e.selectedID == "" {
		if e.selected.Get() != nil {
			e.selected.Set(nil)
		}
		return
	}
	for _, n := range notes {
		if n.ID != e.selectedID {
			continue
		}
		if cur := e.selected.Get(); cur == nil || *cur != n {
			fresh := n
			e.selected.Set(&fresh)
		}
		return
	}
	e.selectedID = ""
	e.selected.Set(nil)
}

func (e *Engine) remoteFolderIndex(id string) int {
	for i, f := range e.remoteFolders {
		if f.ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) remoteNoteIndex(id string) int {
	for i, n := range e.remoteNotes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) stubIndex(id string) int {
	for i, s := range e.stubs {
		if s.ID == id {
			return i
		}
	}
	return -1
}
