// engine/mutations.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/vinizap/pronode/dispatch"
	"github.com/vinizap/pronode/domain"
	"github.com/vinizap/pronode/policy"
	"github.com/vinizap/pronode/remote"
)

// ErrNoAccount is returned by account operations while no user is signed in.
var ErrNoAccount = errors.New("no signed-in account")

// NewFolderID returns an id for a folder that does not exist yet.
func NewFolderID() string {
	return "folder-" + strings.ToLower(ulid.Make().String())
}

// NewNote builds an unsaved note with a fresh id and creation time.
func (e *Engine) NewNote(parentID, title string) domain.Note {
	return domain.Note{
		ID:        uuid.NewString(),
		Title:     title,
		ParentID:  parentID,
		CreatedAt: e.loop.Clock().Now().UTC().Format(time.RFC3339Nano),
	}
}

func validID(field, id string) error {
	segs, err := remote.Split(id)
	if err != nil || len(segs) != 1 {
		return &domain.ValidationError{Field: field, Reason: fmt.Sprintf("%q is not a valid key", id)}
	}
	return nil
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func (e *Engine) Select(id string) *dispatch.Future {
	fut := dispatch.NewFuture()
	e.loop.Post(func() {
		for _, n := range e.notes.Get() {
			if n.ID == id {
				e.selectedID = id
				selected := n
				e.selected.Set(&selected)
				fut.Resolve(nil)
				return
			}
		}
		fut.Resolve(fmt.Errorf("note %s: %w", id, domain.ErrNotFoundLocally))
	})
	return fut
}

func (e *Engine) ClearSelection() {
	e.loop.Post(func() {
		e.selectedID = ""
		e.selected.Set(nil)
	})
}

func (e *Engine) NoteByID(id string) (domain.Note, bool) {
	for _, n := range e.notes.Get() {
		if n.ID == id {
			return n, true
		}
	}
	return domain.Note{}, false
}

func (e *Engine) FolderByID(id string) (domain.Folder, bool) {
	for _, f := range e.folders.Get() {
		if f.ID == id {
			return f, true
		}
	}
	return domain.Folder{}, false
}

// SetSaving publishes the saving indicator.
func (e *Engine) SetSaving(saving bool) {
	e.loop.Post(func() { e.saving.Set(saving) })
}

// AddNote writes a new note. It shows up locally once the store echoes it.
func (e *Engine) AddNote(n domain.Note) *dispatch.Future {
	fut := dispatch.NewFuture()
	e.loop.Post(func() { e.addNote(n, fut) })
	return fut
}

func (e *Engine) addNote(n domain.Note, fut *dispatch.Future) {
	if err := validID("id", n.ID); err != nil {
		fut.Resolve(err)
		return
	}
	if err := validID("parentId", n.ParentID); err != nil {
		fut.Resolve(err)
		return
	}
	if blank(n.Title) {
		fut.Resolve(&domain.ValidationError{Field: "title", Reason: "must not be blank"})
		return
	}
	if n.CreatedAt == "" {
		n.CreatedAt = e.loop.Clock().Now().UTC().Format(time.RFC3339Nano)
	}
	path := domain.NotePath(e.ns, n.ID)
	rec := toNoteRecord(n)
	e.write(fut, remote.OpWrite, path, func(ctx context.Context) error {
		return e.store.Write(ctx, path, rec)
	})
}

// AddFolder writes a complete folder record, replacing any folder with the
// same id. Like AddNote it shows up once the store echoes it.
func (e *Engine) AddFolder(f domain.Folder) *dispatch.Future {
	fut := dispatch.NewFuture()
	e.loop.Post(func() {
		if err := validID("id", f.ID); err != nil {
			fut.Resolve(err)
			return
		}
		if blank(f.Name) {
			fut.Resolve(&domain.ValidationError{Field: "name", Reason: "must not be blank"})
			return
		}
		path := domain.FolderPath(e.ns, f.ID)
		rec := folderRecord{Name: strings.TrimSpace(f.Name), Position: f.Position}
		e.write(fut, remote.OpWrite, path, func(ctx context.Context) error {
			return e.store.Write(ctx, path, rec)
		})
	})
	return fut
}

// AddFolderStub inserts a local-only folder in front of all others and
// puts it into editing mode. SaveFolder persists or discards it.
func (e *Engine) AddFolderStub() string {
	id := NewFolderID()
	e.loop.Post(func() { e.addStub(id) })
	return id
}

func (e *Engine) addStub(id string) {
	current := e.folders.Get()
	positions := make([]int, 0, len(current))
	for _, f := range current {
		positions = append(positions, f.Position)
	}
	e.stubs = append(e.stubs, domain.Folder{ID: id, Position: policy.StubPosition(positions)})
	e.editing[id] = true
	e.publish()
}

// SetEditing toggles the UI-only rename state of a folder.
func (e *Engine) SetEditing(id string, editing bool) {
	e.loop.Post(func() {
		if editing {
			e.editing[id] = true
		} else {
			delete(e.editing, id)
		}
		e.publish()
	})
}

// SaveFolder upserts a folder's name, keeping its position. An empty name
// discards a stub without touching the store.
func (e *Engine) SaveFolder(id, name string) *dispatch.Future {
	fut := dispatch.NewFuture()
	name = strings.TrimSpace(name)
	e.loop.Post(func() {
		if err := validID("id", id); err != nil {
			fut.Resolve(err)
			return
		}
		stub := e.stubIndex(id)
		if name == "" {
			if stub >= 0 {
				e.stubs = append(e.stubs[:stub], e.stubs[stub+1:]...)
				delete(e.editing, id)
				e.publish()
				fut.Resolve(nil)
				return
			}
			fut.Resolve(&domain.ValidationError{Field: "name", Reason: "must not be blank"})
			return
		}

		position := 0
		if stub >= 0 {
			e.stubs[stub].Name = name
			position = e.stubs[stub].Position
		} else if i := e.remoteFolderIndex(id); i >= 0 {
			e.remoteFolders[i].Name = name
			position = e.remoteFolders[i].Position
		}
		delete(e.editing, id)
		e.publish()

		path := domain.FolderPath(e.ns, id)
		rec := folderRecord{Name: name, Position: position}
		e.write(fut, remote.OpWrite, path, func(ctx context.Context) error {
			return e.store.Write(ctx, path, rec)
		})
	})
	return fut
}

// UpdateNoteContent applies content locally and writes it through.
func (e *Engine) UpdateNoteContent(id, content string) *dispatch.Future {
	return e.patchNote(id, "content", content, func(n *domain.Note) { n.Content = content })
}

// UpdateTitle applies a non-blank title locally and writes it through.
func (e *Engine) UpdateTitle(id, title string) *dispatch.Future {
	if blank(title) {
		return dispatch.Settled(&domain.ValidationError{Field: "title", Reason: "must not be blank"})
	}
	return e.patchNote(id, "title", title, func(n *domain.Note) { n.Title = title })
}

// MoveNote re-parents a note.
func (e *Engine) MoveNote(id, folderID string) *dispatch.Future {
	if err := validID("parentId", folderID); err != nil {
		return dispatch.Settled(err)
	}
	return e.patchNote(id, "parentId", folderID, func(n *domain.Note) { n.ParentID = folderID })
}

func (e *Engine) patchNote(id, field, value string, apply func(*domain.Note)) *dispatch.Future {
	fut := dispatch.NewFuture()
	e.loop.Post(func() {
		i := e.remoteNoteIndex(id)
		if i < 0 {
			fut.Resolve(fmt.Errorf("note %s: %w", id, domain.ErrNotFoundLocally))
			return
		}
		apply(&e.remoteNotes[i])
		e.publish()

		path := remote.Join(domain.NotePath(e.ns, id), field)
		e.write(fut, remote.OpWrite, path, func(ctx context.Context) error {
			return e.store.Write(ctx, path, value)
		})
	})
	return fut
}

// UpdateFolderPositions sets position = index for every folder in ordered
// with one atomic multi-path write. Stubs are reordered locally only.
func (e *Engine) UpdateFolderPositions(ordered []string) *dispatch.Future {
	fut := dispatch.NewFuture()
	ids := append([]string(nil), ordered...)
	e.loop.Post(func() { e.applyOrder(ids, fut) })
	return fut
}

// MoveFolder moves the folder at index from of the visible order to index
// to and persists the resulting positions.
func (e *Engine) MoveFolder(from, to int) *dispatch.Future {
	fut := dispatch.NewFuture()
	e.loop.Post(func() {
		current := e.folders.Get()
		ids := make([]string, 0, len(current))
		for _, f := range current {
			ids = append(ids, f.ID)
		}
		moved, err := policy.Move(ids, from, to)
		if err != nil {
			fut.Resolve(err)
			return
		}
		e.applyOrder(moved, fut)
	})
	return fut
}

func (e *Engine) applyOrder(ordered []string, fut *dispatch.Future) {
	values := map[string]any{}
	for id, pos := range policy.Positions(ordered) {
		if i := e.remoteFolderIndex(id); i >= 0 {
			e.remoteFolders[i].Position = pos
			values[id+"/position"] = pos
		} else if i := e.stubIndex(id); i >= 0 {
			e.stubs[i].Position = pos
		} else {
			e.log.Warn().Str("folder", id).Msg("ignoring unknown folder in reorder")
		}
	}
	e.publish()

	if len(values) == 0 {
		fut.Resolve(nil)
		return
	}
	root := domain.FoldersPath(e.ns)
	e.write(fut, remote.OpUpdate, root, func(ctx context.Context) error {
		return e.store.Update(ctx, root, values)
	})
}

// QuickResult tells which of the two quick actions happened.
type QuickResult struct {
	NoteID string
	StubID string
}

// QuickNote creates a titled note in the first folder, or, when there is no
// folder yet, adds a folder stub instead. It blocks until the write settles
// and must not be called from the loop.
func (e *Engine) QuickNote(ctx context.Context, title string) (QuickResult, error) {
	var res QuickResult
	var fut *dispatch.Future
	err := e.loop.Do(ctx, func() {
		folders := e.folders.Get()
		if len(folders) == 0 {
			res.StubID = NewFolderID()
			e.addStub(res.StubID)
			return
		}
		n := e.NewNote(folders[0].ID, title)
		res.NoteID = n.ID
		fut = dispatch.NewFuture()
		e.addNote(n, fut)
	})
	if err != nil || fut == nil {
		return res, err
	}
	return res, fut.Wait(ctx)
}

// DeleteAccountData removes the signed-in user's whole namespace. Unlike
// the background writes, failures are returned to the caller.
func (e *Engine) DeleteAccountData(ctx context.Context) error {
	var ns string
	if err := e.loop.Do(ctx, func() { ns = e.ns }); err != nil {
		return err
	}
	if !strings.HasPrefix(ns, "users/") {
		return ErrNoAccount
	}
	if err := e.store.Remove(ctx, ns); err != nil {
		err = remote.AsWriteError(remote.OpRemove, ns, err)
		e.log.Error().Err(err).Str("namespace", ns).Msg("account deletion failed")
		return err
	}
	e.log.Info().Str("namespace", ns).Msg("account data deleted")
	return nil
}
