// engine/delete.go
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/vinizap/pronode/dispatch"
	"github.com/vinizap/pronode/domain"
	"github.com/vinizap/pronode/policy"
	"github.com/vinizap/pronode/remote"
)

var (
	// ErrUndone settles Deletion.Done when the delete was canceled in time.
	ErrUndone = errors.New("deletion undone")
	// ErrUndoExpired settles Deletion.Undo when the window already closed.
	ErrUndoExpired = errors.New("undo window has elapsed")
	// ErrDeletePending is returned when the item is already being deleted.
	ErrDeletePending = errors.New("deletion already pending")
)

type kind int

const (
	kindNote kind = iota
	kindFolder
)

func (k kind) String() string {
	if k == kindFolder {
		return "folder"
	}
	return "note"
}

func deletionKey(k kind, id string) string {
	return k.String() + "/" + id
}

// Deletion is an optimistic delete held open for the undo window. The item
// is hidden at once; the remote removal is only issued after the window.
type Deletion struct {
	ID   string
	kind kind

	e   *Engine
	gen uint64
	ns  string

	note   domain.Note
	folder domain.Folder
	stub   bool
	undo   *policy.Undo

	started *dispatch.Future
	done    *dispatch.Future
}

// Started settles once the item has been hidden, or with the reason it
// could not be.
func (d *Deletion) Started() *dispatch.Future { return d.started }

// Done settles after the remote removal, with its error, or with ErrUndone.
func (d *Deletion) Done() *dispatch.Future { return d.done }

// Undo restores the item if the window is still open.
func (d *Deletion) Undo() *dispatch.Future {
	fut := dispatch.NewFuture()
	d.e.loop.Post(func() {
		if d.undo == nil || !d.undo.Cancel() {
			fut.Resolve(ErrUndoExpired)
			return
		}
		fut.Resolve(nil)
	})
	return fut
}

// Commit ends the window early and issues the removal now.
func (d *Deletion) Commit() {
	d.e.loop.Post(func() {
		if d.undo != nil {
			d.undo.Flush()
		}
	})
}

func (e *Engine) newDeletion(k kind, id string) *Deletion {
	return &Deletion{
		ID:      id,
		kind:    k,
		e:       e,
		started: dispatch.NewFuture(),
		done:    dispatch.NewFuture(),
	}
}

// DeleteNote hides the note and removes it remotely once the undo window
// has elapsed.
func (e *Engine) DeleteNote(id string) *Deletion {
	d := e.newDeletion(kindNote, id)
	e.loop.Post(func() { e.beginDelete(d) })
	return d
}

// DeleteFolder hides the folder together with its notes. Unsaved stubs are
// discarded immediately.
func (e *Engine) DeleteFolder(id string) *Deletion {
	d := e.newDeletion(kindFolder, id)
	e.loop.Post(func() { e.beginDelete(d) })
	return d
}

func (e *Engine) beginDelete(d *Deletion) {
	key := deletionKey(d.kind, d.ID)
	if _, ok := e.deletions[key]; ok {
		err := fmt.Errorf("%s %s: %w", d.kind, d.ID, ErrDeletePending)
		d.started.Resolve(err)
		d.done.Resolve(err)
		return
	}

	switch d.kind {
	case kindNote:
		i := e.remoteNoteIndex(d.ID)
		if i < 0 {
			e.rejectDelete(d)
			return
		}
		d.note = e.remoteNotes[i]
		if e.selectedID == d.ID {
			e.selectedID = ""
		}
	case kindFolder:
		if i := e.stubIndex(d.ID); i >= 0 {
			e.stubs = append(e.stubs[:i], e.stubs[i+1:]...)
			delete(e.editing, d.ID)
			e.publish()
			d.stub = true
			d.started.Resolve(nil)
			d.done.Resolve(nil)
			return
		}
		i := e.remoteFolderIndex(d.ID)
		if i < 0 {
			e.rejectDelete(d)
			return
		}
		d.folder = e.remoteFolders[i]
		if sel := e.selected.Get(); sel != nil && sel.ParentID == d.ID {
			e.selectedID = ""
		}
	}

	d.gen = e.gen
	d.ns = e.ns
	e.deletions[key] = d
	e.publish()
	d.undo = policy.ScheduleUndo(e.loop, e.opts.UndoWindow,
		func() { e.commitDelete(d) },
		func() { e.restoreDelete(d) },
	)
	e.log.Debug().Str("kind", d.kind.String()).Str("id", d.ID).Dur("window", e.opts.UndoWindow).Msg("delete pending")
	d.started.Resolve(nil)
}

func (e *Engine) rejectDelete(d *Deletion) {
	err := fmt.Errorf("%s %s: %w", d.kind, d.ID, domain.ErrNotFoundLocally)
	d.started.Resolve(err)
	d.done.Resolve(err)
}

func (e *Engine) restoreDelete(d *Deletion) {
	if d.gen == e.gen {
		delete(e.deletions, deletionKey(d.kind, d.ID))
		switch d.kind {
		case kindNote:
			if e.remoteNoteIndex(d.ID) < 0 {
				e.remoteNotes = append(e.remoteNotes, d.note)
			}
		case kindFolder:
			if e.remoteFolderIndex(d.ID) < 0 {
				e.remoteFolders = append(e.remoteFolders, d.folder)
			}
		}
		e.publish()
	}
	e.log.Debug().Str("kind", d.kind.String()).Str("id", d.ID).Msg("delete undone")
	d.done.Resolve(ErrUndone)
}

// commitDelete issues the remote removal against the namespace the delete
// was requested in.
func (e *Engine) commitDelete(d *Deletion) {
	switch d.kind {
	case kindNote:
		path := domain.NotePath(d.ns, d.ID)
		e.removeRemote(d, remote.OpRemove, path, func(ctx context.Context) error {
			return e.store.Remove(ctx, path)
		})
	case kindFolder:
		values := map[string]any{remote.Join("folders", d.ID): nil}
		if d.gen == e.gen {
			for _, n := range e.remoteNotes {
				if n.ParentID == d.ID {
					values[remote.Join("notes", n.ID)] = nil
				}
			}
		}
		e.removeRemote(d, remote.OpUpdate, d.ns, func(ctx context.Context) error {
			return e.store.Update(ctx, d.ns, values)
		})
	}
}

func (e *Engine) removeRemote(d *Deletion, op remote.Op, path string, call func(context.Context) error) {
	e.enqueue(op, path, call, func(err error) { e.finishDelete(d, path, err) })
}

// finishDelete drops the tombstone. On failure the item shows up again.
func (e *Engine) finishDelete(d *Deletion, path string, err error) {
	key := deletionKey(d.kind, d.ID)
	if d.gen == e.gen && e.deletions[key] == d {
		delete(e.deletions, key)
		if err == nil {
			switch d.kind {
			case kindNote:
				if i := e.remoteNoteIndex(d.ID); i >= 0 {
					e.remoteNotes = append(e.remoteNotes[:i], e.remoteNotes[i+1:]...)
				}
			case kindFolder:
				if i := e.remoteFolderIndex(d.ID); i >= 0 {
					e.remoteFolders = append(e.remoteFolders[:i], e.remoteFolders[i+1:]...)
				}
				notes := e.remoteNotes[:0]
				for _, n := range e.remoteNotes {
					if n.ParentID != d.ID {
						notes = append(notes, n)
					}
				}
				e.remoteNotes = notes
			}
		}
		e.publish()
	}
	if err != nil {
		e.fail(string(remote.OpRemove), path, err)
	} else {
		e.log.Info().Str("kind", d.kind.String()).Str("id", d.ID).Msg("deleted")
	}
	d.done.Resolve(err)
}
