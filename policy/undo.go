// policy/undo.go
package policy

import (
	"time"

	"github.com/vinizap/pronode/dispatch"
)

type UndoState int

const (
	UndoPending UndoState = iota
	UndoCommitted
	UndoCanceled
)

// Undo holds an optimistic action open for a window. The commit callback
// runs once the window elapses (or on Flush); restore runs on Cancel. At
// most one of them ever runs. All methods belong to the loop.
type Undo struct {
	timer   *dispatch.Timer
	state   UndoState
	commit  func()
	restore func()
}

func ScheduleUndo(loop *dispatch.Loop, window time.Duration, commit, restore func()) *Undo {
	u := &Undo{commit: commit, restore: restore}
	u.timer = loop.AfterFunc(window, func() { u.finish() })
	return u
}

func (u *Undo) State() UndoState { return u.state }

// Cancel restores and reports true if the window was still open.
func (u *Undo) Cancel() bool {
	if u.state != UndoPending {
		return false
	}
	u.timer.Stop()
	u.state = UndoCanceled
	u.restore()
	return true
}

// Flush commits immediately if still pending.
func (u *Undo) Flush() bool {
	if u.state != UndoPending {
		return false
	}
	u.timer.Stop()
	u.finish()
	return true
}

func (u *Undo) finish() {
	if u.state != UndoPending {
		return
	}
	u.state = UndoCommitted
	u.commit()
}
