// editor/session.go
package editor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vinizap/pronode/dispatch"
	"github.com/vinizap/pronode/domain"
	"github.com/vinizap/pronode/reactive"
)

const (
	StatusReady     = "Bereit"
	StatusWritable  = "Bereit zum Schreiben"
	StatusLoading   = "Notiz wird geladen..."
	StatusNotFound  = "Notiz nicht gefunden"
	StatusSaving    = "Speichere..."
	StatusSaved     = "In Echtzeit gespeichert"
	StatusSaveError = "Fehler beim Speichern!"

	WelcomeTitle   = "Willkommen bei ProNode"
	WelcomeContent = "Wähle eine Notiz aus der Sidebar aus oder erstelle eine neue."

	// FallbackTitle replaces a title left blank on blur.
	FallbackTitle = "Unbenannte Notiz"
)

const (
	DefaultQuietPeriod = 700 * time.Millisecond
	DefaultSavedDelay  = 600 * time.Millisecond
	DefaultRetryDelay  = 500 * time.Millisecond
)

// ErrSuperseded settles an Open still looking up its note when another
// note is opened.
var ErrSuperseded = errors.New("superseded by another note")

type State int

const (
	Idle State = iota
	Loaded
	Dirty
	Saving
	Saved
)

func (s State) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Dirty:
		return "dirty"
	case Saving:
		return "saving"
	case Saved:
		return "saved"
	default:
		return "idle"
	}
}

type Options struct {
	// QuietPeriod is how long typing must pause before content is written.
	QuietPeriod time.Duration
	// SavedDelay keeps the saving indicator up after a successful write.
	SavedDelay time.Duration
	// RetryDelay is the wait before looking up a note that was not loaded
	// yet a second time.
	RetryDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.QuietPeriod <= 0 {
		o.QuietPeriod = DefaultQuietPeriod
	}
	if o.SavedDelay <= 0 {
		o.SavedDelay = DefaultSavedDelay
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	return o
}

// Notes is the part of the engine a session edits through.
type Notes interface {
	NoteByID(id string) (domain.Note, bool)
	Select(id string) *dispatch.Future
	Selected() reactive.Readable[*domain.Note]
	UpdateNoteContent(id, content string) *dispatch.Future
	UpdateTitle(id, title string) *dispatch.Future
	SetSaving(saving bool)
}

// Session holds the edit buffer of one open note. Keystrokes land in the
// buffer at once; content reaches the store after a quiet period, titles
// on every valid keystroke.
type Session struct {
	notes Notes
	loop  *dispatch.Loop
	opts  Options
	log   zerolog.Logger

	title        *reactive.Value[string]
	content      *reactive.Value[string]
	status       *reactive.Value[string]
	state        *reactive.Value[State]
	titleInvalid *reactive.Value[bool]

	unwatch func()

	// Owned by the loop.
	noteID        string
	lastPersisted string
	pendingValue  string
	debounce      *dispatch.Timer
	retry         *dispatch.Timer
	retryFut      *dispatch.Future
	savedTimer    *dispatch.Timer
	inflight      int
}

func New(notes Notes, loop *dispatch.Loop, opts Options, log zerolog.Logger) *Session {
	s := &Session{
		notes:        notes,
		loop:         loop,
		opts:         opts.withDefaults(),
		log:          log.With().Str("component", "editor").Logger(),
		title:        reactive.NewValue(""),
		content:      reactive.NewValue(""),
		status:       reactive.NewValue(StatusReady),
		state:        reactive.NewValue(Idle),
		titleInvalid: reactive.NewValue(false),
	}
	s.unwatch = notes.Selected().Changed(func() {
		loop.Post(s.resync)
	})
	return s
}

func (s *Session) Title() reactive.Readable[string] { return s.title }

func (s *Session) Content() reactive.Readable[string] { return s.content }

func (s *Session) Status() reactive.Readable[string] { return s.status }

func (s *Session) State() reactive.Readable[State] { return s.state }

func (s *Session) TitleInvalid() reactive.Readable[bool] { return s.titleInvalid }

// Open loads a note into the buffer. If the note has not arrived yet it is
// looked up once more after the retry delay. The future fails with
// domain.ErrNotFoundLocally when both lookups miss.
func (s *Session) Open(id string) *dispatch.Future {
	fut := dispatch.NewFuture()
	s.loop.Post(func() { s.open(id, fut) })
	return fut
}

func (s *Session) open(id string, fut *dispatch.Future) {
	s.flushPending()
	s.endRetry(ErrSuperseded)
	s.noteID = id
	s.titleInvalid.Set(false)

	if id == domain.WelcomeNoteID {
		s.title.Set(WelcomeTitle)
		s.content.Set(WelcomeContent)
		s.lastPersisted = WelcomeContent
		s.state.Set(Loaded)
		s.status.Set(StatusReady)
		fut.Resolve(nil)
		return
	}

	if n, ok := s.notes.NoteByID(id); ok {
		s.load(n, StatusWritable)
		s.notes.Select(id)
		fut.Resolve(nil)
		return
	}

	s.title.Set("")
	s.content.Set("")
	s.lastPersisted = ""
	s.state.Set(Idle)
	s.status.Set(StatusLoading)
	s.retryFut = fut
	s.retry = s.loop.AfterFunc(s.opts.RetryDelay, func() {
		s.retry, s.retryFut = nil, nil
		if n, ok := s.notes.NoteByID(id); ok {
			s.load(n, StatusWritable)
			s.notes.Select(id)
			fut.Resolve(nil)
			return
		}
		s.log.Warn().Str("note", id).Msg("note not found")
		s.status.Set(StatusNotFound)
		fut.Resolve(fmt.Errorf("note %s: %w", id, domain.ErrNotFoundLocally))
	})
}

// endRetry stops a pending lookup and settles the Open waiting on it.
func (s *Session) endRetry(err error) {
	s.retry.Stop()
	s.retry = nil
	if s.retryFut != nil {
		s.retryFut.Resolve(err)
		s.retryFut = nil
	}
}

func (s *Session) load(n domain.Note, status string) {
	s.title.Set(n.Title)
	s.content.Set(n.Content)
	s.lastPersisted = n.Content
	s.titleInvalid.Set(false)
	s.state.Set(Loaded)
	s.status.Set(status)
}

func (s *Session) editable() bool {
	return s.noteID != "" && s.noteID != domain.WelcomeNoteID && s.state.Get() != Idle
}

// Change replaces the buffered content and restarts the quiet period.
func (s *Session) Change(content string) {
	s.loop.Post(func() {
		s.content.Set(content)
		if !s.editable() {
			return
		}
		s.pendingValue = content
		s.state.Set(Dirty)
		s.debounce.Stop()
		s.debounce = s.loop.AfterFunc(s.opts.QuietPeriod, s.settle)
	})
}

func (s *Session) settle() {
	s.debounce = nil
	if s.pendingValue == s.lastPersisted {
		s.state.Set(Loaded)
		return
	}
	s.persist(s.noteID, s.pendingValue)
}

// flushPending writes a debounced edit right away, to the note it was
// typed into.
func (s *Session) flushPending() *dispatch.Future {
	if !s.debounce.Stop() {
		return nil
	}
	s.debounce = nil
	if s.pendingValue == s.lastPersisted {
		return nil
	}
	return s.persist(s.noteID, s.pendingValue)
}

func (s *Session) persist(id, value string) *dispatch.Future {
	s.inflight++
	s.savedTimer.Stop()
	s.state.Set(Saving)
	s.status.Set(StatusSaving)
	s.notes.SetSaving(true)

	fut := s.notes.UpdateNoteContent(id, value)
	fut.OnSettle(func(err error) {
		s.inflight--
		current := id == s.noteID
		if err != nil {
			s.log.Error().Err(err).Str("note", id).Msg("autosave failed")
			s.notes.SetSaving(false)
			if current {
				s.status.Set(StatusSaveError)
				if s.inflight == 0 && !s.debounce.Active() {
					s.state.Set(Dirty)
				}
			}
			return
		}
		if current {
			s.lastPersisted = value
			s.status.Set(StatusSaved)
			if s.inflight == 0 && !s.debounce.Active() {
				s.state.Set(Saved)
			}
		}
		s.savedTimer = s.loop.AfterFunc(s.opts.SavedDelay, func() {
			s.notes.SetSaving(false)
			if s.state.Get() == Saved {
				s.state.Set(Loaded)
			}
		})
	})
	return fut
}

// Save writes the buffered content immediately.
func (s *Session) Save() *dispatch.Future {
	fut := dispatch.NewFuture()
	s.loop.Post(func() {
		if !s.editable() {
			fut.Resolve(nil)
			return
		}
		s.debounce.Stop()
		s.debounce = nil
		s.persist(s.noteID, s.content.Get()).OnSettle(fut.Resolve)
	})
	return fut
}

// SetTitle writes a non-blank title through at once. A blank one only
// marks the title invalid.
func (s *Session) SetTitle(title string) *dispatch.Future {
	fut := dispatch.NewFuture()
	s.loop.Post(func() {
		s.title.Set(title)
		if strings.TrimSpace(title) == "" {
			s.titleInvalid.Set(true)
			fut.Resolve(nil)
			return
		}
		s.titleInvalid.Set(false)
		s.writeTitle(title, fut)
	})
	return fut
}

// BlurTitle replaces a blank title with FallbackTitle and persists it.
func (s *Session) BlurTitle() *dispatch.Future {
	fut := dispatch.NewFuture()
	s.loop.Post(func() {
		if strings.TrimSpace(s.title.Get()) != "" {
			fut.Resolve(nil)
			return
		}
		s.title.Set(FallbackTitle)
		s.titleInvalid.Set(false)
		s.writeTitle(FallbackTitle, fut)
	})
	return fut
}

func (s *Session) writeTitle(title string, fut *dispatch.Future) {
	if !s.editable() {
		fut.Resolve(nil)
		return
	}
	id := s.noteID
	s.notes.UpdateTitle(id, title).OnSettle(func(err error) {
		if err != nil {
			s.log.Error().Err(err).Str("note", id).Msg("title update failed")
			if id == s.noteID {
				s.status.Set(StatusSaveError)
			}
		}
		fut.Resolve(err)
	})
}

// resync follows the selected note. A different note replaces the buffer;
// a changed copy of the open note is applied unless a local edit is still
// waiting for its quiet period or being written.
func (s *Session) resync() {
	n := s.notes.Selected().Get()
	if n == nil {
		if s.editable() {
			if _, ok := s.notes.NoteByID(s.noteID); !ok {
				s.reset()
			}
		}
		return
	}
	if n.ID != s.noteID {
		s.flushPending()
		s.endRetry(ErrSuperseded)
		s.noteID = n.ID
		s.load(*n, StatusReady)
		return
	}
	if s.state.Get() == Idle {
		// A pending lookup got its note through the selection.
		s.load(*n, StatusWritable)
		s.endRetry(nil)
		return
	}
	if s.debounce.Active() || s.inflight > 0 {
		return
	}
	if !s.titleInvalid.Get() && n.Title != s.title.Get() {
		s.title.Set(n.Title)
	}
	if n.Content != s.content.Get() {
		s.content.Set(n.Content)
		s.state.Set(Loaded)
	}
	s.lastPersisted = n.Content
}

func (s *Session) reset() {
	s.debounce.Stop()
	s.debounce = nil
	s.endRetry(ErrSuperseded)
	s.noteID = ""
	s.lastPersisted = ""
	s.title.Set("")
	s.content.Set("")
	s.titleInvalid.Set(false)
	s.state.Set(Idle)
	s.status.Set(StatusReady)
}

// Close writes any pending edit and detaches from the selection. The
// future settles with the outcome of that last write.
func (s *Session) Close() *dispatch.Future {
	fut := dispatch.NewFuture()
	s.loop.Post(func() {
		if s.unwatch != nil {
			s.unwatch()
			s.unwatch = nil
		}
		s.endRetry(ErrSuperseded)
		last := s.flushPending()
		if last == nil {
			if s.savedTimer.Stop() {
				s.notes.SetSaving(false)
			}
			s.noteID = ""
			s.state.Set(Idle)
			fut.Resolve(nil)
			return
		}
		last.OnSettle(func(err error) {
			s.noteID = ""
			s.state.Set(Idle)
			fut.Resolve(err)
		})
	})
	return fut
}
