// engine/engine.go
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/vinizap/pronode/dispatch"
	"github.com/vinizap/pronode/domain"
	"github.com/vinizap/pronode/identity"
	"github.com/vinizap/pronode/reactive"
	"github.com/vinizap/pronode/remote"
)

const (
	DefaultUndoWindow       = 5 * time.Second
	DefaultResubscribeDelay = 5 * time.Second
)

type Options struct {
	// UndoWindow is how long a delete can be undone before the remote
	// removal is issued.
	UndoWindow       time.Duration
	ResubscribeDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.UndoWindow <= 0 {
		o.UndoWindow = DefaultUndoWindow
	}
	if o.ResubscribeDelay <= 0 {
		o.ResubscribeDelay = DefaultResubscribeDelay
	}
	return o
}

// Failure describes the last remote operation that was rejected.
type Failure struct {
	Op   string
	Path string
	Err  error
	At   time.Time
}

// Engine owns the canonical folders and notes of the active namespace and
// keeps them reconciled with the remote store. Its public methods may be
// called from any goroutine; the work itself runs on the loop.
type Engine struct {
	store remote.Store
	ids   identity.Provider
	loop  *dispatch.Loop
	log   zerolog.Logger
	opts  Options

	ctx     context.Context
	cancel  context.CancelFunc
	detach  func() bool
	unwatch func()

	folders   *reactive.Value[[]domain.Folder]
	notes     *reactive.Value[[]domain.Note]
	visible   *reactive.Computed[[]domain.FolderView]
	selected  *reactive.Value[*domain.Note]
	saving    *reactive.Value[bool]
	failure   *reactive.Value[*Failure]
	namespace *reactive.Value[string]
	synced    *reactive.Value[bool]

	// Everything below belongs to the loop.
	started       bool
	ns            string
	gen           uint64
	cancels       []func()
	remoteFolders []domain.Folder
	remoteNotes   []domain.Note
	gotFolders    bool
	gotNotes      bool
	stubs         []domain.Folder
	editing       map[string]bool
	deletions     map[string]*Deletion
	selectedID    string
	// tail closes once the most recently issued remote call has returned.
	tail chan struct{}
}

func New(store remote.Store, ids identity.Provider, loop *dispatch.Loop, opts Options, log zerolog.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:     store,
		ids:       ids,
		loop:      loop,
		log:       log.With().Str("component", "engine").Logger(),
		opts:      opts.withDefaults(),
		ctx:       ctx,
		cancel:    cancel,
		folders:   reactive.NewValue[[]domain.Folder](nil),
		notes:     reactive.NewValue[[]domain.Note](nil),
		selected:  reactive.NewValue[*domain.Note](nil),
		saving:    reactive.NewValue(false),
		failure:   reactive.NewValue[*Failure](nil),
		namespace: reactive.NewValue(""),
		synced:    reactive.NewValue(false),
		editing:   map[string]bool{},
		deletions: map[string]*Deletion{},
	}
	e.visible = reactive.NewComputed(func() []domain.FolderView {
		return joinFolders(e.folders.Get(), e.notes.Get())
	}, e.folders, e.notes)
	return e
}

// Start subscribes to the namespace of the current principal and follows
// every later principal change. Cancelling ctx aborts remote calls still
// in flight.
func (e *Engine) Start(ctx context.Context) {
	e.detach = context.AfterFunc(ctx, e.cancel)
	e.unwatch = e.ids.Watch(func(p *domain.Principal) {
		ns := domain.Namespace(p)
		e.loop.Post(func() { e.switchNamespace(ns) })
	})
	e.loop.Post(func() { e.switchNamespace(domain.Namespace(e.ids.Current())) })
}

// Close commits pending deletions, waits for them and drops the
// subscriptions. It must not be called from the loop.
func (e *Engine) Close(ctx context.Context) error {
	if e.unwatch != nil {
		e.unwatch()
	}
	var pending []*dispatch.Future
	err := e.loop.Do(ctx, func() {
		for _, d := range e.deletions {
			if d.undo != nil && d.undo.Flush() {
				pending = append(pending, d.done)
			}
		}
		for _, cancel := range e.cancels {
			cancel()
		}
		e.cancels = nil
		e.gen++
	})
	for _, f := range pending {
		if werr := f.Wait(ctx); werr != nil && err == nil {
			err = werr
		}
	}
	e.cancel()
	if e.detach != nil {
		e.detach()
	}
	return err
}

func (e *Engine) Folders() reactive.Readable[[]domain.Folder] { return e.folders }

func (e *Engine) Notes() reactive.Readable[[]domain.Note] { return e.notes }

// VisibleFolders joins notes into their folders.
func (e *Engine) VisibleFolders() reactive.Readable[[]domain.FolderView] { return e.visible }

func (e *Engine) Selected() reactive.Readable[*domain.Note] { return e.selected }

func (e *Engine) Saving() reactive.Readable[bool] { return e.saving }

func (e *Engine) LastFailure() reactive.Readable[*Failure] { return e.failure }

func (e *Engine) Namespace() reactive.Readable[string] { return e.namespace }

// Synced reports whether both collections of the current namespace have
// received their first snapshot.
func (e *Engine) Synced() reactive.Readable[bool] { return e.synced }

func (e *Engine) Loop() *dispatch.Loop { return e.loop }

func (e *Engine) WaitSynced(ctx context.Context) error {
	ready := make(chan struct{}, 1)
	cancel := e.synced.Watch(func(ok bool) {
		if ok {
			select {
			case ready <- struct{}{}:
			default:
			}
		}
	})
	defer cancel()
	if e.synced.Get() {
		return nil
	}
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) switchNamespace(ns string) {
	if e.started && ns == e.ns {
		return
	}
	e.started = true

	// Deletions in flight belong to the old namespace; finish them there.
	for _, d := range e.deletions {
		if d.undo != nil {
			d.undo.Flush()
		}
	}
	for _, cancel := range e.cancels {
		cancel()
	}
	e.cancels = nil
	e.gen++
	e.ns = ns
	e.remoteFolders = nil
	e.remoteNotes = nil
	e.gotFolders = false
	e.gotNotes = false
	e.stubs = nil
	e.editing = map[string]bool{}
	e.deletions = map[string]*Deletion{}
	e.selectedID = ""

	e.namespace.Set(ns)
	e.synced.Set(false)
	e.publish()

	e.log.Info().Str("namespace", ns).Uint64("generation", e.gen).Msg("subscribing")
	e.subscribe(e.gen, ns)
}

func (e *Engine) subscribe(gen uint64, ns string) {
	ctx := e.ctx
	go func() {
		cancelFolders, err := e.store.Subscribe(ctx, domain.FoldersPath(ns), "position", func(s remote.Snapshot) {
			e.loop.Post(func() { e.reconcileFolders(gen, s) })
		})
		if err != nil {
			e.loop.Post(func() { e.subscribeFailed(gen, ns, err) })
			return
		}
		cancelNotes, err := e.store.Subscribe(ctx, domain.NotesPath(ns), "", func(s remote.Snapshot) {
			e.loop.Post(func() { e.reconcileNotes(gen, s) })
		})
		if err != nil {
			cancelFolders()
			e.loop.Post(func() { e.subscribeFailed(gen, ns, err) })
			return
		}
		e.loop.Post(func() {
			if gen != e.gen {
				cancelFolders()
				cancelNotes()
				return
			}
			e.cancels = append(e.cancels, cancelFolders, cancelNotes)
		})
	}()
}

func (e *Engine) subscribeFailed(gen uint64, ns string, err error) {
	if gen != e.gen {
		return
	}
	e.fail(string(remote.OpSubscribe), ns, err)
	e.loop.AfterFunc(e.opts.ResubscribeDelay, func() {
		if gen == e.gen {
			e.subscribe(gen, ns)
		}
	})
}

func (e *Engine) fail(op, path string, err error) {
	e.log.Error().Err(err).Str("op", op).Str("path", path).Msg("remote operation failed")
	e.failure.Set(&Failure{Op: op, Path: path, Err: err, At: e.loop.Clock().Now()})
}

// write runs call off the loop and settles fut back on it.
func (e *Engine) write(fut *dispatch.Future, op remote.Op, path string, call func(context.Context) error) {
	e.enqueue(op, path, call, func(err error) {
		if err != nil {
			e.fail(string(op), path, err)
		}
		fut.Resolve(err)
	})
}

// enqueue issues call after every remote call enqueued before it has
// returned, so the store applies mutations in the order they were made.
// settle runs on the loop. Must be called from the loop.
func (e *Engine) enqueue(op remote.Op, path string, call func(context.Context) error, settle func(error)) {
	ctx := e.ctx
	prev := e.tail
	done := make(chan struct{})
	e.tail = done
	go func() {
		defer close(done)
		if prev != nil {
			select {
			case <-prev:
			case <-ctx.Done():
			}
		}
		err := remote.AsWriteError(op, path, call(ctx))
		e.loop.Post(func() { settle(err) })
	}()
}
