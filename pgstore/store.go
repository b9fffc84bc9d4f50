// pgstore/store.go
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/vinizap/pronode/remote"
)

// Channel is the NOTIFY channel every commit announces its root path on.
const Channel = "pronode_nodes"

const (
	selectSubtree = `SELECT path, value FROM nodes WHERE $1 = '' OR path = $1 OR starts_with(path, $1 || '/')`
	deleteSubtree = `DELETE FROM nodes WHERE $1 = '' OR path = $1 OR starts_with(path, $1 || '/')`
	deletePaths   = `DELETE FROM nodes WHERE path = ANY($1)`
	insertLeaf    = `INSERT INTO nodes (path, value) VALUES ($1, $2) ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value`
	notify        = `SELECT pg_notify($1, $2)`
	lockShared    = `SELECT pg_advisory_xact_lock_shared(hashtext($1 || ':' || $2))`
	lockExclusive = `SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`
)

// lockDepth is how many leading segments of a commit root its exclusive
// lock covers. Commits below different prefixes of that depth run
// concurrently.
const lockDepth = 2

// Store is a remote.Store kept in PostgreSQL, one row per scalar leaf.
// Subscribers are called from a single goroutine in notification order and
// must not call back into the store.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger

	reconnectDelay time.Duration

	deliver sync.Mutex

	mu   sync.Mutex
	subs map[uint64]*subscription
	next uint64

	cancel context.CancelFunc
	done   chan struct{}
}

type subscription struct {
	path    string
	orderBy string
	fn      func(remote.Snapshot)
	closed  bool
}

// Open migrates the schema, connects a pool and starts listening for
// changes. Close releases everything.
func Open(ctx context.Context, databaseURL string, log zerolog.Logger) (*Store, error) {
	if err := Migrate(databaseURL); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", mapError(err))
	}

	lctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		pool:           pool,
		log:            log.With().Str("component", "pgstore").Logger(),
		reconnectDelay: 5 * time.Second,
		subs:           map[uint64]*subscription{},
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	go s.listen(lctx)
	return s, nil
}

func (s *Store) Close() {
	s.cancel()
	<-s.done
	s.pool.Close()
}

// read loads the tree at path.
func (s *Store) read(ctx context.Context, path string) (any, error) {
	rows, err := s.pool.Query(ctx, selectSubtree, path)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	leaves := map[string]json.RawMessage{}
	for rows.Next() {
		var p string
		var raw []byte
		if err := rows.Scan(&p, &raw); err != nil {
			return nil, mapError(err)
		}
		leaves[p] = raw
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return remote.Unflatten(path, leaves)
}

func (s *Store) Get(ctx context.Context, path string) (remote.Snapshot, error) {
	path, err := remote.Clean(path)
	if err != nil {
		return remote.Snapshot{}, err
	}
	tree, err := s.read(ctx, path)
	if err != nil {
		return remote.Snapshot{}, err
	}
	return remote.MakeSnapshot(path, tree, "")
}

func (s *Store) Subscribe(ctx context.Context, path, orderBy string, fn func(remote.Snapshot)) (func(), error) {
	path, err := remote.Clean(path)
	if err != nil {
		return nil, err
	}

	s.deliver.Lock()
	defer s.deliver.Unlock()

	sub := &subscription{path: path, orderBy: orderBy, fn: fn}
	snap, err := s.snapshot(ctx, sub)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.next++
	id := s.next
	s.subs[id] = sub
	s.mu.Unlock()
	fn(snap)

	return func() {
		s.mu.Lock()
		sub.closed = true
		delete(s.subs, id)
		s.mu.Unlock()
	}, nil
}

func (s *Store) snapshot(ctx context.Context, sub *subscription) (remote.Snapshot, error) {
	tree, err := s.read(ctx, sub.path)
	if err != nil {
		return remote.Snapshot{}, err
	}
	return remote.MakeSnapshot(sub.path, tree, sub.orderBy)
}

type change struct {
	path   string
	leaves map[string]json.RawMessage
}

func (s *Store) Write(ctx context.Context, path string, value any) error {
	segs, err := remote.Split(path)
	if err != nil {
		return remote.AsWriteError(remote.OpWrite, path, err)
	}
	if len(segs) == 0 {
		return &remote.WriteError{Op: remote.OpWrite, Path: path, Err: fmt.Errorf("%w: cannot replace the root", remote.ErrInvalidPath)}
	}
	path = strings.Join(segs, "/")
	c, err := prepare(path, value)
	if err != nil {
		return remote.AsWriteError(remote.OpWrite, path, err)
	}
	return remote.AsWriteError(remote.OpWrite, path, s.commit(ctx, path, []change{c}))
}

func (s *Store) Update(ctx context.Context, root string, values map[string]any) error {
	root, err := remote.Clean(root)
	if err != nil {
		return remote.AsWriteError(remote.OpUpdate, root, err)
	}
	changes := make([]change, 0, len(values))
	for rel, value := range values {
		segs, err := remote.Split(rel)
		if err != nil || len(segs) == 0 {
			return &remote.WriteError{Op: remote.OpUpdate, Path: root, Err: fmt.Errorf("%w: %q", remote.ErrInvalidPath, rel)}
		}
		c, err := prepare(remote.Join(root, strings.Join(segs, "/")), value)
		if err != nil {
			return remote.AsWriteError(remote.OpUpdate, root, err)
		}
		changes = append(changes, c)
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].path < changes[j].path })
	for i := 1; i < len(changes); i++ {
		if remote.Within(changes[i].path, changes[i-1].path) {
			return &remote.WriteError{Op: remote.OpUpdate, Path: root, Err: fmt.Errorf("%w: %q overlaps %q", remote.ErrInvalidPath, changes[i].path, changes[i-1].path)}
		}
	}
	return remote.AsWriteError(remote.OpUpdate, root, s.commit(ctx, root, changes))
}

func (s *Store) Remove(ctx context.Context, path string) error {
	path, err := remote.Clean(path)
	if err != nil {
		return remote.AsWriteError(remote.OpRemove, path, err)
	}
	return remote.AsWriteError(remote.OpRemove, path, s.commit(ctx, path, []change{{path: path}}))
}

func prepare(path string, value any) (change, error) {
	v, err := remote.Normalize(value)
	if err != nil {
		return change{}, err
	}
	leaves, err := remote.Flatten(path, v)
	if err != nil {
		return change{}, err
	}
	return change{path: path, leaves: leaves}, nil
}

// ancestors lists the proper prefixes of path. A leaf stored at any of them
// would shadow the new subtree.
func ancestors(path string) []string {
	segs := strings.Split(path, "/")
	out := make([]string, 0, len(segs))
	for i := 1; i < len(segs); i++ {
		out = append(out, strings.Join(segs[:i], "/"))
	}
	return out
}

// locks returns the advisory locks a commit at root holds, shallowest
// first: shared on every enclosing prefix and exclusive on root cut to
// lockDepth segments.
func locks(root string) (shared []string, exclusive string) {
	var segs []string
	if root != "" {
		segs = strings.Split(root, "/")
	}
	if len(segs) > lockDepth {
		segs = segs[:lockDepth]
	}
	for i := range segs {
		shared = append(shared, strings.Join(segs[:i], "/"))
	}
	return shared, strings.Join(segs, "/")
}

// commit replaces every change's subtree in one transaction and announces
// root once it is visible. Overlapping commits are serialized so a subtree
// never ends up with leaves from two writers.
func (s *Store) commit(ctx context.Context, root string, changes []change) error {
	shared, exclusive := locks(root)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, key := range shared {
			if _, err := tx.Exec(ctx, lockShared, Channel, key); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, lockExclusive, Channel, exclusive); err != nil {
			return err
		}
		for _, c := range changes {
			if _, err := tx.Exec(ctx, deleteSubtree, c.path); err != nil {
				return err
			}
			if anc := ancestors(c.path); len(anc) > 0 {
				if _, err := tx.Exec(ctx, deletePaths, anc); err != nil {
					return err
				}
			}
			for p, raw := range c.leaves {
				if _, err := tx.Exec(ctx, insertLeaf, p, []byte(raw)); err != nil {
					return err
				}
			}
		}
		_, err := tx.Exec(ctx, notify, Channel, root)
		return err
	})
	return mapError(err)
}
