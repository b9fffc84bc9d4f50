package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/vinizap/pronode/domain"
	"github.com/vinizap/pronode/remote"
)

func publicOnly(p *domain.Principal, path string) error {
	if remote.Within(path, domain.PublicNamespace) {
		return nil
	}
	return remote.ErrPermissionDenied
}

type testServer struct {
	hub   *Hub
	store *remote.Memory
	url   string
	conns chan *websocket.Conn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ts := &testServer{store: remote.NewMemory(), conns: make(chan *websocket.Conn, 8)}
	ts.hub = NewHub(ts.store, publicOnly, zerolog.Nop())
	go ts.hub.Run(ctx)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.conns <- conn
		ts.hub.Serve(conn, nil)
	}))
	t.Cleanup(srv.Close)
	ts.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return ts
}

func dialTest(t *testing.T, ts *testServer) (*Client, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	c, err := Dial(ctx, ts.url, ClientOptions{ReconnectDelay: 20 * time.Millisecond}, zerolog.Nop())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, ctx
}

func childKeys(s remote.Snapshot) []string {
	keys := make([]string, 0, len(s.Children))
	for _, c := range s.Children {
		keys = append(keys, c.Key)
	}
	return keys
}

func next(t *testing.T, ctx context.Context, ch <-chan remote.Snapshot) remote.Snapshot {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-ctx.Done():
		t.Fatalf("no snapshot arrived")
		return remote.Snapshot{}
	}
}

func TestSubscribeThroughHub(t *testing.T) {
	ts := newTestServer(t)
	c, ctx := dialTest(t, ts)

	snaps := make(chan remote.Snapshot, 16)
	cancel, err := c.Subscribe(ctx, "public/folders", "position", func(s remote.Snapshot) { snaps <- s })
	assert.Equal(t, err, nil)
	defer cancel()

	first := next(t, ctx, snaps)
	assert.Equal(t, first.Exists, false)

	assert.Equal(t, c.Write(ctx, "public/folders/b", map[string]any{"name": "B", "position": 1}), nil)
	assert.Equal(t, c.Write(ctx, "public/folders/a", map[string]any{"name": "A", "position": 2}), nil)
	next(t, ctx, snaps)
	second := next(t, ctx, snaps)
	assert.Equal(t, childKeys(second), []string{"b", "a"})

	got, err := c.Get(ctx, "public/folders/a/name")
	assert.Equal(t, err, nil)
	assert.Equal(t, string(got.Value), `"A"`)
}

func TestUpdateAndRemoveThroughHub(t *testing.T) {
	ts := newTestServer(t)
	c, ctx := dialTest(t, ts)

	err := c.Update(ctx, "public", map[string]any{
		"folders/x": map[string]any{"name": "X", "position": 0},
		"notes/n1":  map[string]any{"title": "T", "parentId": "x"},
	})
	assert.Equal(t, err, nil)

	err = c.Update(ctx, "public", map[string]any{"notes": nil, "notes/n1/title": "U"})
	assert.Equal(t, errors.Is(err, remote.ErrInvalidPath), true)

	assert.Equal(t, c.Update(ctx, "public", map[string]any{"folders/x": nil, "notes/n1": nil}), nil)
	snap, err := ts.store.Get(ctx, "public")
	assert.Equal(t, err, nil)
	assert.Equal(t, snap.Exists, false)

	assert.Equal(t, c.Write(ctx, "public/notes/n2", map[string]any{"title": "N"}), nil)
	assert.Equal(t, c.Remove(ctx, "public/notes/n2"), nil)
	snap, _ = ts.store.Get(ctx, "public/notes/n2")
	assert.Equal(t, snap.Exists, false)
}

func TestHubRejectsForeignNamespace(t *testing.T) {
	ts := newTestServer(t)
	c, ctx := dialTest(t, ts)

	err := c.Write(ctx, "users/7/notes/x", map[string]any{"title": "nope"})
	assert.Equal(t, errors.Is(err, remote.ErrPermissionDenied), true)
	var we *remote.WriteError
	assert.Equal(t, errors.As(err, &we), true)
	assert.Equal(t, we.Path, "users/7/notes/x")

	_, err = c.Subscribe(ctx, "users/7", "", func(remote.Snapshot) {})
	assert.Equal(t, errors.Is(err, remote.ErrPermissionDenied), true)
}

func TestClientResubscribesAfterReconnect(t *testing.T) {
	ts := newTestServer(t)
	c, ctx := dialTest(t, ts)

	snaps := make(chan remote.Snapshot, 16)
	cancel, err := c.Subscribe(ctx, "public/notes", "", func(s remote.Snapshot) { snaps <- s })
	assert.Equal(t, err, nil)
	defer cancel()
	next(t, ctx, snaps)

	first := <-ts.conns
	first.Close()

	// The resubscription delivers the current value again.
	next(t, ctx, snaps)
	assert.Equal(t, ts.store.Write(ctx, "public/notes/after", map[string]any{"title": "wieder da"}), nil)
	snap := next(t, ctx, snaps)
	assert.Equal(t, childKeys(snap), []string{"after"})
}

func TestClientFailsFastWhenOffline(t *testing.T) {
	ts := newTestServer(t)
	c, ctx := dialTest(t, ts)
	c.Close()

	err := c.Write(ctx, "public/x", 1)
	assert.Equal(t, errors.Is(err, remote.ErrOffline), true)
}
