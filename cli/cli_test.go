package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/rs/zerolog"
	"github.com/vinizap/pronode/auth"
	"github.com/vinizap/pronode/config"
	"github.com/vinizap/pronode/domain"
	"github.com/vinizap/pronode/engine"
	"github.com/vinizap/pronode/remote"
)

func memoryConnector(store *remote.Memory, p *domain.Principal) Connector {
	return func(context.Context, config.Config, zerolog.Logger) (remote.Store, *domain.Principal, func(), error) {
		return store, p, func() {}, nil
	}
}

func testConfig() config.Config {
	return config.Config{
		UndoWindow:   time.Minute,
		AutosaveWait: time.Minute,
		JWTSecret:    "test-secret",
	}
}

// cancelOn cancels when a write contains marker.
type cancelOn struct {
	bytes.Buffer
	marker string
	cancel context.CancelFunc
}

func (w *cancelOn) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte(w.marker)) {
		w.cancel()
	}
	return w.Buffer.Write(p)
}

func runWith(t *testing.T, ctx context.Context, store *remote.Memory, out io.Writer, args ...string) error {
	t.Helper()
	app := &App{Config: testConfig(), Log: zerolog.Nop(), Connect: memoryConnector(store, nil)}
	cmd := NewRootCmd(app)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func run(t *testing.T, store *remote.Memory, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var out bytes.Buffer
	err := runWith(t, ctx, store, &out, args...)
	return out.String(), err
}

func mustRun(t *testing.T, store *remote.Memory, args ...string) string {
	t.Helper()
	out, err := run(t, store, args...)
	if err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out
}

func TestFolderAndNoteCommands(t *testing.T) {
	store := remote.NewMemory()

	assert.Equal(t, mustRun(t, store, "tree"), "(no folders)\n")

	work := strings.TrimSpace(mustRun(t, store, "folder", "add", "Arbeit"))
	home := strings.TrimSpace(mustRun(t, store, "folder", "add", "Privat"))
	note := strings.TrimSpace(mustRun(t, store, "note", "add", work, "Protokoll", "--content", "erste Zeile"))

	assert.Equal(t, mustRun(t, store, "tree"),
		"Privat  ["+home+"]\nArbeit  ["+work+"]\n  - Protokoll  ["+note+"]\n")

	assert.Equal(t, mustRun(t, store, "note", "show", note), "# Protokoll\n\nerste Zeile\n")

	mustRun(t, store, "folder", "move", "1", "0")
	mustRun(t, store, "folder", "rename", home, "Zuhause")
	mustRun(t, store, "note", "mv", note, home)
	assert.Equal(t, mustRun(t, store, "tree"),
		"Arbeit  ["+work+"]\nZuhause  ["+home+"]\n  - Protokoll  ["+note+"]\n")
}

func TestNoteEditGoesThroughEditor(t *testing.T) {
	store := remote.NewMemory()
	folder := strings.TrimSpace(mustRun(t, store, "folder", "add", "Inbox"))
	note := strings.TrimSpace(mustRun(t, store, "note", "add", folder, "Alt"))

	out := mustRun(t, store, "note", "edit", note, "--title", "Neu", "--content", "Inhalt")
	assert.Equal(t, out, "In Echtzeit gespeichert\n")
	assert.Equal(t, mustRun(t, store, "note", "show", note), "# Neu\n\nInhalt\n")

	_, err := run(t, store, "note", "edit", "missing", "--content", "x")
	assert.Equal(t, errors.Is(err, domain.ErrNotFoundLocally), true)
}

func TestRemoveNow(t *testing.T) {
	store := remote.NewMemory()
	folder := strings.TrimSpace(mustRun(t, store, "folder", "add", "Inbox"))
	note := strings.TrimSpace(mustRun(t, store, "note", "add", folder, "Weg"))

	mustRun(t, store, "note", "rm", note, "--now")
	snap, err := store.Get(context.Background(), domain.NotePath("public", note))
	assert.Equal(t, err, nil)
	assert.Equal(t, snap.Exists, false)

	mustRun(t, store, "folder", "rm", folder, "--now")
	assert.Equal(t, mustRun(t, store, "tree"), "(no folders)\n")

	_, err = run(t, store, "note", "rm", "nope", "--now")
	assert.NotEqual(t, err, nil)
}

func TestRemoveUndoneByInterrupt(t *testing.T) {
	store := remote.NewMemory()
	folder := strings.TrimSpace(mustRun(t, store, "folder", "add", "Inbox"))
	note := strings.TrimSpace(mustRun(t, store, "note", "add", folder, "Bleibt"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	interrupted, interrupt := context.WithCancel(ctx)
	out := &cancelOn{marker: "Ctrl-C", cancel: interrupt}

	assert.Equal(t, runWith(t, interrupted, store, out, "note", "rm", note), nil)
	assert.Equal(t, strings.Contains(out.String(), `note "Bleibt" restored`), true)

	snap, err := store.Get(ctx, domain.NotePath("public", note))
	assert.Equal(t, err, nil)
	assert.Equal(t, snap.Exists, true)
}

func TestQuickNoteCreatesFolderWhenEmpty(t *testing.T) {
	store := remote.NewMemory()
	note := strings.TrimSpace(mustRun(t, store, "note", "quick", "Idee"))
	tree := mustRun(t, store, "tree")
	assert.Equal(t, strings.HasPrefix(tree, "Notizen  ["), true)
	assert.Equal(t, strings.Contains(tree, "  - Idee  ["+note+"]\n"), true)
}

func TestExportImport(t *testing.T) {
	src := remote.NewMemory()
	a := strings.TrimSpace(mustRun(t, src, "folder", "add", "A"))
	mustRun(t, src, "folder", "add", "B")
	mustRun(t, src, "note", "add", a, "Eins", "--content", "1")
	mustRun(t, src, "note", "add", a, "Zwei", "--content", "2")

	dir := t.TempDir()
	assert.Equal(t, mustRun(t, src, "export", dir), "exported 2 folders, 2 notes\n")

	dst := remote.NewMemory()
	assert.Equal(t, mustRun(t, dst, "import", dir), "imported 2 folders, 2 notes\n")
	assert.Equal(t, mustRun(t, dst, "tree"), mustRun(t, src, "tree"))

	// Importing again overwrites instead of duplicating.
	mustRun(t, dst, "import", dir)
	assert.Equal(t, mustRun(t, dst, "tree"), mustRun(t, src, "tree"))
}

func TestTokenCommand(t *testing.T) {
	out := mustRun(t, remote.NewMemory(), "token", "--uid", "42", "--email", "ada@example.com")
	p, err := auth.New("test-secret", "").ParseToken(strings.TrimSpace(out))
	assert.Equal(t, err, nil)
	assert.Equal(t, p.UID, "42")
	assert.Equal(t, p.Email, "ada@example.com")
}

func TestAccountDeleteNeedsAccount(t *testing.T) {
	store := remote.NewMemory()
	_, err := run(t, store, "account", "delete")
	assert.NotEqual(t, err, nil)
	_, err = run(t, store, "account", "delete", "--yes")
	assert.Equal(t, errors.Is(err, engine.ErrNoAccount), true)
	assert.Equal(t, mustRun(t, store, "account", "show"), "Gast\tpublic\n")
}
