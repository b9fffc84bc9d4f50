// cli/root.go
package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/vinizap/pronode/auth"
	"github.com/vinizap/pronode/config"
	"github.com/vinizap/pronode/dispatch"
	"github.com/vinizap/pronode/domain"
	"github.com/vinizap/pronode/engine"
	"github.com/vinizap/pronode/identity"
	"github.com/vinizap/pronode/remote"
	"github.com/vinizap/pronode/ws"
)

// Connector opens the store a command works against and reports who the
// caller is. close releases the store.
type Connector func(ctx context.Context, cfg config.Config, log zerolog.Logger) (store remote.Store, p *domain.Principal, close func(), err error)

// DialServer connects to cfg.ServerURL over the websocket protocol.
func DialServer(ctx context.Context, cfg config.Config, log zerolog.Logger) (remote.Store, *domain.Principal, func(), error) {
	var p *domain.Principal
	if cfg.Token != "" {
		var err error
		if p, err = auth.PrincipalFromToken(cfg.Token); err != nil {
			return nil, nil, nil, fmt.Errorf("read token: %w", err)
		}
	}
	c, err := ws.Dial(ctx, cfg.ServerURL, ws.ClientOptions{Token: cfg.Token, Password: cfg.Password}, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return c, p, func() { c.Close() }, nil
}

type App struct {
	Config  config.Config
	Log     zerolog.Logger
	Connect Connector
	Clock   dispatch.Clock

	out io.Writer
}

// session is one engine synced against the store for the lifetime of a
// command.
type session struct {
	loop   *dispatch.Loop
	engine *engine.Engine
	ids    *identity.Holder
	stop   func()
}

func (a *App) open(ctx context.Context) (*session, error) {
	store, p, closeStore, err := a.Connect(ctx, a.Config, a.Log)
	if err != nil {
		return nil, err
	}
	clock := a.Clock
	if clock == nil {
		clock = dispatch.RealClock()
	}
	loop := dispatch.NewLoop(clock)
	lctx, cancel := context.WithCancel(context.Background())
	go loop.Run(lctx)

	ids := identity.NewHolder(p)
	e := engine.New(store, ids, loop, engine.Options{UndoWindow: a.Config.UndoWindow}, a.Log)
	e.Start(lctx)

	s := &session{
		loop:   loop,
		engine: e,
		ids:    ids,
		stop: func() {
			cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer ccancel()
			if err := e.Close(cctx); err != nil {
				a.Log.Error().Err(err).Msg("close engine")
			}
			cancel()
			closeStore()
		},
	}
	if err := e.WaitSynced(ctx); err != nil {
		s.stop()
		return nil, fmt.Errorf("sync: %w", err)
	}
	return s, nil
}

// withSession runs fn against a synced engine.
func (a *App) withSession(fn func(ctx context.Context, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := a.open(cmd.Context())
		if err != nil {
			return err
		}
		defer s.stop()
		return fn(cmd.Context(), s, args)
	}
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// NewRootCmd builds the pronode command tree around app.
func NewRootCmd(app *App) *cobra.Command {
	if app.Connect == nil {
		app.Connect = DialServer
	}
	root := &cobra.Command{
		Use:           "pronode",
		Short:         "ProNode notes client",
		Long:          "pronode reads and edits the folders and notes of a ProNode server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			app.out = cmd.OutOrStdout()
		},
	}
	root.PersistentFlags().StringVar(&app.Config.ServerURL, "server", app.Config.ServerURL, "websocket URL of the server")
	root.PersistentFlags().StringVar(&app.Config.Token, "token", app.Config.Token, "bearer token")
	root.PersistentFlags().StringVar(&app.Config.Password, "password", app.Config.Password, "shared guest password")
	root.PersistentFlags().DurationVar(&app.Config.UndoWindow, "undo-window", app.Config.UndoWindow, "how long a delete can be undone")

	root.AddCommand(
		newTreeCmd(app),
		newWatchCmd(app),
		newFolderCmd(app),
		newNoteCmd(app),
		newExportCmd(app),
		newImportCmd(app),
		newTokenCmd(app),
		newAccountCmd(app),
	)
	return root
}
