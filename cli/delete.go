// cli/delete.go
package cli

import (
	"context"
	"errors"
	"time"

	"github.com/vinizap/pronode/engine"
)

// awaitDelete shows the undo window of d and waits for it to settle. now
// skips the window; cancelling ctx during it undoes the delete.
func (a *App) awaitDelete(ctx context.Context, d *engine.Deletion, what string, now bool) error {
	if err := d.Started().Wait(ctx); err != nil {
		return err
	}
	bg, cancel := context.WithTimeout(context.Background(), a.Config.UndoWindow+30*time.Second)
	defer cancel()

	if now {
		d.Commit()
	} else {
		a.printf("%s deleted, press Ctrl-C within %s to undo\n", what, a.Config.UndoWindow)
		select {
		case <-d.Done().Done():
		case <-ctx.Done():
			if err := d.Undo().Wait(bg); err != nil && !errors.Is(err, engine.ErrUndoExpired) {
				return err
			}
		}
	}

	err := d.Done().Wait(bg)
	if errors.Is(err, engine.ErrUndone) {
		a.printf("%s restored\n", what)
		return nil
	}
	return err
}
