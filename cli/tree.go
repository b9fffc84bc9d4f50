// cli/tree.go
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/vinizap/pronode/domain"
	"github.com/vinizap/pronode/identity"
)

func newTreeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Print folders and their notes",
		Args:  cobra.NoArgs,
		RunE: app.withSession(func(ctx context.Context, s *session, _ []string) error {
			writeTree(app.out, s.engine.VisibleFolders().Get())
			return nil
		}),
	}
}

func newWatchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the tree again on every change until interrupted",
		Args:  cobra.NoArgs,
		RunE: app.withSession(func(ctx context.Context, s *session, _ []string) error {
			changed := make(chan struct{}, 1)
			cancel := s.engine.VisibleFolders().Changed(func() {
				select {
				case changed <- struct{}{}:
				default:
				}
			})
			defer cancel()

			app.printf("# %s @ %s\n", identity.DisplayName(s.ids.Current()), s.engine.Namespace().Get())
			writeTree(app.out, s.engine.VisibleFolders().Get())
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-changed:
					app.printf("\n")
					writeTree(app.out, s.engine.VisibleFolders().Get())
				}
			}
		}),
	}
}

func writeTree(w io.Writer, folders []domain.FolderView) {
	if len(folders) == 0 {
		fmt.Fprintln(w, "(no folders)")
		return
	}
	for _, f := range folders {
		fmt.Fprintf(w, "%s  [%s]\n", f.Name, f.ID)
		for _, n := range f.Notes {
			fmt.Fprintf(w, "  - %s  [%s]\n", n.Title, n.ID)
		}
	}
}
