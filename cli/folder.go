// cli/folder.go
package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newFolderCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folder",
		Short: "Manage folders",
	}

	var now bool
	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a folder and its notes",
		Args:  cobra.ExactArgs(1),
		RunE: app.withSession(func(ctx context.Context, s *session, args []string) error {
			f, ok := s.engine.FolderByID(args[0])
			if !ok {
				return fmt.Errorf("folder %s not found", args[0])
			}
			return app.awaitDelete(ctx, s.engine.DeleteFolder(f.ID), fmt.Sprintf("folder %q", f.Name), now)
		}),
	}
	rm.Flags().BoolVar(&now, "now", false, "skip the undo window")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <name>",
			Short: "Create a folder in front of all others",
			Args:  cobra.ExactArgs(1),
			RunE: app.withSession(func(ctx context.Context, s *session, args []string) error {
				id := s.engine.AddFolderStub()
				if err := s.engine.SaveFolder(id, args[0]).Wait(ctx); err != nil {
					return err
				}
				app.printf("%s\n", id)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "rename <id> <name>",
			Short: "Rename a folder",
			Args:  cobra.ExactArgs(2),
			RunE: app.withSession(func(ctx context.Context, s *session, args []string) error {
				if _, ok := s.engine.FolderByID(args[0]); !ok {
					return fmt.Errorf("folder %s not found", args[0])
				}
				return s.engine.SaveFolder(args[0], args[1]).Wait(ctx)
			}),
		},
		rm,
		&cobra.Command{
			Use:   "move <from> <to>",
			Short: "Move the folder at index from to index to",
			Args:  cobra.ExactArgs(2),
			RunE: app.withSession(func(ctx context.Context, s *session, args []string) error {
				from, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("from: %w", err)
				}
				to, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("to: %w", err)
				}
				return s.engine.MoveFolder(from, to).Wait(ctx)
			}),
		},
	)
	return cmd
}
