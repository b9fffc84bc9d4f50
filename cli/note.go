// cli/note.go
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/vinizap/pronode/editor"
)

func newNoteCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note",
		Short: "Manage notes",
	}
	cmd.AddCommand(
		newNoteAddCmd(app),
		newNoteQuickCmd(app),
		&cobra.Command{
			Use:   "show <id>",
			Short: "Print a note",
			Args:  cobra.ExactArgs(1),
			RunE: app.withSession(func(ctx context.Context, s *session, args []string) error {
				n, ok := s.engine.NoteByID(args[0])
				if !ok {
					return fmt.Errorf("note %s not found", args[0])
				}
				app.printf("# %s\n\n%s\n", n.Title, n.Content)
				return nil
			}),
		},
		newNoteEditCmd(app),
		newNoteRmCmd(app),
		&cobra.Command{
			Use:   "mv <id> <folder-id>",
			Short: "Move a note into another folder",
			Args:  cobra.ExactArgs(2),
			RunE: app.withSession(func(ctx context.Context, s *session, args []string) error {
				if _, ok := s.engine.FolderByID(args[1]); !ok {
					return fmt.Errorf("folder %s not found", args[1])
				}
				return s.engine.MoveNote(args[0], args[1]).Wait(ctx)
			}),
		},
	)
	return cmd
}

func newNoteAddCmd(app *App) *cobra.Command {
	var content string
	cmd := &cobra.Command{
		Use:   "add <folder-id> <title>",
		Short: "Create a note",
		Args:  cobra.ExactArgs(2),
		RunE: app.withSession(func(ctx context.Context, s *session, args []string) error {
			if _, ok := s.engine.FolderByID(args[0]); !ok {
				return fmt.Errorf("folder %s not found", args[0])
			}
			n := s.engine.NewNote(args[0], args[1])
			n.Content = content
			if err := s.engine.AddNote(n).Wait(ctx); err != nil {
				return err
			}
			app.printf("%s\n", n.ID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&content, "content", "", "initial content")
	return cmd
}

func newNoteQuickCmd(app *App) *cobra.Command {
	folderName := "Notizen"
	cmd := &cobra.Command{
		Use:   "quick <title>",
		Short: "Create a note in the first folder, creating a folder if there is none",
		Args:  cobra.ExactArgs(1),
		RunE: app.withSession(func(ctx context.Context, s *session, args []string) error {
			res, err := s.engine.QuickNote(ctx, args[0])
			if err != nil {
				return err
			}
			if res.StubID != "" {
				if err := s.engine.SaveFolder(res.StubID, folderName).Wait(ctx); err != nil {
					return err
				}
				if res, err = s.engine.QuickNote(ctx, args[0]); err != nil {
					return err
				}
			}
			app.printf("%s\n", res.NoteID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&folderName, "folder-name", folderName, "name of the folder created when none exists")
	return cmd
}

func newNoteEditCmd(app *App) *cobra.Command {
	var title, content, file string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a note's title or content",
		Args:  cobra.ExactArgs(1),
		RunE: app.withSession(func(ctx context.Context, s *session, args []string) error {
			sess := editor.New(s.engine, s.loop, editor.Options{QuietPeriod: app.Config.AutosaveWait}, app.Log)
			if err := sess.Open(args[0]).Wait(ctx); err != nil {
				sess.Close()
				return fmt.Errorf("open %s: %w", args[0], err)
			}

			if file != "" {
				var raw []byte
				var err error
				if file == "-" {
					raw, err = io.ReadAll(os.Stdin)
				} else {
					raw, err = os.ReadFile(file)
				}
				if err != nil {
					return err
				}
				content = string(raw)
			}

			var writes []error
			if title != "" {
				writes = append(writes, sess.SetTitle(title).Wait(ctx))
				writes = append(writes, sess.BlurTitle().Wait(ctx))
			}
			if content != "" || file != "" {
				sess.Change(content)
				writes = append(writes, sess.Save().Wait(ctx))
			}
			writes = append(writes, sess.Close().Wait(ctx))
			for _, err := range writes {
				if err != nil {
					return err
				}
			}
			app.printf("%s\n", sess.Status().Get())
			return nil
		}),
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&content, "content", "", "new content")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read new content from a file, - for stdin")
	return cmd
}

func newNoteRmCmd(app *App) *cobra.Command {
	var now bool
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: app.withSession(func(ctx context.Context, s *session, args []string) error {
			n, ok := s.engine.NoteByID(args[0])
			if !ok {
				return fmt.Errorf("note %s not found", args[0])
			}
			return app.awaitDelete(ctx, s.engine.DeleteNote(n.ID), fmt.Sprintf("note %q", n.Title), now)
		}),
	}
	cmd.Flags().BoolVar(&now, "now", false, "skip the undo window")
	return cmd
}
