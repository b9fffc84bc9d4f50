// cli/transfer.go
package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/vinizap/pronode/dispatch"
	"github.com/vinizap/pronode/filesystem"
)

func newExportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "export <dir>",
		Short: "Write every folder and note as markdown files",
		Args:  cobra.ExactArgs(1),
		RunE: app.withSession(func(ctx context.Context, s *session, args []string) error {
			folders := s.engine.VisibleFolders().Get()
			if err := filesystem.Export(args[0], folders); err != nil {
				return err
			}
			notes := 0
			for _, f := range folders {
				notes += len(f.Notes)
			}
			app.printf("exported %d folders, %d notes\n", len(folders), notes)
			return nil
		}),
	}
}

// import keeps ids, so importing an export again overwrites rather than
// duplicates. Folders already present keep their position; new ones are
// appended in the order they were exported.
func newImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir>",
		Short: "Create or overwrite folders and notes from an export",
		Args:  cobra.ExactArgs(1),
		RunE: app.withSession(func(ctx context.Context, s *session, args []string) error {
			folders, err := filesystem.Import(args[0])
			if err != nil {
				return err
			}

			next := 0
			for _, f := range s.engine.Folders().Get() {
				if f.Position >= next {
					next = f.Position + 1
				}
			}

			var writes []*dispatch.Future
			notes := 0
			for _, f := range folders {
				folder := f.Folder
				if existing, ok := s.engine.FolderByID(folder.ID); ok {
					folder.Position = existing.Position
				} else {
					folder.Position = next
					next++
				}
				writes = append(writes, s.engine.AddFolder(folder))
				for _, n := range f.Notes {
					writes = append(writes, s.engine.AddNote(n))
					notes++
				}
			}
			for _, w := range writes {
				if err := w.Wait(ctx); err != nil {
					return err
				}
			}
			app.printf("imported %d folders, %d notes\n", len(folders), notes)
			return nil
		}),
	}
}
