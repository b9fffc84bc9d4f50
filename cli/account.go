// cli/account.go
package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"github.com/vinizap/pronode/auth"
	"github.com/vinizap/pronode/domain"
	"github.com/vinizap/pronode/identity"
)

func newTokenCmd(app *App) *cobra.Command {
	var p domain.Principal
	ttl := 30 * 24 * time.Hour
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token with the server's secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if app.Config.JWTSecret == "" {
				return errors.New("LUMI_JWT_SECRET is not set")
			}
			token, err := auth.New(app.Config.JWTSecret, "").IssueToken(p, ttl)
			if err != nil {
				return err
			}
			app.printf("%s\n", token)
			return nil
		},
	}
	cmd.Flags().StringVar(&p.UID, "uid", "", "user id")
	cmd.Flags().StringVar(&p.Email, "email", "", "e-mail address")
	cmd.Flags().StringVar(&p.DisplayName, "name", "", "display name")
	cmd.Flags().BoolVar(&p.IsAnonymous, "anonymous", false, "mark the principal as a guest")
	cmd.Flags().DurationVar(&ttl, "ttl", ttl, "validity")
	_ = cmd.MarkFlagRequired("uid")
	return cmd
}

func newAccountCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Account information and maintenance",
	}

	var yes bool
	del := &cobra.Command{
		Use:   "delete",
		Short: "Delete every folder and note of the signed-in account",
		Args:  cobra.NoArgs,
		RunE: app.withSession(func(ctx context.Context, s *session, _ []string) error {
			if !yes {
				return errors.New("refusing to delete without --yes")
			}
			if err := s.engine.DeleteAccountData(ctx); err != nil {
				return err
			}
			app.printf("deleted %s\n", s.engine.Namespace().Get())
			return nil
		}),
	}
	del.Flags().BoolVar(&yes, "yes", false, "confirm the deletion")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print who the server sees",
			Args:  cobra.NoArgs,
			RunE: app.withSession(func(ctx context.Context, s *session, _ []string) error {
				app.printf("%s\t%s\n", identity.DisplayName(s.ids.Current()), s.engine.Namespace().Get())
				return nil
			}),
		},
		del,
	)
	return cmd
}
