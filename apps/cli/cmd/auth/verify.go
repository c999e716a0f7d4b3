package auth

import (
	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/spf13/cobra"

	"github.com/netview-hq/netview-go/apps/cli/internal/output"
	"github.com/netview-hq/netview-go/platform/go/gcp"
)

// verifyUserCommand force-marks a Firebase account's email as verified. It is
// an admin shortcut for local environments where no real mail is delivered.
func verifyUserCommand() *cobra.Command {
	var uid string
	var email string
	var credentials string

	cmd := &cobra.Command{
		Use:   "verify-user",
		Short: "Mark a Firebase account's email as verified (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var credPath *string
			if credentials != "" {
				credPath = &credentials
			}
			_, fbAuth, err := gcp.InitFirebaseAuth(ctx, credPath)
			if err != nil {
				return err
			}

			if uid == "" {
				user, err := fbAuth.GetUserByEmail(ctx, email)
				if err != nil {
					return err
				}
				uid = user.UID
			}

			update := (&firebaseauth.UserToUpdate{}).EmailVerified(true)
			if _, err := fbAuth.UpdateUser(ctx, uid, update); err != nil {
				return err
			}

			output.Default().Success("Marked %s as verified", uid)
			return nil
		},
	}

	cmd.Flags().StringVar(&uid, "uid", "", "Firebase user ID")
	cmd.Flags().StringVar(&email, "email", "", "account email (used when --uid is not given)")
	cmd.Flags().StringVar(&credentials, "credentials", "", "path to a service account JSON file")
	cmd.MarkFlagsOneRequired("uid", "email")

	return cmd
}
