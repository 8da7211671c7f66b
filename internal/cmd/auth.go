package cmd

import (
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/zfogg/sidechain/chat/pkg/credentials"
	cerrors "github.com/zfogg/sidechain/chat/pkg/errors"
	"github.com/zfogg/sidechain/chat/pkg/output"
	"github.com/zfogg/sidechain/chat/pkg/prompter"
)

var (
	authToken     string
	authUserID    string
	authUsername  string
	authExpiresIn time.Duration
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the stored access token",
	Long:  "Store, inspect or remove the access token used for messaging",
}

var authUseCmd = &cobra.Command{
	Use:   "use",
	Short: "Store an access token and user id",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := prompter.New(cmd.InOrStdin(), cmd.OutOrStdout())

		token := authToken
		if token == "" {
			var err error
			if token, err = p.Secret("Access token: "); err != nil {
				return err
			}
		}
		userID := authUserID
		if userID == "" {
			var err error
			if userID, err = p.Required("User id: "); err != nil {
				return err
			}
		}

		creds := &credentials.Credentials{
			AccessToken: token,
			UserID:      userID,
			Username:    authUsername,
		}
		if authExpiresIn > 0 {
			creds.ExpiresAt = time.Now().Add(authExpiresIn)
		}
		if err := credentials.Save(creds); err != nil {
			return err
		}
		output.PrintSuccess("Credentials saved for %s", userID)
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := credentials.Delete(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		output.PrintSuccess("Logged out")
		return nil
	},
}

var authWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the stored identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := credentials.Load()
		if err != nil {
			return err
		}
		if creds == nil {
			return cerrors.UnauthorizedError(nil)
		}

		record := map[string]interface{}{
			"user_id":  creds.UserID,
			"username": creds.Username,
			"valid":    creds.IsValid(),
		}
		if !creds.ExpiresAt.IsZero() {
			record["expires_at"] = creds.ExpiresAt.Local().Format(time.RFC3339)
		}
		return output.PrintRecord("Identity", record)
	},
}

func errorText(err error) string {
	return cerrors.FormatError(err)
}

func init() {
	authUseCmd.Flags().StringVar(&authToken, "token", "", "Access token (prompted when omitted)")
	authUseCmd.Flags().StringVar(&authUserID, "user-id", "", "Your user id (prompted when omitted)")
	authUseCmd.Flags().StringVar(&authUsername, "username", "", "Your username")
	authUseCmd.Flags().DurationVar(&authExpiresIn, "expires-in", 0, "Token lifetime, e.g. 24h (default: no expiry)")

	authCmd.AddCommand(authUseCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authWhoamiCmd)
}
