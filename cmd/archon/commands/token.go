package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/archonhq/archon/auth"
	"github.com/archonhq/archon/errors"
)

// TokenCmd mints tokens for testing and scheduler integration
var TokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint session and internal tokens",
	Long: `Mint bearer tokens signed with the configured auth.jwt_secret.

Session tokens authenticate interactive API calls; internal tokens carry
the scheduler issuer and audience claims and are only accepted by the
internal execution endpoint.

Examples:
  archon token session --user u-123
  archon token internal --user u-123 --schedule sched-7`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// TokenSessionCmd mints a session token
var TokenSessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Mint a session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		if userID == "" {
			return errors.New("--user is required")
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		sessions, err := auth.NewSessionManager(cfg.Auth.JWTSecret, 0)
		if err != nil {
			return err
		}
		token, err := sessions.GenerateToken(&auth.Claims{UserID: userID})
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

// TokenInternalCmd mints an internal token for the scheduled endpoint
var TokenInternalCmd = &cobra.Command{
	Use:   "internal",
	Short: "Mint an internal token for the scheduled execution endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		scheduleID, _ := cmd.Flags().GetString("schedule")
		if userID == "" {
			return errors.New("--user is required")
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		tokens, err := auth.NewInternalTokenManager(
			cfg.Auth.JWTSecret, cfg.Auth.InternalIssuer, cfg.Auth.InternalAudience)
		if err != nil {
			return err
		}
		token, err := tokens.GenerateToken(&auth.InternalClaims{
			UserID:     userID,
			ScheduleID: scheduleID,
		})
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	TokenSessionCmd.Flags().String("user", "", "User id the token authenticates")
	TokenInternalCmd.Flags().String("user", "", "User id the scheduled run executes as")
	TokenInternalCmd.Flags().String("schedule", "", "Schedule id recorded in the token")
	TokenCmd.AddCommand(TokenSessionCmd)
	TokenCmd.AddCommand(TokenInternalCmd)
}
