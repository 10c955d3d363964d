package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jrsteele09/go-session-client/authmodel"
	"github.com/jrsteele09/go-session-client/autherr"
	"github.com/jrsteele09/go-session-client/bootstrap"
	"github.com/jrsteele09/go-session-client/internal/utils"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/spf13/cobra"
)

func (a *app) loginCmd() *cobra.Command {
	var username, password, ssoToken, provider string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a password or an SSO token",
		Example: `  authctl login -u jdoe -p secret
  authctl login --sso-token "$ID_TOKEN" --provider azure`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var creds session.Credentials
			switch {
			case ssoToken != "":
				creds = session.SSOCredentials{Token: ssoToken, Provider: provider}
			case username != "":
				if password == "" {
					password = os.Getenv("AUTHCTL_PASSWORD")
				}
				creds = session.PasswordCredentials{Username: username, Password: password}
			default:
				return fmt.Errorf("either --username or --sso-token is required")
			}

			return a.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				result, err := rt.Coordinator.Login(ctx, creds)
				if err != nil {
					return describe(err)
				}
				out := cmd.OutOrStdout()
				success(out, "Signed in as %s (%s)", displayName(&result.Profile), result.Method)
				info(out, "Access token expires in %s", time.Duration(result.Tokens.ExpiresIn)*time.Second)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "username or employee ID")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (or AUTHCTL_PASSWORD)")
	cmd.Flags().StringVar(&ssoToken, "sso-token", "", "identity provider token")
	cmd.Flags().StringVar(&provider, "provider", "", "identity provider name")
	cmd.MarkFlagsMutuallyExclusive("username", "sso-token")

	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				if !rt.Coordinator.IsAuthenticated() {
					warn(cmd.OutOrStdout(), "Not signed in")
					return nil
				}
				if err := rt.Coordinator.Logout(ctx); err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}

func (a *app) refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Rotate the access token now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				if err := rt.Coordinator.RefreshAccessToken(ctx); err != nil {
					return describe(err)
				}
				success(cmd.OutOrStdout(), "Access token refreshed")
				return nil
			})
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				out := cmd.OutOrStdout()
				snapshot := rt.Coordinator.Snapshot()
				if !snapshot.IsAuthenticated() {
					warn(out, "Not signed in")
					return nil
				}
				success(out, "Signed in as %s", displayName(snapshot.User))
				info(out, "Method:  %s", snapshot.LoginMethod)
				info(out, "Org:     %s", utils.ValueOr(snapshot.User.OrganizationName, "-"))
				info(out, "Roles:   %s", strings.Join(snapshot.User.Roles, ", "))
				if !snapshot.ExpiresAt.IsZero() {
					left := time.Until(snapshot.ExpiresAt).Round(time.Second)
					info(out, "Expires: %s (%s)", snapshot.ExpiresAt.Format(time.RFC3339), left)
				}
				return nil
			})
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Ask the service who the current token belongs to",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				token := rt.Coordinator.AccessToken()
				if token == "" {
					return describe(autherr.ErrNotAuthenticated)
				}
				identity, err := rt.Auth.Me(ctx, token)
				if err != nil {
					return describe(err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), identity)
				return nil
			})
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the session alive and print lifecycle events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				events, unsubscribe := rt.Coordinator.Subscribe(16)
				defer unsubscribe()

				if err := rt.Monitor.Start(ctx); err != nil {
					return describe(err)
				}
				defer rt.Monitor.Stop()

				out := cmd.OutOrStdout()
				info(out, "Watching session, press Ctrl+C to stop")
				for {
					select {
					case <-ctx.Done():
						return nil
					case evt, ok := <-events:
						if !ok {
							return nil
						}
						printEvent(cmd, evt)
						if evt.Type == session.EventLogout {
							return nil
						}
					}
				}
			})
		},
	}
}

func printEvent(cmd *cobra.Command, evt session.Event) {
	out := cmd.OutOrStdout()
	at := evt.At.Format(time.Kitchen)
	switch evt.Type {
	case session.EventWarning:
		warn(out, "%s session expires in %s without activity", at, evt.TimeLeft)
	case session.EventError:
		warn(out, "%s %s: %v", at, evt.Type, evt.Err)
	case session.EventActivity:
		info(out, "%s %s (%s)", at, evt.Type, evt.Activity)
	default:
		info(out, "%s %s", at, evt.Type)
	}
}

func displayName(user *authmodel.UserProfile) string {
	if user == nil {
		return ""
	}
	if name := utils.Value(user.DisplayName); name != "" {
		return name
	}
	if user.Username != "" {
		return user.Username
	}
	return user.UserID
}

// describe maps error kinds to terminal text.
func describe(err error) error {
	switch autherr.KindOf(err) {
	case autherr.KindInvalidCredentials:
		return fmt.Errorf("invalid username or password")
	case autherr.KindAccountLocked:
		return fmt.Errorf("account is locked")
	case autherr.KindAccountDisabled:
		return fmt.Errorf("account is disabled")
	case autherr.KindInvalidSSOToken:
		return fmt.Errorf("the SSO token was not accepted")
	case autherr.KindNotAuthenticated:
		return fmt.Errorf("not signed in, run authctl login")
	case autherr.KindNoRefreshToken, autherr.KindRefreshRejected:
		return fmt.Errorf("session expired, run authctl login")
	case autherr.KindNetwork:
		return fmt.Errorf("authentication service unreachable: %w", err)
	default:
		return err
	}
}
