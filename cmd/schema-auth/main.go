// Command schema-auth manages a SchemaBio platform session from the
// terminal: sign in, inspect the current session, keep it refreshed, and
// sign out.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/SchemaBio/schema-platform-sub003/config"
	"github.com/SchemaBio/schema-platform-sub003/internal/app"
	"github.com/SchemaBio/schema-platform-sub003/internal/domain"
	"github.com/SchemaBio/schema-platform-sub003/internal/expiry"
)

func main() {
	root := &cobra.Command{
		Use:           "schema-auth",
		Short:         "SchemaBio platform session client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(loginCmd(), statusCmd(), logoutCmd(), runCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and persist the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.MustLoad()
			a := app.New(cfg, app.Callbacks{})
			defer a.Close()

			if email == "" {
				email = prompt("email: ")
			}
			if password == "" {
				password = prompt("password: ")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := a.Manager.Login(ctx, email, password); err != nil {
				var authErr *domain.AuthError
				if errors.As(err, &authErr) {
					return fmt.Errorf("login failed: %s", authErr.Message)
				}
				return errors.New("login failed: invalid email or password")
			}
			state := a.Store.GetState()
			fmt.Printf("signed in as %s (%s)\n", state.User.Name, state.User.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when omitted)")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the persisted session",
		RunE: func(*cobra.Command, []string) error {
			cfg := config.MustLoad()
			a := app.New(cfg, app.Callbacks{})
			defer a.Close()

			if !a.Store.RestoreSession() {
				fmt.Println("no active session")
				return nil
			}
			state := a.Store.GetState()
			fmt.Printf("user:    %s (%s)\n", state.User.Name, state.User.Email)
			fmt.Printf("role:    %s\n", state.User.Role)
			fmt.Printf("expires: %s (in %s)\n", state.Tokens.ExpiresAt,
				expiry.TimeRemaining(state.Tokens.ExpiresAt).Round(time.Second))
			return nil
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the persisted session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.MustLoad()
			a := app.New(cfg, app.Callbacks{})
			defer a.Close()

			a.Store.RestoreSession()
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			a.Manager.Logout(ctx)
			fmt.Println("signed out")
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Keep the session refreshed until interrupted",
		RunE: func(*cobra.Command, []string) error {
			cfg := config.MustLoad()
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ended := make(chan struct{})
			a := app.New(cfg, app.Callbacks{
				OnAuthError: func(err error) { fmt.Fprintln(os.Stderr, "session ended:", err) },
				OnLogout:    func() { close(ended) },
			})
			defer a.Close()

			if !a.Manager.Start(ctx) {
				return errors.New("no active session, run `schema-auth login` first")
			}
			state := a.Store.GetState()
			fmt.Printf("session active for %s, refreshing in ~%s\n", state.User.Email,
				a.Manager.RefreshDelayFor(state.Tokens).Round(time.Second))

			select {
			case <-ctx.Done():
			case <-ended:
			}
			return nil
		},
	}
}

func prompt(label string) string {
	fmt.Print(label)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
