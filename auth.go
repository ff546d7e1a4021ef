package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/webapp-security/sso-client-go/internal/session"
)

func newLoginCmd() *cobra.Command {
	var (
		username string
		password string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the SSO service",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runLogin(username, password)
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted if omitted)")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove saved credentials",
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the signed-in user",
		RunE:  runWhoami,
	}
}

func runLogin(username, password string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := context.Background()

	if username == "" {
		username, err = promptLine("Username: ")
		if err != nil {
			return err
		}
	}

	if password == "" {
		password, err = promptLine("Password: ")
		if err != nil {
			return err
		}
	}

	app.logger.Info("login started", "username", username)

	if _, err := app.manager.SignIn(ctx, username, password); err != nil {
		return fmt.Errorf("sign-in failed: %w", err)
	}

	statusf("Signed in as %s. Session valid until %s.\n",
		username, app.store.Expiry().Local().Format("15:04:05"))

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.manager.SignOut(context.Background()); err != nil {
		return err
	}

	statusf("Signed out.\n")

	return nil
}

func runWhoami(_ *cobra.Command, _ []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	info := app.store.UserInfo()
	if info == nil {
		if !app.manager.Active() {
			return fmt.Errorf("%w (run 'sso login' first)", session.ErrNotSignedIn)
		}

		fmt.Println("Signed in (no user details recorded).")

		return nil
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(json.RawMessage(info))
	}

	var fields map[string]any
	if err := json.Unmarshal(info, &fields); err != nil {
		// Opaque blob: print it as-is rather than failing.
		fmt.Println(string(info))
		return nil
	}

	for _, key := range []string{"username", "display_name", "email"} {
		if v, ok := fields[key]; ok {
			fmt.Printf("%-13s %v\n", key+":", v)
		}
	}

	return nil
}
