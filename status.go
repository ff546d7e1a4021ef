package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var (
		showHistory bool
		watch       bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show session state and expiry",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runStatus(showHistory, watch)
		},
	}

	cmd.Flags().BoolVar(&showHistory, "history", false, "show recent session events")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and report credential changes")

	return cmd
}

// sessionState derives the user-facing state name. Expired is recoverable
// (a renewal credential is still on hand); unauthenticated is terminal
// until the next sign-in.
func sessionState(access, renewal string, active bool) string {
	switch {
	case access == "" && renewal == "":
		return "unauthenticated"
	case active:
		return "authenticated"
	default:
		return "expired"
	}
}

func runStatus(showHistory, watch bool) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	printState(app)

	if showHistory {
		if err := printHistory(app); err != nil {
			return err
		}
	}

	if watch {
		return watchState(app)
	}

	return nil
}

func printState(app *app) {
	state := sessionState(app.store.Access(), app.store.Renewal(), app.manager.Active())

	if flagJSON {
		out := map[string]any{"state": state}
		if !app.store.Expiry().IsZero() {
			out["expires_at"] = app.store.Expiry().Format(time.RFC3339)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)

		return
	}

	fmt.Printf("State:   %s\n", state)

	if !app.store.Expiry().IsZero() {
		fmt.Printf("Expires: %s\n", app.store.Expiry().Local().Format("2006-01-02 15:04:05"))
	}
}

// historyLimit caps how many events `status --history` prints.
const historyLimit = 20

func printHistory(app *app) error {
	if app.history == nil {
		return fmt.Errorf("session history unavailable")
	}

	entries, err := app.history.Recent(context.Background(), historyLimit)
	if err != nil {
		return err
	}

	fmt.Println()

	for _, e := range entries {
		line := fmt.Sprintf("%s  %s", e.At.Local().Format("2006-01-02 15:04:05"), e.Event)
		if e.Detail != "" {
			line += "  " + e.Detail
		}

		fmt.Println(line)
	}

	return nil
}

// watchState reports credential changes (including ones made by other
// processes, via the store's file watcher) until interrupted.
func watchState(app *app) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.store.Subscribe(func() {
		printState(app)
	})

	statusf("Watching for credential changes (Ctrl-C to stop)...\n")

	if err := app.store.Watch(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}
