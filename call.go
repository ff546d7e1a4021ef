package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newCallCmd() *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "call METHOD PATH",
		Short: "Issue an authenticated request against the business API",
		Long: "Sends a request through the session gate: the current credential is\n" +
			"attached automatically, renewed in the background when close to expiry,\n" +
			"and the call is replayed once if the server rejects the credential.",
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return runCall(args[0], args[1], data)
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "request body (JSON)")

	return cmd
}

func runCall(method, path, data string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var body io.Reader
	if data != "" {
		body = strings.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(),
		strings.ToUpper(method), app.cfg.APIBaseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	if data != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.manager.Client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	statusf("HTTP %d\n", resp.StatusCode)

	if _, err := io.Copy(os.Stdout, resp.Body); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	fmt.Println()

	return nil
}
