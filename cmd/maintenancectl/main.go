package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/maintenance-gate/internal/client"
	"github.com/maintenance-gate/internal/maintenance"
)

type flags struct {
	server    string
	path      string
	accessKey string
	timeout   time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:           "maintenancectl",
		Short:         "Query and toggle a server's maintenance mode",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&f.server, "server", envOr("MAINTENANCE_SERVER", "http://localhost:3000"), "server base URL")
	root.PersistentFlags().StringVar(&f.path, "path", envOr("MAINTENANCE_PATH", maintenance.DefaultManagementPath), "management endpoint path")
	root.PersistentFlags().StringVar(&f.accessKey, "access-key", os.Getenv("MAINTENANCE_ACCESS_KEY"), "shared secret for the management endpoint")
	root.PersistentFlags().DurationVar(&f.timeout, "timeout", 10*time.Second, "request timeout")

	root.AddCommand(newStatusCmd(f), newOnCmd(f), newOffCmd(f))
	return root
}

func newStatusCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := f.context(cmd.Context())
			defer cancel()
			res, err := f.client().Status(ctx)
			if err != nil {
				return err
			}
			return printResult(cmd, res)
		},
	}
}

func newOnCmd(f *flags) *cobra.Command {
	var (
		status int
		body   string
	)
	cmd := &cobra.Command{
		Use:   "on",
		Short: "Enter maintenance mode",
		Long: "Enter maintenance mode. Without --status the server reuses the response it\n" +
			"served last time; the first activation must set one.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var opts *maintenance.ResponseOptions
			if cmd.Flags().Changed("status") || cmd.Flags().Changed("body") {
				opts = &maintenance.ResponseOptions{StatusCode: status}
				if body != "" {
					if err := json.Unmarshal([]byte(body), &opts.Body); err != nil {
						return fmt.Errorf("--body must be a JSON object: %w", err)
					}
				}
			}

			ctx, cancel := f.context(cmd.Context())
			defer cancel()
			res, err := f.client().Enable(ctx, opts)
			if err != nil {
				return err
			}
			return printResult(cmd, res)
		},
	}
	cmd.Flags().IntVar(&status, "status", 503, "status code served to blocked requests")
	cmd.Flags().StringVar(&body, "body", "", `JSON object served to blocked requests, e.g. '{"message":"back soon"}'`)
	return cmd
}

func newOffCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "off",
		Short: "Leave maintenance mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := f.context(cmd.Context())
			defer cancel()
			res, err := f.client().Disable(ctx)
			if err != nil {
				return err
			}
			return printResult(cmd, res)
		},
	}
}

func (f *flags) client() *client.Client {
	return client.New(f.server, client.WithPath(f.path), client.WithAccessKey(f.accessKey))
}

func (f *flags) context(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, f.timeout)
}

func printResult(cmd *cobra.Command, res client.Result) error {
	out := cmd.OutOrStdout()
	color.New(color.FgGreen, color.Bold).Fprintln(out, res.Message)
	if res.ResponseOptions == nil {
		return nil
	}
	body, err := json.Marshal(res.ResponseOptions.Body)
	if err != nil {
		return fmt.Errorf("encode response body: %w", err)
	}
	fmt.Fprintf(out, "  status: %d\n  body:   %s\n", res.ResponseOptions.StatusCode, body)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
