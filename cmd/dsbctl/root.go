package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/dsbpanel/internal/config"
	"github.com/ericfisherdev/dsbpanel/internal/domain/port/driven"
	"github.com/ericfisherdev/dsbpanel/internal/wire"
)

// cli carries the wired application between the persistent hooks and the
// subcommands.
type cli struct {
	app *wire.App
}

// execute runs the CLI with args and releases the database afterwards.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	rootCmd, c := newRootCmd()
	defer func() {
		if err := c.close(); err != nil {
			slog.Error("error closing resources", "error", err)
		}
	}()

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCmd() (*cobra.Command, *cli) {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "dsbctl",
		Short: "Manage the dsbpanel session and read stored substitution plans",
		Long: "dsbctl shares the server's configuration (DSBPANEL_* environment variables) " +
			"and database. It logs in, refreshes and prints the stored plans.",
		SilenceUsage:  true,
		SilenceErrors: false,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return c.open(cmd)
		},
	}

	rootCmd.AddCommand(
		newLoginCmd(c),
		newLogoutCmd(c),
		newRefreshCmd(c),
		newStatusCmd(c),
		newPlansCmd(c),
		newShowCmd(c),
	)

	return rootCmd, c
}

// open loads configuration, wires the application and restores a stored
// session. It never logs in over the network.
func (c *cli) open(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.LogLevel})))

	app, err := wire.Build(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("open dsbpanel: %w", err)
	}
	c.app = app

	if err := app.Session.Restore(cmd.Context()); err != nil && !errors.Is(err, driven.ErrEncryptionKeyNotSet) {
		slog.Warn("stored credentials unreadable", "error", err)
	}
	return nil
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}
