// Package cli implements the academy command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"academy/internal/config"
)

// state is filled by the root command before any subcommand runs.
type state struct {
	envFiles []string
	cfg      config.Config
}

// NewRootCmd builds the academy command tree.
func NewRootCmd(version string) *cobra.Command {
	st := &state{}
	root := &cobra.Command{
		Use:     "academy",
		Short:   "Academy - class session scheduling for course batches",
		Version: version,
		Long: `Academy keeps the planned sessions of each course batch in step with
what has been persisted: it shows the reconciled schedule, saves and
cancels sessions, and bulk-imports session titles from CSV.

Configuration is read from ACADEMY_* environment variables and, when
present, from .env and .env.local in the working directory.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(st.envFiles...)
			if err != nil {
				return err
			}
			st.cfg = cfg
			slog.SetDefault(cfg.NewLogger(cmd.ErrOrStderr()))
			return nil
		},
	}
	root.PersistentFlags().StringSliceVar(&st.envFiles, "env-file", nil, "env files to load instead of .env and .env.local")

	root.AddCommand(serveCmd(st, version))
	root.AddCommand(scheduleCmd(st))
	root.AddCommand(batchCmd(st))
	return root
}

// withApp opens the app for the duration of fn.
func withApp(st *state, fn func(a *app) error) error {
	a, err := openApp(st.cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Execute runs the root command and exits non-zero on failure.
func Execute(version string) {
	if err := NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
