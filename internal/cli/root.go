// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package cli implements the twoway command.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/canonical/twoway"
	"github.com/canonical/twoway/internal/config"
)

// Version is set at build time.
var Version = "dev"

// env is what the commands need from the root command. It is stored in the
// command context once the configuration is loaded.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
}

type envKey struct{}

func getEnv(ctx context.Context) *env {
	if e, ok := ctx.Value(envKey{}).(*env); ok {
		return e
	}
	return &env{
		cfg:    &config.Config{Templates: config.DefaultTemplates, Driver: config.DefaultDriver, Output: config.DefaultOutput},
		logger: slog.New(slog.DiscardHandler),
	}
}

// options returns the twoway options matching the configuration.
func (e *env) options() []twoway.Option {
	opts := []twoway.Option{
		twoway.WithLogger(e.logger),
		twoway.WithDialect(e.cfg.SQLDialect()),
	}
	if e.cfg.AllowEmbedded {
		opts = append(opts, twoway.WithEmbeddedCheck(twoway.AllowEmbedded))
	}
	return opts
}

func (e *env) repository() (*twoway.Repository, error) {
	return twoway.OpenRepository(e.cfg.Templates, e.options()...)
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewRootCmd returns the twoway command.
func NewRootCmd() *cobra.Command {
	var cfgFile string
	rootCmd := &cobra.Command{
		Use:   "twoway",
		Short: "Render, check and run two-way SQL templates",
		Long: `twoway works with two-way SQL templates: plain SQL files whose dynamic
parts are written as comments, so that each file also runs as is in an SQL tool.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose)
			if cfg.File != "" {
				logger.Debug("using config file", slog.String("file", cfg.File))
			}
			cmd.SetContext(context.WithValue(cmd.Context(), envKey{}, &env{cfg: cfg, logger: logger}))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./twoway.yaml)")
	flags.StringP("templates", "d", "", "template directory")
	flags.String("dialect", "", "SQL dialect (default: the dialect of the driver)")
	flags.String("driver", "", "database driver for exec")
	flags.String("dsn", "", "data source name for exec")
	flags.StringSlice("dqlite-node", nil, "dqlite node address, repeatable")
	flags.StringP("params", "p", "", "YAML file of template bindings")
	flags.StringP("output", "o", "", "output format (text|json|yaml)")
	flags.Bool("allow-embedded", false, "do not check the text of embedded variables")
	flags.BoolP("verbose", "v", false, "verbose output")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return config.Outputs, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("driver", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return driverNames(), cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newRenderCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newExecCmd())
	return rootCmd
}

// Execute runs the twoway command.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}
