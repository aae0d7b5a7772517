package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/treetopk"
	"github.com/hupe1980/treetopk/config"
)

const rootLongDesc string = `treetopk finds the K largest integers stored across numbered shard objects.

Ranks 1..S fetch and fold the shards, ranks S+1..S+A merge partial results
and rank 0 prints the final top K.

Commands:
  treetopk run     Run one rank, or the whole group with --local
  treetopk seed    Write a synthetic dataset`

// execute runs the command line and returns the process exit code.
// Configuration errors print the usage of the failing command.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	failed, err := cmd.ExecuteContextC(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	if errors.Is(err, treetopk.ErrConfig) && failed != nil {
		fmt.Fprint(stderr, failed.UsageString())
	}
	return 1
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "treetopk",
		Short:         "Distributed top-K over sharded integer data",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().String("config", "", "Path to a config file (default: ./treetopk.yaml)")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", treetopk.ErrConfig, err)
	})

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newSeedCmd())
	return cmd
}

// loadConfig binds the flags of cmd and loads the merged configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	file, _ := cmd.Flags().GetString("config")
	v, err := config.New(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", treetopk.ErrConfig, err)
	}
	if err := config.BindFlags(v, cmd); err != nil {
		return nil, err
	}
	return config.Load(v)
}

func newLogger(w io.Writer, lc config.LogConfig) (*treetopk.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		return nil, fmt.Errorf("%w: log.level: %w", treetopk.ErrConfig, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(lc.Format) {
	case "", "text":
		return treetopk.NewLogger(slog.NewTextHandler(w, opts)), nil
	case "json":
		return treetopk.NewLogger(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%w: log.format: unknown format %q", treetopk.ErrConfig, lc.Format)
	}
}
