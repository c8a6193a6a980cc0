package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"kwforward/internal/watch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchOutDir string

// watchCmd keeps a directory of rewritten scripts up to date
var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Rewrite scripts in a directory whenever they change",
	Long: `Watches <dir> for changed .go files and writes the rewritten version
of each to --out. Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := args[0]
	if err := os.MkdirAll(watchOutDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", watchOutDir, err)
	}

	initial, err := filepath.Glob(filepath.Join(dir, "*.go"))
	if err != nil {
		return err
	}
	for _, path := range initial {
		if strings.HasSuffix(path, "_test.go") {
			continue
		}
		if err := writeRewritten(contextOf(cmd), path, watchOutDir); err != nil {
			cliLog().Warn("initial rewrite failed", zap.String("file", path), zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(contextOf(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := watch.New(dir, func(ctx context.Context, path string) error {
		return writeRewritten(ctx, path, watchOutDir)
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "watching %s, writing to %s\n", dir, watchOutDir)

	<-ctx.Done()
	w.Stop()

	stats := w.Stats()
	cliLog().Info("watch stopped",
		zap.Int("events", stats.Events),
		zap.Int("rewrites", stats.Actions),
		zap.Int("errors", stats.Errors))
	return nil
}
