package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"kwforward/internal/rewrite"
	"kwforward/pkg/forward"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var rewriteOutDir string

// rewriteCmd prints or writes decorated scripts
var rewriteCmd = &cobra.Command{
	Use:   "rewrite [files...]",
	Short: "Rewrite decorated functions of Go scripts",
	Long: `Rewrites every decorated function of each file. Without --out the
results are printed to stdout in argument order.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRewrite,
}

type rewritten struct {
	path   string
	src    []byte
	report *rewrite.Report
}

func runRewrite(cmd *cobra.Command, args []string) error {
	results := make([]rewritten, len(args))

	g, ctx := errgroup.WithContext(contextOf(cmd))
	g.SetLimit(runtime.NumCPU())
	for i, path := range args {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, report, err := rewriteFile(path)
			if err != nil {
				return err
			}
			results[i] = rewritten{path: path, src: out, report: report}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if rewriteOutDir != "" {
		if err := os.MkdirAll(rewriteOutDir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", rewriteOutDir, err)
		}
	}
	for _, r := range results {
		cliLog().Info("rewrote script",
			zap.String("file", r.path),
			zap.Int("funcs", len(r.report.Funcs)),
			zap.Int("sites", r.report.Rewritten()))

		if rewriteOutDir != "" {
			dst := filepath.Join(rewriteOutDir, filepath.Base(r.path))
			if err := os.WriteFile(dst, r.src, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", dst, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", r.path, dst)
			continue
		}
		if len(results) > 1 {
			fmt.Fprintf(cmd.OutOrStdout(), "// %s\n", r.path)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(r.src))
	}
	return nil
}

func rewriteFile(path string) ([]byte, *rewrite.Report, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w: %v", path, forward.ErrSourceUnavailable, err)
	}
	return forward.Rewrite(path, src, forwardOptions()...)
}

// writeRewritten rewrites path into dir, leaving dir untouched when the
// result equals what is already there.
func writeRewritten(_ context.Context, path, dir string) error {
	out, report, err := rewriteFile(path)
	if err != nil {
		return err
	}
	dst := filepath.Join(dir, filepath.Base(path))
	if old, err := os.ReadFile(dst); err == nil && bytes.Equal(old, out) {
		return nil
	}
	if err := os.WriteFile(dst, out, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	cliLog().Info("rewrote script", zap.String("file", path), zap.String("out", dst), zap.Int("sites", report.Rewritten()))
	return nil
}
