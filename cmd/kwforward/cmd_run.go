package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"kwforward/pkg/forward"
	"kwforward/pkg/kw"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	runKeywords []string
	runArgs     []string
)

// runCmd decorates a script and calls one of its functions
var runCmd = &cobra.Command{
	Use:   "run <file> <func>",
	Short: "Decorate a script and call one of its functions",
	Long: `Loads the script, rewrites its decorated functions and calls <func>
with the --arg values followed by the --kw keywords. Values are YAML
scalars: 3 is an int, 2.5 a float, true a bool, anything else a string.

Example:
  kwforward run demo.go top --kw dingo=x --kw boonk=y`,
	Args: cobra.ExactArgs(2),
	RunE: runCall,
}

func runCall(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(contextOf(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bag, err := parseKeywords(runKeywords)
	if err != nil {
		return err
	}
	positional := make([]any, 0, len(runArgs))
	for _, a := range runArgs {
		v, err := parseScalar(a)
		if err != nil {
			return fmt.Errorf("--arg %q: %w", a, err)
		}
		positional = append(positional, v)
	}

	p, err := forward.Load(ctx, args[0], forwardOptions()...)
	if err != nil {
		return err
	}
	cliLog().Debug("calling", zap.String("file", args[0]), zap.String("func", args[1]), zap.Strings("keywords", bag.Keys()))

	out, err := p.Call(ctx, args[1], bag, positional...)
	if err != nil {
		return err
	}
	for _, r := range out {
		fmt.Fprintln(cmd.OutOrStdout(), r)
	}
	return nil
}

// parseKeywords turns key=value pairs into a bag.
func parseKeywords(pairs []string) (kw.Bag, error) {
	bag := make(kw.Bag, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("--kw %q: want key=value", pair)
		}
		if _, dup := bag[key]; dup {
			return nil, fmt.Errorf("--kw %q: keyword repeated", key)
		}
		v, err := parseScalar(raw)
		if err != nil {
			return nil, fmt.Errorf("--kw %q: %w", pair, err)
		}
		bag[key] = v
	}
	return bag, nil
}

func parseScalar(raw string) (any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	if v == nil {
		return raw, nil
	}
	switch v.(type) {
	case map[string]any, []any:
		return raw, nil
	}
	return v, nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
