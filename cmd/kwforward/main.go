package main

import (
	"fmt"
	"os"
	"time"

	"kwforward/internal/config"
	"kwforward/internal/logging"
	"kwforward/pkg/forward"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "kwforward",
	Short: "Forward keyword bags to exactly the callees that accept them",
	Long: `kwforward rewrites Go scripts whose functions spread a keyword bag into
their callees. Every forwarding call receives only the keywords its callee
declares, and a keyword no callee declares fails before any callee runs.

Mark a function with a //kw:forward line in its doc comment:

  //kw:forward
  func top(kwargs kw.Bag) {
      ding(kwargs...)
      boop(kwargs...)
  }`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			loaded.Logging.DebugMode = true
			loaded.Logging.Level = "debug"
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", configPath, err)
		}
		if err := logging.Initialize(loaded.Logging); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg = loaded
		logger = logging.Get(logging.CategoryCLI).Zap()
		logging.Boot("kwforward %s: config loaded from %s", loaded.Version, configPath)
		if off := loaded.Logging.DisabledCategories(); len(off) > 0 {
			logging.BootDebug("log categories off: %v", off)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Configuration file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Deadline for a script call (default: from config)")

	rewriteCmd.Flags().StringVarP(&rewriteOutDir, "out", "o", "", "Write rewritten files to this directory instead of stdout")
	rewriteCmd.Flags().StringSliceVar(&decorateNames, "decorate", nil, "Decorate these functions even without the directive")

	runCmd.Flags().StringArrayVar(&runKeywords, "kw", nil, "Keyword argument as key=value (repeatable)")
	runCmd.Flags().StringArrayVar(&runArgs, "arg", nil, "Positional argument (repeatable)")
	runCmd.Flags().StringSliceVar(&decorateNames, "decorate", nil, "Decorate these functions even without the directive")

	checkCmd.Flags().BoolVar(&checkCompile, "compile", false, "Also compile the rewritten script")
	checkCmd.Flags().StringSliceVar(&decorateNames, "decorate", nil, "Decorate these functions even without the directive")

	watchCmd.Flags().StringVarP(&watchOutDir, "out", "o", "", "Directory receiving rewritten files (required)")
	_ = watchCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(rewriteCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var decorateNames []string

// forwardOptions turns the loaded config and flags into decoration options.
func forwardOptions() []forward.Option {
	c := cfg
	if c == nil {
		c = config.DefaultConfig()
	}
	opts := []forward.Option{forward.WithConfig(c)}
	if len(decorateNames) > 0 {
		opts = append(opts, forward.WithDecorate(decorateNames...))
	}
	if timeout > 0 {
		opts = append(opts, forward.WithCallTimeout(timeout))
	}
	return opts
}

func cliLog() *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
