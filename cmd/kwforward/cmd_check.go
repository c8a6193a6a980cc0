package main

import (
	"fmt"
	"strings"

	"kwforward/internal/config"
	"kwforward/internal/logging"
	"kwforward/internal/script"

	"github.com/spf13/cobra"
)

var checkCompile bool

// checkCmd reports what decoration would do to a script
var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Report decorated functions and their forwarding call sites",
	Long: `Lists every decorated function of the script with each forwarding
call site and whether it was rewritten. Sites whose callee cannot be
resolved are left untouched and reported with the reason.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	path := args[0]
	out, report, err := rewriteFile(path)
	if err != nil {
		return err
	}

	logging.CLI("check %s: %d decorated functions", path, len(report.Funcs))

	w := cmd.OutOrStdout()
	if len(report.Funcs) == 0 {
		fmt.Fprintf(w, "%s: no decorated functions\n", path)
	}
	untouched := 0
	for _, f := range report.Funcs {
		if f.Skipped {
			fmt.Fprintf(w, "%s: no bag parameter, unchanged\n", f.Name)
			continue
		}
		fmt.Fprintf(w, "%s(%s): guard claims %s\n", f.Name, f.Bag, strings.Join(f.Claims, ", "))
		for _, s := range f.Sites {
			if !s.Rewritten {
				untouched++
			}
			fmt.Fprintf(w, "  %s\n", s)
		}
	}

	if checkCompile {
		c := cfg
		if c == nil {
			c = config.DefaultConfig()
		}
		in := script.NewInterpreter(c.Script.AllowedPackages, c.Rewrite.ImportPath)
		if _, err := in.Compile(contextOf(cmd), path, out); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: compiles\n", path)
	}
	if untouched > 0 {
		return fmt.Errorf("%s: %d forwarding call sites left untouched", path, untouched)
	}
	return nil
}
