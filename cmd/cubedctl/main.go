// Command cubedctl drives the blockwise primitive and fusion engine against
// the in-memory reference store, for manual smoke-testing of plans, runs,
// and fusions — it is never required by the library's own API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cubedgo/cubed/internal/config"
	"github.com/cubedgo/cubed/internal/logging"
)

var (
	cfgPath  string
	logLevel string
	cfg      config.Config
)

var rootCmd = &cobra.Command{
	Use:           "cubedctl",
	Short:         "Inspect and run blockwise primitive operations",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		logging.SetLevel(logging.ParseLevel(cfg.LogLevel))
		registerBuiltinKernels()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a cubed YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (error, warn, info, debug)")

	rootCmd.AddCommand(planCmd, runCmd, fuseCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cubedctl: %v\n", err)
		os.Exit(1)
	}
}
