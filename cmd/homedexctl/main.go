// Command homedexctl runs the manual pipeline and catalog maintenance
// from the shell.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/markdave123-py/Homedex/internal/config"
	"github.com/markdave123-py/Homedex/internal/logging"
)

var (
	cfg     *config.Config
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "homedexctl",
	Short: "Homedex maintenance CLI",
	Long: `homedexctl scans and extracts appliance manuals, rebuilds the vector
store and moves the device catalog in and out as YAML.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.LoadConfig()
		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		logging.Setup(level, "console", os.Stderr)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		cancel()
		os.Exit(1)
	}
}
