package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sofmeright/crtb/src/config"
	"github.com/sofmeright/crtb/src/logging"
)

var (
	cfgFile   string
	verbose   bool
	quiet     bool
	logFormat string

	cfg    *config.Config
	logger = logging.Discard()
)

var rootCmd = &cobra.Command{
	Use:   "crtb",
	Short: "Game server component toolchain",
	Long: `crtb assembles a server tree from declared components: a world,
datapacks, plugins, resource packs and mods. Each component is fetched from
a local path, an HTTP URL or a git repository, optionally built, and copied
into the server directory.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		format, err := logging.ParseFormat(logFormat)
		if err != nil {
			return err
		}
		logger = logging.New(logging.Config{Verbose: verbose, Quiet: quiet, Format: format, Writer: os.Stderr})
		slog.SetDefault(logger)

		// Skip config loading for commands that don't need it.
		if cmd.Name() == "version" {
			return nil
		}
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		warnings, err := config.Validate(cfg)
		for _, w := range warnings {
			logger.Warn("config: " + w)
		}
		if err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		logger.Debug("config loaded", "path", cfg.Path, "root", cfg.Root,
			"flavor", cfg.Server.Flavor, "components", len(cfg.Components))
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: crtb.yml, crtb.yaml or crtb.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
