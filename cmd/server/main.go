// Command valuesreport runs the Values Report Telegram bot and its admin tools.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soaringjerry/valuesreport/internal/config"
	"github.com/soaringjerry/valuesreport/internal/logging"
	"github.com/soaringjerry/valuesreport/internal/utils"
)

// Set with -ldflags "-X main.commit=... -X main.buildTime=...".
var (
	commit    = "dev"
	buildTime = ""
)

const appName = "valuesreport"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions carries the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Personal values report bot",
		Long: `valuesreport runs a Telegram bot that walks a user through choosing their
core values, generates a narrative report with an LLM and delivers it as a PDF.

Without a subcommand it starts the bot (same as "serve").`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", utils.SafeEnv("VALUES_CONFIG", "config.yaml"), "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")

	cmd.AddCommand(
		serveCmd(opts),
		codesCmd(opts),
		exportCmd(opts),
		hashPasswordCmd(),
		versionCmd(),
	)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (build: %s)\n", appName, versionCommit(), versionBuildTime())
		},
	}
}

func versionCommit() string    { return utils.SafeEnv("VALUES_COMMIT", commit) }
func versionBuildTime() string { return utils.SafeEnv("VALUES_BUILD_TIME", buildTime) }

// load reads the config and builds the logger. The --log-level flag wins over
// the file and the environment.
func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}
