package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pendergraft/deployer/internal/config"
)

var (
	cfgFile string
	envFile string
)

// Execute runs the CLI
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	deployCmd := createDeployCmd()

	rootCmd := &cobra.Command{
		Use:   "drm-deploy",
		Short: "Deploy the DisasterResponseMining contract",
		Long: `drm-deploy deploys the DisasterResponseMining contract to Core Testnet,
verifies it, and records the result in deployment-info.json.

Default behavior (no subcommand) is to deploy.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          deployCmd.RunE,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: deploy.toml or deploy.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	// The root command deploys, so it accepts the deploy flags too
	rootCmd.Flags().AddFlagSet(deployCmd.Flags())

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(createHistoryCmd())
	rootCmd.AddCommand(createConfigCmd())
	rootCmd.AddCommand(createVerifyCmd())
	rootCmd.AddCommand(createVersionCmd(version))

	return rootCmd
}

func createVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "drm-deploy %s\n", version)
		},
	}
}

// loadConfig reads configuration from the global --config and --env-file flags
func loadConfig() (*config.Config, string, error) {
	cfg, path, err := config.Load(config.LoadOptions{ConfigFile: cfgFile, EnvFile: envFile})
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func setupLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// truncateAddress shortens an address for table output
func truncateAddress(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// stderr is where logs go so stdout stays a clean report
var stderr io.Writer = os.Stderr
