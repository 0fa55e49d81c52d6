package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/highscore/internal/loadtest"
	"github.com/okian/highscore/pkg/logger"
)

var (
	baseURL   string
	timeout   time.Duration
	logFormat string
	logLevel  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scorectl",
	Short: "Drive and inspect a highscore service",
	Long: `scorectl talks to a running highscore service over HTTP.
It can print leaderboards and run a verifying load against the API.`,
	Example: `  scorectl table --game some_game
  scorectl load --submissions 5000 --workers 16`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Init(logger.WithFormat(logFormat), logger.WithOutput(os.Stderr)); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return logger.SetLevelString(logLevel)
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&baseURL, "url", "u", loadtest.DefaultBaseURL, "Base URL of the service")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", loadtest.DefaultTimeout, "HTTP request timeout")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level")

	rootCmd.AddCommand(tableCmd)
	rootCmd.AddCommand(loadCmd)
}
