// cmd/supportanon/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/colebrumley/supportanon/internal/config"
	"github.com/colebrumley/supportanon/internal/logging"
	"github.com/colebrumley/supportanon/internal/service"
)

var (
	version = "dev"

	// Global flags
	configFlag   string
	outputFlag   string
	logLevelFlag string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "supportanon",
		Short: "Anonymize Jenkins support bundle content",
		Long: `supportanon replaces the names of items, views, nodes, computers, users
and labels, as well as IP addresses, with stable generated tokens, and
redacts secret values, so diagnostic content can be shared safely.

The configuration file is taken from --config, then $SUPPORTANON_CONFIG,
then ` + config.DefaultConfigPath + `.`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "warn", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newFilterCmd())
	rootCmd.AddCommand(newMappingsCmd())
	rootCmd.AddCommand(newLookupCmd())
	rootCmd.AddCommand(newRefreshCmd())
	rootCmd.AddCommand(newClearCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newMCPCmd())

	return rootCmd
}

// newLogger logs to stderr so stdout only carries command output.
func newLogger(cfg *config.Global) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Format, logLevelFlag, os.Stderr)
}

// openService loads the configuration and initializes the service. The
// caller must Close it so the mappings are saved.
func openService(ctx context.Context) (*service.Service, error) {
	path := config.Path(configFlag)
	cfg, err := config.LoadGlobal(path)
	if err != nil {
		return nil, fmt.Errorf("%w (run 'supportanon init' to create %s)", err, path)
	}
	svc := service.New(cfg, newLogger(cfg))
	if err := svc.Init(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

// withService runs fn against an initialized service and saves afterwards.
func withService(ctx context.Context, fn func(*service.Service) error) (err error) {
	svc, err := openService(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("saving mappings: %w", cerr)
		}
	}()
	return fn(svc)
}
