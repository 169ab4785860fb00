// Package cmd defines and implements the CLI commands for the logohunter
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/logohunter/internal/app"
	"github.com/JakeFAU/logohunter/internal/config"
	"github.com/JakeFAU/logohunter/internal/logging"
	pkgconfig "github.com/JakeFAU/logohunter/pkg/config"
)

const shutdownTimeout = 10 * time.Second

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// appFactory builds the service container. Tests swap it to isolate
// metric registries and storage.
type appFactory func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error)

func defaultAppFactory(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// loggerFactory builds the process logger from the loaded settings.
type loggerFactory func(cfg config.LoggingConfig) (*zap.Logger, error)

func defaultLoggerFactory(cfg config.LoggingConfig) (*zap.Logger, error) {
	return logging.New(logging.Config{Development: cfg.Development, Level: cfg.Level})
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd(newApp appFactory, newLogger loggerFactory) *cobra.Command {
	var (
		cfgFile string
		verbose bool
	)
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "logohunter",
		Short: "Find the best logo of a website.",
		Long: `logohunter discovers logo candidates on a website (manifest icons,
apple-touch icons, favicons, social images, logo-looking <img> elements and
well-known paths), ranks them with a weighted rule table, fetches them in rank
order until one passes validation, and converts the winner to the requested
format and size.`,
		SilenceUsage: true,

		// Config and services are built once the flags are parsed, before the
		// subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			used, err := pkgconfig.InitConfig(v, cfgFile)
			if err != nil {
				return err
			}
			if verbose {
				v.Set("logging.level", "debug")
			}
			cfg, err := config.FromViper(v)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logger, err := newLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			if used != "" {
				logger.Debug("Using config file", zap.String("path", used))
			}

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			closeErr := appInstance.Close(ctx)
			// Syncing stderr fails on some platforms; nothing useful to do then.
			_ = appInstance.Logger().Sync()
			return closeErr
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml, $HOME/.logohunter or /etc/logohunter)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	cmd.AddCommand(newHuntCmd())
	cmd.AddCommand(newCandidatesCmd())
	cmd.AddCommand(newBatchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHistoryCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	if ctx == nil {
		return nil, errors.New("application services not initialized")
	}
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(defaultAppFactory, defaultLoggerFactory).ExecuteContext(ctx); err != nil {
		// Cobra already printed the error.
		stop()
		os.Exit(1)
	}
}
