package cmd

import (
	"fmt"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/firewatch-ai/firewatch/cmd/configcmd"
	"github.com/firewatch-ai/firewatch/cmd/serve"
	"github.com/firewatch-ai/firewatch/cmd/stream"
	"github.com/firewatch-ai/firewatch/cmd/verify"
	"github.com/firewatch-ai/firewatch/internal/buildinfo"
	"github.com/firewatch-ai/firewatch/internal/conf"
	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/logger"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "firewatch",
		Short:         "Wildfire hotspot verification and fire/smoke detection",
		Version:       buildinfo.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	configCmd := configcmd.Command(settings)
	rootCmd.AddCommand(
		verify.Command(settings),
		stream.Command(settings),
		serve.Command(settings),
		configCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// config show must work even when the settings are invalid
		if cmd.Parent() == configCmd {
			return nil
		}
		return initialize(settings)
	}

	return rootCmd
}

// initialize is called before any subcommand runs, after flags have been
// applied to settings.
func initialize(settings *conf.Settings) error {
	if err := conf.ValidateSettings(settings); err != nil {
		return err
	}

	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}
	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	if settings.Sentry.Enabled {
		if err := setupSentry(settings); err != nil {
			// telemetry never blocks the pipeline
			central.Module("main").Warn("error telemetry disabled", logger.Error(err))
		}
	}
	return nil
}

func setupSentry(settings *conf.Settings) error {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      settings.Sentry.Environment,
		ServerName:       "", // no hostname in events
		Release:          buildinfo.Release(),
	})
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", settings.Debug, "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.FIRMS.MapKey, "mapkey", settings.FIRMS.MapKey, "NASA FIRMS map key")
	rootCmd.PersistentFlags().StringVar(&settings.Detector.ModelPath, "model", settings.Detector.ModelPath, "Path to the fire/smoke TFLite model")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	if err := viper.BindPFlag("firms.mapkey", rootCmd.PersistentFlags().Lookup("mapkey")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	if err := viper.BindPFlag("detector.modelpath", rootCmd.PersistentFlags().Lookup("model")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
