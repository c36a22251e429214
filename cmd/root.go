package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cadence/internal/config"
	"github.com/xkilldash9x/cadence/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// NewRootCommand creates a fresh command tree. Each call returns an
// independent tree, which the interactive shell relies on.
func NewRootCommand() *cobra.Command {
	return newRootCmd()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "cadence",
		Short:   "Cadence types messages the way a person would.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.NewDefaultConfig().Logger())
				return fmt.Errorf("failed to load or validate config: %w", err)
			}
			if err := applyFlagOverrides(cmd, cfg); err != nil {
				observability.InitializeLogger(cfg.Logger())
				return err
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting cadence", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().Int64("seed", 0, "random seed for reproducible output (0 picks one from the clock)")
	rootCmd.PersistentFlags().IntSlice("wpm", nil, "typing speed range in words per minute, as min,max")
	rootCmd.PersistentFlags().Float64("typo-probability", 0, "chance that a five-letter word gets a typo")
	rootCmd.PersistentFlags().Bool("fatigue", true, "slow down as the session goes on")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newTyposCmd())
	rootCmd.AddCommand(newTimingCmd())
	rootCmd.AddCommand(newDeliverCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command tree with ctx, which should be cancelled on
// SIGINT/SIGTERM.
func Execute(ctx context.Context) error {
	defer observability.Sync()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			observability.GetLogger().Error("Command execution failed", zap.Error(err))
		}
		return err
	}
	return nil
}

// initializeConfig reads the config file, if any.
func initializeConfig(cmd *cobra.Command, v *viper.Viper) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and env vars apply.
	}
	return nil
}

// applyFlagOverrides applies flags the user set explicitly on top of the
// config file and environment, then re-validates the result.
func applyFlagOverrides(cmd *cobra.Command, cfg config.Interface) error {
	flags := cmd.Flags()

	if flags.Changed("wpm") {
		wpm, _ := flags.GetIntSlice("wpm")
		if len(wpm) != 2 {
			return fmt.Errorf("--wpm takes min,max; got %v", wpm)
		}
		cfg.SetTypingWPMRange(wpm[0], wpm[1])
	}
	if flags.Changed("typo-probability") {
		p, _ := flags.GetFloat64("typo-probability")
		cfg.SetTypoProbability(p)
	}
	if flags.Changed("fatigue") {
		fatigue, _ := flags.GetBool("fatigue")
		cfg.SetFatigueSimulation(fatigue)
	}

	// Delivery flags exist only on the deliver command.
	if flags.Changed("mode") {
		mode, _ := flags.GetString("mode")
		cfg.SetDeliveryMode(mode)
	}
	if flags.Changed("typos") {
		typos, _ := flags.GetBool("typos")
		cfg.SetDeliveryEnableTypos(typos)
	}
	if flags.Changed("speed") {
		speed, _ := flags.GetFloat64("speed")
		if speed <= 0 {
			return fmt.Errorf("--speed must be greater than 0, got %v", speed)
		}
		cfg.SetDeliveryTimingMultiplier(cfg.Delivery().TimingMultiplier / speed)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flag value: %w", err)
	}
	return nil
}

// configFromContext returns the config stored by the root command.
func configFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
