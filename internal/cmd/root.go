package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/config"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "studio",
	Short: "In-process agent orchestration studio",
	Long: `Studio runs a fleet of in-process agents over a topic-based message
bus, delegating decomposed tasks to capability-matched agents and
aggregating their results.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/studio/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("STUDIO")
	// Replace dots with underscores for nested keys in env vars
	// e.g., STUDIO_DELEGATION_DEFAULT_TIMEOUT_SECONDS
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// loadConfig reads and validates the effective configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return cfg, nil
}

// newLogger builds the process logger from the loaded configuration.
func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(os.Stderr, cfg.Logging.Level)
}
