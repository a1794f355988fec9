package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serverURL string
	apiKey    string
)

var rootCmd = &cobra.Command{
	Use:   "warden-cli",
	Short: "warden-cli is the command-line interface for Regression-Warden.",
	Long:  `A CLI for interacting with a running Regression-Warden service: triggering reviews, queueing webhook-style requests, and replaying dead-lettered messages.`,
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "Regression-Warden server URL")
	rootCmd.PersistentFlags().StringVarP(&apiKey, "api-key", "k", "", "API key for the service")

	if err := viper.BindPFlag("API_KEY", rootCmd.PersistentFlags().Lookup("api-key")); err != nil {
		slog.Error("Error binding flag", "error", err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetEnvPrefix("RW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// resolveAPIKey prefers the flag and falls back to RW_API_KEY.
func resolveAPIKey() string {
	if apiKey != "" {
		return apiKey
	}
	return viper.GetString("API_KEY")
}
