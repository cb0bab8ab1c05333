package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/cli"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/config"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ollama-proxy",
	Short: "Transparent analytics proxy for the Ollama API",
	Long: `Ollama Proxy sits in front of an Ollama daemon and forwards every request
unchanged while recording metrics and analytics about each interaction.

Clients keep talking to the usual Ollama port; the daemon itself listens on
another port (11435 by default).`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path (optional; defaults and environment apply when missing)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig reads the configuration file with environment overrides and
// publishes it as the global configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Initialize(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError(cfgFile, err.Error())
	}
	return cfg, nil
}

// configFileExists reports whether the --config path names a readable file.
func configFileExists() bool {
	if cfgFile == "" {
		return false
	}
	_, err := os.Stat(cfgFile)
	return err == nil
}
