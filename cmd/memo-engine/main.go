// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the memo-engine CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/memo-engine/internal/secrets"
	"github.com/pdiddy/memo-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the memo-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "memo-engine",
	Short: "Turn voice memos into structured vault notes",
	Long: `memo-engine watches a directory of voice recordings, transcribes each
one, analyzes the transcript with a chat model under strict rate
ceilings, and writes a structured Markdown note into the vault inbox.

The catalog subcommand inspects the SQLite note registry; harvest
indexes an existing vault into it.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./memo-engine.yaml or ~/.config/memo-engine/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("memo-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "memo-engine"))
		}
	}

	viper.SetEnvPrefix("MEMO_ENGINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig decodes the viper state into a Config, fills defaults, and
// resolves the analysis API key from .secrets/ when the config file and
// environment leave it empty.
func loadConfig() (types.Config, error) {
	var cfg types.Config
	err := viper.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
		dc.DecodeHook = mapstructure.StringToTimeDurationHookFunc()
	})
	if err != nil {
		return types.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	cfg.ApplyDefaults()

	if cfg.Analysis.APIKey == "" {
		cfg.Analysis.APIKey = loadedSecrets[secrets.GroqAPIKey]
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
