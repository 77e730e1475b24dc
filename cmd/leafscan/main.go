// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the leafscan CLI.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/leafscan/internal/inference"
	"github.com/pdiddy/leafscan/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// session is the signed-in user loaded from the secrets directory at startup.
var session secrets.Session

// log is the process logger. --verbose raises it to debug.
var log = logrus.New()

// rootCmd is the base command for the leafscan CLI.
var rootCmd = &cobra.Command{
	Use:   "leafscan",
	Short: "Offline crop-disease detection from leaf photos",
	Long: `leafscan classifies a photo of a crop leaf with an on-device model,
looks up a treatment guide for the predicted disease, and records the scan
in a local history.

Scans work without a network connection. When a user is signed in and the
history endpoint becomes reachable, pending scans are pushed upstream by
sync or watch.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			log.SetLevel(logrus.DebugLevel)
		}

		s, err := secrets.LoadSession(secretsDir())
		if err != nil {
			return err
		}
		session = s
		if s.Authenticated() {
			log.WithField("user", s.UserID).Debug("loaded session")
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ./leafscan.yaml or ~/.config/leafscan/leafscan.yaml)")
	flags.Bool("verbose", false, "log debug output to stderr")
	flags.String("secrets-dir", ".secrets", "directory holding session-user-id and session-token")
	flags.String("lang", "", "catalog language: en, hi, or mr")
	flags.String("store", "", "local store backend: auto, sqlite, or memory")
	flags.String("db", "", "SQLite database path")

	viper.BindPFlag("catalog.language", flags.Lookup("lang"))
	viper.BindPFlag("store.backend", flags.Lookup("store"))
	viper.BindPFlag("store.path", flags.Lookup("db"))
	viper.BindPFlag("secrets.dir", flags.Lookup("secrets-dir"))

	setDefaults()
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("leafscan")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "leafscan"))
		}
	}

	viper.SetEnvPrefix("LEAFSCAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.WithField("file", viper.ConfigFileUsed()).Debug("using config file")
	}
}

func secretsDir() string {
	if dir := viper.GetString("secrets.dir"); dir != "" {
		return dir
	}
	return ".secrets"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, inference.ErrModelUnavailable) || errors.Is(err, inference.ErrLabelMismatch) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}

// notef prints a note that is not an error to stderr.
func notef(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
}
