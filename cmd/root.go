// Copyright (C) 2022-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cmd

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/luxfi/dbsync/cmd/manifestcmd"
	"github.com/luxfi/dbsync/cmd/synccmd"
	"github.com/luxfi/dbsync/pkg/application"
	"github.com/luxfi/dbsync/pkg/config"
	"github.com/luxfi/dbsync/pkg/constants"
	"github.com/luxfi/dbsync/pkg/ux"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	app *application.DBSync

	Version  = "0.3.0"
	cfgFile  string
	logLevel string
)

func NewRootCmd() *cobra.Command {
	// rootCmd represents the base command when called without any subcommands
	rootCmd := &cobra.Command{
		Use: "dbsync",
		Long: `dbsync - Local database sync orchestration for Lux indexer artifacts.

dbsync installs the external indexer binary, restores each chain's local
database from its published dump, resumes syncing from the last recorded
block, and re-publishes fresh dumps together with a versioned manifest.

COMMAND OVERVIEW:

  sync        Run a full sync across every configured chain
  manifest    Maintain the artifact manifest (schema and seed bumps)

For detailed command help, use: dbsync <command> --help`,
		PersistentPreRunE: createApp,
		Version:           Version,
	}

	// Disable printing the completion command
	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dbsync/dbsync.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "error", "log level for the file log")

	// add sub commands
	rootCmd.AddCommand(synccmd.NewCmd(app))
	rootCmd.AddCommand(manifestcmd.NewCmd(app))

	return rootCmd
}

func createApp(_ *cobra.Command, _ []string) error {
	baseDir, err := setupEnv()
	if err != nil {
		return err
	}
	log, err := setupLogging(baseDir)
	if err != nil {
		return err
	}

	cf := config.New()
	app.Setup(baseDir, log, cf)

	initConfig()
	return nil
}

func setupEnv() (string, error) {
	// Set base dir
	usr, err := user.Current()
	if err != nil {
		// no logger here yet
		fmt.Printf("unable to get system user %s\n", err)
		return "", err
	}
	baseDir := filepath.Join(usr.HomeDir, constants.BaseDirName)

	// Create base dir if it doesn't exist
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		// no logger here yet
		fmt.Printf("failed creating the basedir %s: %s\n", baseDir, err)
		return "", err
	}

	return baseDir, nil
}

func setupLogging(baseDir string) (*zap.Logger, error) {
	logDir := filepath.Join(baseDir, constants.LogDir)
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed creating log directory: %w", err)
	}

	level, err := zap.ParseAtomicLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}

	logConfig := zap.NewProductionConfig()
	logConfig.Level = level
	logConfig.OutputPaths = []string{filepath.Join(logDir, constants.LogFileName)}
	logConfig.ErrorOutputPaths = []string{filepath.Join(logDir, constants.LogFileName)}

	log, err := logConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed setting up logging, exiting: %w", err)
	}

	// create the user facing logger as a global var
	// User output goes to stdout, logs go to the log file
	ux.NewUserLog(log, os.Stdout)
	return log, nil
}

// initConfig reads in config file and ENV variables if set.
// Priority: flags > env vars > config file > defaults
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in ~/.dbsync/ directory
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(filepath.Join(home, constants.BaseDirName))
		viper.SetConfigType("yaml")
		viper.SetConfigName("dbsync")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		app.Log.Debug("using config file", zap.String("config-file", viper.ConfigFileUsed()))
	}
	// No config file is normal - most users don't have one, so we silently continue
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	app = application.New()
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\nERROR: %s\n", err)
		os.Exit(1)
	}
}
