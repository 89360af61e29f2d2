// Copyright (C) 2022-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package indexer invokes the external indexer binary that advances a
// chain's local database. The binary is a black box: this package only
// builds its arguments, feeds it the settings document and reports its exit
// status.
package indexer

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/luxfi/dbsync/pkg/constants"
	"github.com/luxfi/dbsync/pkg/ux"
)

// RunOptions carries everything one indexer invocation needs. Constructed
// fresh per chain; StartBlock and EndBlock stay nil when the indexer should
// decide the bounds itself.
type RunOptions struct {
	BinaryPath   string
	DBPath       string
	ChainID      uint64
	APIToken     string
	SettingsYAML string
	StartBlock   *uint64
	EndBlock     *uint64
}

// Runner executes one sync invocation.
type Runner interface {
	Run(opts RunOptions) error
}

type execRunner struct {
	ul *ux.UserLog
}

func NewRunner() Runner {
	return &execRunner{ul: ux.Default()}
}

func NewRunnerWithLog(ul *ux.UserLog) Runner {
	return &execRunner{ul: ul}
}

func (r *execRunner) Run(opts RunOptions) error {
	if opts.APIToken == "" {
		return fmt.Errorf(
			"no API token provided for chain %d; set one of: %s",
			opts.ChainID, strings.Join(constants.APITokenEnvVars, ", "),
		)
	}

	settingsPath, err := writeSettingsFile(opts.SettingsYAML)
	if err != nil {
		return err
	}
	defer os.Remove(settingsPath)

	args := buildArgs(opts, settingsPath)
	r.ul.PrintToUser("Running: %s %s", opts.BinaryPath, strings.Join(redactArgs(args), " "))

	cmd := exec.Command(opts.BinaryPath, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("indexer sync failed for chain %d (exit code %d)", opts.ChainID, exitErr.ExitCode())
		}
		return fmt.Errorf("failed to spawn %s: %w", constants.IndexerBinaryName, err)
	}
	return nil
}

func buildArgs(opts RunOptions, settingsPath string) []string {
	args := []string{
		"local-db", "sync",
		"--db-path", opts.DBPath,
		"--chain-id", strconv.FormatUint(opts.ChainID, 10),
		"--settings", settingsPath,
		"--api-token", opts.APIToken,
	}
	if opts.StartBlock != nil {
		args = append(args, "--start-block", strconv.FormatUint(*opts.StartBlock, 10))
	}
	if opts.EndBlock != nil {
		args = append(args, "--end-block", strconv.FormatUint(*opts.EndBlock, 10))
	}
	return args
}

// redactArgs masks the credential so no logged representation of the
// invocation ever contains it.
func redactArgs(args []string) []string {
	redacted := make([]string, len(args))
	copy(redacted, args)
	for i, arg := range redacted {
		if arg == "--api-token" && i+1 < len(redacted) {
			redacted[i+1] = "***"
		}
	}
	return redacted
}

func writeSettingsFile(settingsYAML string) (string, error) {
	f, err := os.CreateTemp("", "dbsync-settings-*.yaml")
	if err != nil {
		return "", fmt.Errorf("failed to create settings file: %w", err)
	}
	if _, err := f.WriteString(settingsYAML); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write settings file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close settings file: %w", err)
	}
	return f.Name(), nil
}
