// Copyright (C) 2022-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.
package synccmd

import (
	"fmt"
	"strconv"

	"github.com/luxfi/dbsync/pkg/application"
	"github.com/luxfi/dbsync/pkg/config"
	"github.com/luxfi/dbsync/pkg/sync"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var app *application.DBSync

func NewCmd(injectedApp *application.DBSync) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync every configured chain's local database",
		Long: `Runs one full sync: downloads the indexer binary and settings, restores
each chain's database from its published dump, resumes indexing from the
last recorded block, and repackages the results as fresh dumps plus an
updated manifest. Chains are processed one at a time in ascending id order;
the first failure aborts the run.`,
		Args: cobra.NoArgs,
		RunE: runSync,
	}
	app = injectedApp

	cmd.Flags().String(config.DataDirKey, "", "directory for databases, dumps and the manifest (default \"data\" under the working directory)")
	cmd.Flags().String(config.BinDirKey, "", "directory for the extracted indexer binary (default \"bin\" under the working directory)")
	cmd.Flags().StringSlice(config.ChainIDsKey, nil, "additional chain ids to sync beyond those in the manifest")
	_ = viper.BindPFlag(config.DataDirKey, cmd.Flags().Lookup(config.DataDirKey))
	_ = viper.BindPFlag(config.BinDirKey, cmd.Flags().Lookup(config.BinDirKey))
	_ = viper.BindPFlag(config.ChainIDsKey, cmd.Flags().Lookup(config.ChainIDsKey))

	return cmd
}

func runSync(*cobra.Command, []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	rt, err := sync.NewRuntime()
	if err != nil {
		return err
	}
	return sync.Run(rt, cfg)
}

func buildConfig() (sync.Config, error) {
	cfg := sync.DefaultConfig()
	if dataDir := app.Conf.GetConfigStringValue(config.DataDirKey); dataDir != "" {
		cfg.DBDir = dataDir
	}
	if binDir := app.Conf.GetConfigStringValue(config.BinDirKey); binDir != "" {
		cfg.BinDir = binDir
	}
	for _, raw := range app.Conf.GetConfigStringSliceValue(config.ChainIDsKey) {
		chainID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return sync.Config{}, fmt.Errorf("invalid chain id %q: %w", raw, err)
		}
		cfg.ChainIDs = append(cfg.ChainIDs, chainID)
	}
	return cfg, nil
}
