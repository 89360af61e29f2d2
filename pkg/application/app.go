// Copyright (C) 2022-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.
package application

import (
	"path/filepath"

	"github.com/luxfi/dbsync/pkg/config"
	"github.com/luxfi/dbsync/pkg/constants"
	"go.uber.org/zap"
)

// DBSync bundles the state every command needs: the file logger, the base
// directory under the user's home, and the viper-backed configuration.
type DBSync struct {
	Log     *zap.Logger
	baseDir string
	Conf    *config.Config
}

func New() *DBSync {
	return &DBSync{}
}

func (app *DBSync) Setup(baseDir string, log *zap.Logger, conf *config.Config) {
	app.baseDir = baseDir
	app.Log = log
	app.Conf = conf
}

func (app *DBSync) GetBaseDir() string {
	return app.baseDir
}

func (app *DBSync) GetLogDir() string {
	return filepath.Join(app.baseDir, constants.LogDir)
}

func (app *DBSync) GetLogFilePath() string {
	return filepath.Join(app.GetLogDir(), constants.LogFileName)
}

func (app *DBSync) ConfigFileExists() bool {
	return app.Conf.ConfigFileExists()
}
