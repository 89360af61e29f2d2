// Copyright (C) 2022-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package localdb manages the per-chain working database files: restoring
// them from compressed dumps before a sync, discovering their recorded
// progress, and packaging them back into dumps afterwards.
package localdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/luxfi/dbsync/pkg/archive"
	"github.com/luxfi/dbsync/pkg/constants"
	"github.com/luxfi/dbsync/pkg/ux"
)

// Manager drives the working-database lifecycle for one run.
type Manager struct {
	ul *ux.UserLog
}

func NewManager() *Manager {
	return &Manager{ul: ux.Default()}
}

func NewManagerWithLog(ul *ux.UserLog) *Manager {
	return &Manager{ul: ul}
}

// Paths returns the working database and dump locations for a chain stem
// inside dbDir.
func Paths(stem string, dbDir string) (dbPath string, dumpPath string) {
	dbPath = filepath.Join(dbDir, stem+".db")
	dumpPath = filepath.Join(dbDir, stem+".db.tar.gz")
	return dbPath, dumpPath
}

// Prepare materializes the working database for stem inside dbDir. Any stale
// working database left over from a previous failed run is removed first. If
// a compressed dump exists it is extracted in place; otherwise no working
// database is created and the indexer is expected to initialize one.
func (m *Manager) Prepare(stem string, dbDir string) (string, string, error) {
	dbPath, dumpPath := Paths(stem, dbDir)

	if err := os.MkdirAll(dbDir, constants.DefaultPerms755); err != nil {
		return "", "", fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
	}

	if pathExists(dbPath) {
		if err := os.Remove(dbPath); err != nil {
			return "", "", fmt.Errorf("failed to remove existing database %s: %w", dbPath, err)
		}
	}

	if pathExists(dumpPath) {
		m.ul.PrintToUser("Extracting dump for %s from %s", stem, dumpPath)
		if err := archive.ExtractTarGz(dumpPath, dbDir); err != nil {
			// don't leave a partially extracted database behind
			_ = os.Remove(dbPath)
			return "", "", fmt.Errorf("failed to extract dump for %s: %w", stem, err)
		}
	} else {
		m.ul.PrintToUser("No existing dump for %s; the indexer will initialize a new database.", stem)
	}

	return dbPath, dumpPath, nil
}

// Finalize packages the working database back into its compressed dump. A
// missing working database is not an error: it signals the indexer produced
// nothing to persist. The previous dump is only replaced once the new one is
// fully written, and the working database is removed afterwards.
func (m *Manager) Finalize(stem string, dbPath string, dumpPath string) error {
	if !pathExists(dbPath) {
		m.ul.PrintToUser("No database file produced for %s; skipping archive.", stem)
		return nil
	}

	tmpDumpPath := dumpPath + ".tmp"
	m.ul.PrintToUser("Archiving database for %s to %s", stem, dumpPath)
	if err := archive.WriteFileTarGz(dbPath, tmpDumpPath); err != nil {
		_ = os.Remove(tmpDumpPath)
		return fmt.Errorf("failed to archive database for %s: %w", stem, err)
	}

	if err := os.Rename(tmpDumpPath, dumpPath); err != nil {
		_ = os.Remove(tmpDumpPath)
		return fmt.Errorf("failed to move archive %s to %s: %w", tmpDumpPath, dumpPath, err)
	}
	if err := os.Remove(dbPath); err != nil {
		return fmt.Errorf("failed to remove working database %s: %w", dbPath, err)
	}
	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist) && err == nil
}
