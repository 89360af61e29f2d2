// Copyright (C) 2022-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package binutils installs the external indexer binary a sync run drives.
package binutils

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/luxfi/dbsync/pkg/archive"
	"github.com/luxfi/dbsync/pkg/constants"
	"github.com/luxfi/dbsync/pkg/httpclient"
	"github.com/luxfi/dbsync/pkg/ux"
)

// DownloadArchive fetches the indexer release archive and writes it to
// destination.
func DownloadArchive(client httpclient.Client, url string, destination string) error {
	bytes, err := client.FetchBinary(url)
	if err != nil {
		return err
	}
	if err := os.WriteFile(destination, bytes, constants.WriteReadReadPerms); err != nil {
		return fmt.Errorf("failed to write archive to %s: %w", destination, err)
	}
	ux.Default().PrintToUser("Downloaded indexer archive to %s (%d bytes)", destination, len(bytes))
	return nil
}

// ExtractIndexer unpacks the archive into outputDir, locates the indexer
// binary anywhere in the extracted tree and marks it executable.
func ExtractIndexer(archivePath string, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, constants.DefaultPerms755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", outputDir, err)
	}

	if err := archive.ExtractTarGz(archivePath, outputDir); err != nil {
		return "", fmt.Errorf("failed to extract indexer archive: %w", err)
	}

	binaryPath, err := findIndexerBinary(outputDir)
	if err != nil {
		return "", err
	}
	if binaryPath == "" {
		return "", fmt.Errorf("unable to locate %s binary under %s", constants.IndexerBinaryName, outputDir)
	}

	if err := os.Chmod(binaryPath, constants.DefaultPerms755); err != nil {
		return "", fmt.Errorf("failed to set executable bit on %s: %w", binaryPath, err)
	}

	ux.Default().PrintToUser("Extracted indexer binary to %s", binaryPath)
	return binaryPath, nil
}

func findIndexerBinary(root string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if found == "" && !d.IsDir() && d.Name() == constants.IndexerBinaryName {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to scan %s for indexer binary: %w", root, err)
	}
	return found, nil
}
