// Copyright (C) 2022-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.
package constants

import (
	"fmt"
	"time"
)

const (
	DefaultPerms755    = 0o755
	WriteReadReadPerms = 0o644

	BaseDirName = ".dbsync"
	LogDir      = "logs"
	LogFileName = "dbsync.log"

	DataDirName      = "data"
	BinDirName       = "bin"
	ManifestFileName = "manifest.yaml"

	// IndexerBinaryName is the file name the extracted archive must contain.
	IndexerBinaryName  = "lux-indexer"
	IndexerArchiveName = "lux-indexer.tar.gz"

	IndexerBinaryURLEnvVar = "LUX_INDEXER_BINARY_URL"
	SettingsURLEnvVar      = "LUX_INDEXER_SETTINGS_URL"
	SyncChainIDsEnvVar     = "LUX_SYNC_CHAIN_IDS"

	RequestTimeout = 3 * time.Minute
)

// APITokenEnvVars are checked in order; the first non-empty value wins.
var APITokenEnvVars = []string{
	"LUX_API_TOKEN",
	"LUX_INDEXER_API_TOKEN",
	"HYPERRPC_API_TOKEN",
}

const releaseDownloadURLBase = "https://github.com/luxfi/localdb-artifacts/releases/latest/download"

// ReleaseDownloadURL returns the published location of a release artifact
// such as the manifest or a per-chain database dump.
func ReleaseDownloadURL(file string) string {
	return fmt.Sprintf("%s/%s", releaseDownloadURLBase, file)
}
