// Copyright (C) 2022-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package sync orchestrates one run of the local-db sync: it installs the
// external indexer, bootstraps the manifest and dumps, and advances each
// chain's database strictly sequentially.
package sync

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/luxfi/dbsync/pkg/binutils"
	"github.com/luxfi/dbsync/pkg/constants"
	"github.com/luxfi/dbsync/pkg/httpclient"
	"github.com/luxfi/dbsync/pkg/indexer"
	"github.com/luxfi/dbsync/pkg/localdb"
	"github.com/luxfi/dbsync/pkg/manifest"
	"github.com/luxfi/dbsync/pkg/ux"
)

// ArchiveService installs the external indexer binary.
type ArchiveService interface {
	DownloadArchive(client httpclient.Client, url string, destination string) error
	ExtractIndexer(archivePath string, outputDir string) (string, error)
}

// LocalDBService manages working databases and their plans.
type LocalDBService interface {
	Prepare(stem string, dbDir string) (dbPath string, dumpPath string, err error)
	Plan(dbPath string, dumpPath string) (localdb.Plan, error)
	Finalize(stem string, dbPath string, dumpPath string) error
}

// ManifestService bootstraps and commits the artifact manifest.
type ManifestService interface {
	Download(client httpclient.Client, manifestPath string) (*manifest.Manifest, error)
	HydrateDumps(client httpclient.Client, m *manifest.Manifest, dbDir string) error
	Commit(manifestPath string, chainID uint64, dumpURL string, timestamp time.Time) error
}

// Clock is injected so tests control timestamps.
type Clock interface {
	Now() time.Time
}

// Config is the run-scoped, immutable configuration. Relative directories
// are resolved against the runtime's working directory.
type Config struct {
	DBDir    string
	BinDir   string
	ChainIDs []uint64
}

func DefaultConfig() Config {
	return Config{
		DBDir:  constants.DataDirName,
		BinDir: constants.BinDirName,
	}
}

// Runtime bundles every collaborator a run touches. Production code uses
// NewRuntime; tests swap in doubles member by member.
type Runtime struct {
	Env      map[string]string
	Cwd      string
	HTTP     httpclient.Client
	Archive  ArchiveService
	LocalDB  LocalDBService
	Manifest ManifestService
	Runner   indexer.Runner
	Clock    Clock
	UL       *ux.UserLog
}

// NewRuntime builds the production runtime from the process environment.
func NewRuntime() (*Runtime, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to read current directory: %w", err)
	}
	ul := ux.Default()
	return &Runtime{
		Env:      environMap(),
		Cwd:      cwd,
		HTTP:     httpclient.New(),
		Archive:  &defaultArchiveService{},
		LocalDB:  newDefaultLocalDBService(ul),
		Manifest: &defaultManifestService{ul: ul},
		Runner:   indexer.NewRunnerWithLog(ul),
		Clock:    systemClock{},
		UL:       ul,
	}, nil
}

func environMap() map[string]string {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok {
			env[key] = value
		}
	}
	return env
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type defaultArchiveService struct{}

func (defaultArchiveService) DownloadArchive(client httpclient.Client, url string, destination string) error {
	return binutils.DownloadArchive(client, url, destination)
}

func (defaultArchiveService) ExtractIndexer(archivePath string, outputDir string) (string, error) {
	return binutils.ExtractIndexer(archivePath, outputDir)
}

// defaultLocalDBService shares one Planner so the inspection-unavailable
// warning fires at most once per process.
type defaultLocalDBService struct {
	manager *localdb.Manager
	planner *localdb.Planner
}

func newDefaultLocalDBService(ul *ux.UserLog) *defaultLocalDBService {
	return &defaultLocalDBService{
		manager: localdb.NewManagerWithLog(ul),
		planner: localdb.NewPlannerWithLog(ul),
	}
}

func (s *defaultLocalDBService) Prepare(stem string, dbDir string) (string, string, error) {
	return s.manager.Prepare(stem, dbDir)
}

func (s *defaultLocalDBService) Plan(dbPath string, dumpPath string) (localdb.Plan, error) {
	return s.planner.Plan(dbPath, dumpPath)
}

func (s *defaultLocalDBService) Finalize(stem string, dbPath string, dumpPath string) error {
	return s.manager.Finalize(stem, dbPath, dumpPath)
}

type defaultManifestService struct {
	ul *ux.UserLog
}

// Download fetches the published manifest and mirrors a normalized copy to
// manifestPath. When no manifest is published yet the run starts from an
// empty one rather than failing.
func (s *defaultManifestService) Download(client httpclient.Client, manifestPath string) (*manifest.Manifest, error) {
	url := constants.ReleaseDownloadURL(constants.ManifestFileName)
	s.ul.PrintToUser("Fetching manifest from %s", url)

	contents, err := client.FetchText(url)
	if err != nil {
		s.ul.PrintToUser("No manifest available at %s; starting with empty manifest (%v)", url, err)
		m := manifest.New()
		if err := manifest.Write(manifestPath, m); err != nil {
			return nil, err
		}
		return m, nil
	}

	m, err := manifest.Parse([]byte(contents))
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest downloaded from %s: %w", url, err)
	}
	if err := os.WriteFile(manifestPath, manifest.Normalize([]byte(contents)), constants.WriteReadReadPerms); err != nil {
		return nil, fmt.Errorf("failed to write manifest to %s: %w", manifestPath, err)
	}
	return m, nil
}

// HydrateDumps downloads the packaged dump for every chain the manifest
// knows about so each sync resumes instead of rebuilding.
func (s *defaultManifestService) HydrateDumps(client httpclient.Client, m *manifest.Manifest, dbDir string) error {
	if len(m.Networks) == 0 {
		s.ul.PrintToUser("Manifest has no networks; skipping dump hydration.")
		return nil
	}

	if err := os.MkdirAll(dbDir, constants.DefaultPerms755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
	}

	for _, chainID := range m.NetworkIDs() {
		fileName := manifest.DumpFileName(chainID)
		url := constants.ReleaseDownloadURL(fileName)
		destination := filepath.Join(dbDir, fileName)
		s.ul.PrintToUser("Downloading dump for chain %d from %s", chainID, url)
		bytes, err := client.FetchBinary(url)
		if err != nil {
			return fmt.Errorf("failed to download dump for chain %d from %s: %w", chainID, url, err)
		}
		if err := os.WriteFile(destination, bytes, constants.WriteReadReadPerms); err != nil {
			return fmt.Errorf("failed to write dump for chain %d to %s: %w", chainID, destination, err)
		}
	}
	return nil
}

func (s *defaultManifestService) Commit(manifestPath string, chainID uint64, dumpURL string, timestamp time.Time) error {
	return manifest.Commit(manifestPath, chainID, dumpURL, timestamp)
}
