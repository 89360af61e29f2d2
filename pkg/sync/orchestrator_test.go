// Copyright (C) 2022-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.
package sync

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/dbsync/pkg/constants"
	"github.com/luxfi/dbsync/pkg/httpclient"
	"github.com/luxfi/dbsync/pkg/indexer"
	"github.com/luxfi/dbsync/pkg/localdb"
	"github.com/luxfi/dbsync/pkg/manifest"
	"github.com/luxfi/dbsync/pkg/ux"
)

type fakeHTTP struct {
	text   map[string]string
	binary map[string][]byte
}

func (f *fakeHTTP) FetchText(url string) (string, error) {
	if body, ok := f.text[url]; ok {
		return body, nil
	}
	return "", fmt.Errorf("request to %s failed with status 404 Not Found", url)
}

func (f *fakeHTTP) FetchBinary(url string) ([]byte, error) {
	if body, ok := f.binary[url]; ok {
		return body, nil
	}
	return nil, fmt.Errorf("request to %s failed with status 404 Not Found", url)
}

type fakeArchive struct {
	downloadedURL string
	binaryPath    string
}

func (f *fakeArchive) DownloadArchive(_ httpclient.Client, url string, destination string) error {
	f.downloadedURL = url
	return os.WriteFile(destination, []byte("archive"), 0o644)
}

func (f *fakeArchive) ExtractIndexer(string, string) (string, error) {
	return f.binaryPath, nil
}

type fakeLocalDB struct {
	plans     map[string]localdb.Plan
	prepared  []string
	finalized []string
}

func (f *fakeLocalDB) Prepare(stem string, dbDir string) (string, string, error) {
	f.prepared = append(f.prepared, stem)
	dbPath, dumpPath := localdb.Paths(stem, dbDir)
	return dbPath, dumpPath, nil
}

func (f *fakeLocalDB) Plan(dbPath string, dumpPath string) (localdb.Plan, error) {
	if plan, ok := f.plans[dbPath]; ok {
		plan.DBPath = dbPath
		plan.DumpPath = dumpPath
		return plan, nil
	}
	return localdb.Plan{DBPath: dbPath, DumpPath: dumpPath}, nil
}

func (f *fakeLocalDB) Finalize(stem string, dbPath string, _ string) error {
	f.finalized = append(f.finalized, stem)
	if _, err := os.Stat(dbPath); err == nil {
		return os.Remove(dbPath)
	}
	return nil
}

type commitRecord struct {
	chainID   uint64
	dumpURL   string
	timestamp time.Time
}

type fakeManifest struct {
	initial *manifest.Manifest
	commits []commitRecord
}

func (f *fakeManifest) Download(_ httpclient.Client, manifestPath string) (*manifest.Manifest, error) {
	if f.initial == nil {
		f.initial = manifest.New()
	}
	if err := manifest.Write(manifestPath, f.initial); err != nil {
		return nil, err
	}
	return f.initial, nil
}

func (f *fakeManifest) HydrateDumps(httpclient.Client, *manifest.Manifest, string) error {
	return nil
}

func (f *fakeManifest) Commit(manifestPath string, chainID uint64, dumpURL string, timestamp time.Time) error {
	f.commits = append(f.commits, commitRecord{chainID: chainID, dumpURL: dumpURL, timestamp: timestamp})
	return manifest.Commit(manifestPath, chainID, dumpURL, timestamp)
}

type fakeRunner struct {
	invocations []indexer.RunOptions
	failChainID uint64
	leaveDB     bool
}

func (f *fakeRunner) Run(opts indexer.RunOptions) error {
	f.invocations = append(f.invocations, opts)
	if f.leaveDB {
		if err := os.WriteFile(opts.DBPath, []byte("db"), 0o644); err != nil {
			return err
		}
	}
	if f.failChainID != 0 && opts.ChainID == f.failChainID {
		return fmt.Errorf("indexer sync failed for chain %d (exit code 1)", opts.ChainID)
	}
	return nil
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func newTestRuntime(t *testing.T) (*Runtime, *fakeArchive, *fakeLocalDB, *fakeManifest, *fakeRunner) {
	t.Helper()
	archive := &fakeArchive{binaryPath: filepath.Join(t.TempDir(), "lux-indexer")}
	localDB := &fakeLocalDB{plans: map[string]localdb.Plan{}}
	man := &fakeManifest{}
	runner := &fakeRunner{}
	rt := &Runtime{
		Env: map[string]string{
			constants.IndexerBinaryURLEnvVar: "https://example.com/lux-indexer.tar.gz",
			constants.SettingsURLEnvVar:      "https://example.com/settings.yaml",
			"LUX_API_TOKEN":                  "secret-token",
		},
		Cwd: t.TempDir(),
		HTTP: &fakeHTTP{
			text: map[string]string{
				"https://example.com/settings.yaml": "rpc_url: https://example.com\n",
			},
		},
		Archive:  archive,
		LocalDB:  localDB,
		Manifest: man,
		Runner:   runner,
		Clock:    fixedClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)},
		UL:       ux.NewNopUserLog(),
	}
	return rt, archive, localDB, man, runner
}

func TestRunSyncsChainsInAscendingOrder(t *testing.T) {
	rt, archive, localDB, man, runner := newTestRuntime(t)
	man.initial = manifest.New()
	man.initial.Networks[manifest.NetworkID(20)] = manifest.Entry{
		DumpURL:        "https://example.com/20.db.tar.gz",
		DumpTimestamp:  "2026-01-01T00:00:00Z",
		SeedGeneration: 2,
	}
	rt.Env[constants.SyncChainIDsEnvVar] = "30, 20"

	cfg := DefaultConfig()
	cfg.ChainIDs = []uint64{10}
	require.NoError(t, Run(rt, cfg))

	require.Equal(t, "https://example.com/lux-indexer.tar.gz", archive.downloadedURL)
	require.Equal(t, []string{"10", "20", "30"}, localDB.prepared)
	require.Equal(t, []string{"10", "20", "30"}, localDB.finalized)

	require.Len(t, runner.invocations, 3)
	for i, want := range []uint64{10, 20, 30} {
		require.Equal(t, want, runner.invocations[i].ChainID)
		require.Equal(t, "secret-token", runner.invocations[i].APIToken)
		require.Equal(t, "rpc_url: https://example.com\n", runner.invocations[i].SettingsYAML)
	}

	require.Len(t, man.commits, 3)
	require.Equal(t, constants.ReleaseDownloadURL("10.db.tar.gz"), man.commits[0].dumpURL)

	// committed entries survive in the on-disk manifest, seed generation kept
	final, err := manifest.Load(manifest.PathIn(filepath.Join(rt.Cwd, cfg.DBDir)))
	require.NoError(t, err)
	require.Equal(t, []uint64{10, 20, 30}, final.NetworkIDs())
	require.Equal(t, uint32(2), final.Networks[manifest.NetworkID(20)].SeedGeneration)
}

func TestRunFailFastKeepsEarlierCommits(t *testing.T) {
	rt, _, localDB, man, runner := newTestRuntime(t)
	rt.Env[constants.SyncChainIDsEnvVar] = "10,20,30"
	runner.failChainID = 20
	runner.leaveDB = true

	err := Run(rt, DefaultConfig())
	require.Error(t, err)
	require.Contains(t, err.Error(), "chain 20")

	// chain 10 committed, chain 30 never attempted
	require.Len(t, man.commits, 1)
	require.Equal(t, uint64(10), man.commits[0].chainID)
	require.Equal(t, []string{"10", "20"}, localDB.prepared)
	require.Len(t, runner.invocations, 2)

	// no working database left behind by the failed chain
	dbDir := filepath.Join(rt.Cwd, constants.DataDirName)
	_, statErr := os.Stat(filepath.Join(dbDir, "20.db"))
	require.True(t, os.IsNotExist(statErr))
}

func TestRunPassesNextStartBlockToRunner(t *testing.T) {
	rt, _, localDB, _, runner := newTestRuntime(t)
	rt.Env[constants.SyncChainIDsEnvVar] = "10"

	dbDir := filepath.Join(rt.Cwd, constants.DataDirName)
	dbPath, _ := localdb.Paths("10", dbDir)
	last := uint64(123)
	next := uint64(124)
	localDB.plans[dbPath] = localdb.Plan{LastSyncedBlock: &last, NextStartBlock: &next}

	require.NoError(t, Run(rt, DefaultConfig()))
	require.Len(t, runner.invocations, 1)
	require.NotNil(t, runner.invocations[0].StartBlock)
	require.Equal(t, uint64(124), *runner.invocations[0].StartBlock)
	require.Nil(t, runner.invocations[0].EndBlock)
}

func TestRunRequiresBinaryURL(t *testing.T) {
	rt, _, _, _, _ := newTestRuntime(t)
	delete(rt.Env, constants.IndexerBinaryURLEnvVar)

	err := Run(rt, DefaultConfig())
	require.Error(t, err)
	require.Contains(t, err.Error(), constants.IndexerBinaryURLEnvVar)
}

func TestRunRequiresSettingsURL(t *testing.T) {
	rt, _, _, _, _ := newTestRuntime(t)
	delete(rt.Env, constants.SettingsURLEnvVar)

	err := Run(rt, DefaultConfig())
	require.Error(t, err)
	require.Contains(t, err.Error(), constants.SettingsURLEnvVar)
}

func TestRunRequiresAPIToken(t *testing.T) {
	rt, _, _, _, _ := newTestRuntime(t)
	delete(rt.Env, "LUX_API_TOKEN")

	err := Run(rt, DefaultConfig())
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing API token")
}

func TestRunRejectsInvalidChainIDInEnv(t *testing.T) {
	rt, _, _, _, runner := newTestRuntime(t)
	rt.Env[constants.SyncChainIDsEnvVar] = "10,mainnet"

	err := Run(rt, DefaultConfig())
	require.Error(t, err)
	require.Contains(t, err.Error(), `"mainnet"`)
	require.Empty(t, runner.invocations)
}

func TestParseChainIDsFromEnv(t *testing.T) {
	ids, err := parseChainIDsFromEnv(map[string]string{
		constants.SyncChainIDsEnvVar: " 10, ,20 ,30",
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{10, 20, 30}, ids)

	ids, err = parseChainIDsFromEnv(map[string]string{})
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestResolveAPITokenPrecedence(t *testing.T) {
	token, err := resolveAPIToken(map[string]string{
		"HYPERRPC_API_TOKEN":    "third",
		"LUX_INDEXER_API_TOKEN": "second",
	})
	require.NoError(t, err)
	require.Equal(t, "second", token)

	token, err = resolveAPIToken(map[string]string{
		"LUX_API_TOKEN":      "first",
		"HYPERRPC_API_TOKEN": "third",
	})
	require.NoError(t, err)
	require.Equal(t, "first", token)

	_, err = resolveAPIToken(map[string]string{"LUX_API_TOKEN": "   "})
	require.Error(t, err)
}

func TestDetermineChainSetUnionsAndSorts(t *testing.T) {
	m := manifest.New()
	m.Networks[manifest.NetworkID(8453)] = manifest.Entry{SeedGeneration: 1}
	m.Networks[manifest.NetworkID(1)] = manifest.Entry{SeedGeneration: 1}

	ids, err := determineChainSet(
		map[string]string{constants.SyncChainIDsEnvVar: "8453,42161"},
		Config{ChainIDs: []uint64{10}},
		m,
	)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 10, 8453, 42161}, ids)
}
