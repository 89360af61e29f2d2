// Copyright (C) 2022-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sync

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/luxfi/dbsync/pkg/constants"
	"github.com/luxfi/dbsync/pkg/indexer"
	"github.com/luxfi/dbsync/pkg/localdb"
	"github.com/luxfi/dbsync/pkg/manifest"
	"github.com/luxfi/dbsync/pkg/ux"
)

// Run executes one full sync: install the indexer, bootstrap manifest and
// dumps, then advance every chain in ascending id order. The first failing
// chain aborts the run; manifest entries committed for chains that already
// completed stay in place.
func Run(rt *Runtime, cfg Config) error {
	startTime := rt.Clock.Now()
	rt.UL.PrintToUser("Sync started at %s", startTime.Format(time.RFC3339))

	binaryURL := strings.TrimSpace(rt.Env[constants.IndexerBinaryURLEnvVar])
	if binaryURL == "" {
		return fmt.Errorf("%s must be set to a valid indexer binary URL", constants.IndexerBinaryURLEnvVar)
	}
	rt.UL.PrintToUser("Using indexer binary at %s", binaryURL)

	settingsYAML, err := resolveSettingsYAML(rt)
	if err != nil {
		return err
	}

	archivePath := filepath.Join(rt.Cwd, constants.IndexerArchiveName)
	if err := rt.Archive.DownloadArchive(rt.HTTP, binaryURL, archivePath); err != nil {
		return err
	}

	binDir := resolvePath(rt.Cwd, cfg.BinDir)
	binaryPath, err := rt.Archive.ExtractIndexer(archivePath, binDir)
	if err != nil {
		return err
	}

	if err := os.Remove(archivePath); err != nil {
		rt.UL.Error("failed to remove indexer archive %s: %v", archivePath, err)
	}

	apiToken, err := resolveAPIToken(rt.Env)
	if err != nil {
		return err
	}
	rt.UL.PrintToUser("Using API token sourced from environment.")

	dbDir := resolvePath(rt.Cwd, cfg.DBDir)
	if err := os.MkdirAll(dbDir, constants.DefaultPerms755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
	}

	manifestPath := manifest.PathIn(dbDir)
	m, err := rt.Manifest.Download(rt.HTTP, manifestPath)
	if err != nil {
		return fmt.Errorf("failed to download manifest to %s: %w", manifestPath, err)
	}
	if err := rt.Manifest.HydrateDumps(rt.HTTP, m, dbDir); err != nil {
		return fmt.Errorf("failed to hydrate dumps into %s: %w", dbDir, err)
	}

	chainIDs, err := determineChainSet(rt.Env, cfg, m)
	if err != nil {
		return err
	}

	for _, chainID := range chainIDs {
		if err := syncSingleChain(rt, chainID, binaryPath, apiToken, settingsYAML, dbDir, manifestPath); err != nil {
			return err
		}
	}

	completionTime := rt.Clock.Now()
	rt.UL.PrintToUser(
		"All syncs completed at %s (duration: %.1fs)",
		completionTime.Format(time.RFC3339),
		completionTime.Sub(startTime).Seconds(),
	)

	printManifestSummary(rt, manifestPath)
	return nil
}

func syncSingleChain(
	rt *Runtime,
	chainID uint64,
	binaryPath string,
	apiToken string,
	settingsYAML string,
	dbDir string,
	manifestPath string,
) error {
	rt.UL.PrintToUser("Starting sync for chain %d", chainID)
	chainStart := rt.Clock.Now()

	stem := strconv.FormatUint(chainID, 10)
	dbPath, dumpPath, err := rt.LocalDB.Prepare(stem, dbDir)
	if err != nil {
		return err
	}

	runErr := func() error {
		plan, err := rt.LocalDB.Plan(dbPath, dumpPath)
		if err != nil {
			return err
		}
		printPlan(rt, chainID, plan)

		if err := rt.Runner.Run(indexer.RunOptions{
			BinaryPath:   binaryPath,
			DBPath:       dbPath,
			ChainID:      chainID,
			APIToken:     apiToken,
			SettingsYAML: settingsYAML,
			StartBlock:   plan.NextStartBlock,
		}); err != nil {
			return err
		}

		return rt.LocalDB.Finalize(stem, dbPath, dumpPath)
	}()

	if runErr != nil {
		rt.UL.RedXToUser("Sync failed for chain %d: %v", chainID, runErr)
	}

	// the working database must not outlive the chain's turn, success or not
	if _, err := os.Stat(dbPath); err == nil {
		_ = os.Remove(dbPath)
	}

	if runErr != nil {
		return runErr
	}

	completionTime := rt.Clock.Now()
	dumpURL := constants.ReleaseDownloadURL(filepath.Base(dumpPath))
	if err := rt.Manifest.Commit(manifestPath, chainID, dumpURL, completionTime); err != nil {
		return err
	}
	rt.UL.PrintToUser("Updated manifest entry for chain %d at %s", chainID, manifestPath)

	rt.UL.GreenCheckmarkToUser(
		"Chain %d completed at %s (duration: %.1fs)",
		chainID,
		completionTime.Format(time.RFC3339),
		completionTime.Sub(chainStart).Seconds(),
	)
	return nil
}

// determineChainSet unions the manifest's chains, the run configuration and
// the environment-declared list, deduplicated and sorted ascending so runs
// are deterministic.
func determineChainSet(env map[string]string, cfg Config, m *manifest.Manifest) ([]uint64, error) {
	set := map[uint64]struct{}{}
	for _, id := range m.NetworkIDs() {
		set[id] = struct{}{}
	}
	for _, id := range cfg.ChainIDs {
		set[id] = struct{}{}
	}
	envIDs, err := parseChainIDsFromEnv(env)
	if err != nil {
		return nil, err
	}
	for _, id := range envIDs {
		set[id] = struct{}{}
	}

	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func parseChainIDsFromEnv(env map[string]string) ([]uint64, error) {
	raw, ok := env[constants.SyncChainIDsEnvVar]
	if !ok {
		return nil, nil
	}

	var chainIDs []uint64
	for _, token := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(token)
		if trimmed == "" {
			continue
		}
		chainID, err := strconv.ParseUint(trimmed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf(
				"%s must contain comma-separated chain ids (invalid value: %q)",
				constants.SyncChainIDsEnvVar, trimmed,
			)
		}
		chainIDs = append(chainIDs, chainID)
	}
	return chainIDs, nil
}

func resolveAPIToken(env map[string]string) (string, error) {
	for _, key := range constants.APITokenEnvVars {
		if value := strings.TrimSpace(env[key]); value != "" {
			return value, nil
		}
	}
	return "", fmt.Errorf("missing API token; set one of: %s", strings.Join(constants.APITokenEnvVars, ", "))
}

func resolveSettingsYAML(rt *Runtime) (string, error) {
	url := strings.TrimSpace(rt.Env[constants.SettingsURLEnvVar])
	if url == "" {
		return "", fmt.Errorf("%s must be set to a valid settings YAML URL", constants.SettingsURLEnvVar)
	}
	rt.UL.PrintToUser("Fetching settings YAML from %s", url)
	contents, err := rt.HTTP.FetchText(url)
	if err != nil {
		return "", fmt.Errorf("failed to download settings YAML from %s: %w", url, err)
	}
	return contents, nil
}

func resolvePath(base string, configured string) string {
	if filepath.IsAbs(configured) {
		return configured
	}
	return filepath.Join(base, configured)
}

func printPlan(rt *Runtime, chainID uint64, plan localdb.Plan) {
	rt.UL.PrintToUser("")
	rt.UL.PrintToUser("Plan for chain %d", chainID)
	rt.UL.PrintToUser("  Database path: %s", plan.DBPath)
	rt.UL.PrintToUser("  Dump path: %s", plan.DumpPath)
	rt.UL.PrintToUser("  Last synced block: %s", formatOptionalBlock(plan.LastSyncedBlock, "none"))
	rt.UL.PrintToUser("  Next start block: %s", formatOptionalBlock(plan.NextStartBlock, "determined by indexer"))
	rt.UL.PrintToUser("  Blocks to fetch: determined by indexer")
}

func formatOptionalBlock(value *uint64, fallback string) string {
	if value == nil {
		return fallback
	}
	return ux.FormatUint(*value)
}

func printManifestSummary(rt *Runtime, manifestPath string) {
	m, err := manifest.Load(manifestPath)
	if err != nil || len(m.Networks) == 0 {
		return
	}
	rows := make([][]string, 0, len(m.Networks))
	for _, id := range m.NetworkIDs() {
		entry := m.Networks[manifest.NetworkID(id)]
		rows = append(rows, []string{
			strconv.FormatUint(id, 10),
			filepath.Base(entry.DumpURL),
			entry.DumpTimestamp,
			strconv.FormatUint(uint64(entry.SeedGeneration), 10),
		})
	}
	rt.UL.PrintTable([]string{"CHAIN", "DUMP", "TIMESTAMP", "SEED GEN"}, rows)
}
