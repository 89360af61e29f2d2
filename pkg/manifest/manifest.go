// Copyright (C) 2022-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package manifest owns the versioned record mapping chains to their
// published database dump artifacts. The manifest file is the single source
// of truth for which chains exist and where their packaged dumps live; sync
// progress itself is recorded inside each dump, not here.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/luxfi/dbsync/pkg/constants"
)

// CurrentSchemaVersion is the schema the sync path reads and writes. The
// bump-schema-version workflow edits this declaration in place; nothing else
// may change it.
const CurrentSchemaVersion = 1

// DefaultSeedGeneration is assigned to chains on their first commit.
const DefaultSeedGeneration = 1

// NetworkID identifies one chain. Manifest documents may key entries by
// either a YAML integer or a decimal string; both decode to the same id.
type NetworkID uint64

func (n *NetworkID) UnmarshalYAML(value *yaml.Node) error {
	raw := strings.TrimSpace(value.Value)
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("network id must be a non-negative integer, got %q", value.Value)
	}
	*n = NetworkID(parsed)
	return nil
}

// Entry describes the published dump artifact for one chain.
type Entry struct {
	DumpURL        string `yaml:"dump_url"`
	DumpTimestamp  string `yaml:"dump_timestamp"`
	SeedGeneration uint32 `yaml:"seed_generation"`
}

type Manifest struct {
	SchemaVersion uint32              `yaml:"schema_version"`
	Networks      map[NetworkID]Entry `yaml:"networks"`
}

// New returns an empty manifest at the current schema version.
func New() *Manifest {
	return &Manifest{
		SchemaVersion: CurrentSchemaVersion,
		Networks:      map[NetworkID]Entry{},
	}
}

// NetworkIDs returns the manifest's chain ids in ascending order.
func (m *Manifest) NetworkIDs() []uint64 {
	ids := make([]uint64, 0, len(m.Networks))
	for id := range m.Networks {
		ids = append(ids, uint64(id))
	}
	sortUint64s(ids)
	return ids
}

func sortUint64s(ids []uint64) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}

// Load reads the manifest at path, returning a fresh empty manifest if the
// file does not exist. No schema migration happens here: whatever version is
// on disk is returned verbatim.
func Load(path string) (*Manifest, error) {
	contents, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest from %s: %w", path, err)
	}
	return Parse(contents)
}

// Parse decodes a manifest document.
func Parse(contents []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(contents, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m.Networks == nil {
		m.Networks = map[NetworkID]Entry{}
	}
	for id, entry := range m.Networks {
		if entry.SeedGeneration == 0 {
			entry.SeedGeneration = DefaultSeedGeneration
			m.Networks[id] = entry
		}
	}
	return &m, nil
}

// Commit records a completed sync for one chain: it upserts the chain's
// entry (preserving any existing seed generation) and rewrites the file
// atomically. A schema version other than CurrentSchemaVersion is a hard
// error; the sync path never migrates.
func Commit(path string, chainID uint64, dumpURL string, timestamp time.Time) error {
	m, err := Load(path)
	if err != nil {
		return err
	}
	if m.SchemaVersion != CurrentSchemaVersion {
		return fmt.Errorf(
			"unsupported manifest schema version %d; expected %d",
			m.SchemaVersion, CurrentSchemaVersion,
		)
	}

	id := NetworkID(chainID)
	seedGeneration := uint32(DefaultSeedGeneration)
	if existing, ok := m.Networks[id]; ok {
		seedGeneration = existing.SeedGeneration
	}
	m.Networks[id] = Entry{
		DumpURL:        dumpURL,
		DumpTimestamp:  timestamp.UTC().Format(time.RFC3339),
		SeedGeneration: seedGeneration,
	}

	return Write(path, m)
}

// Write serializes m and atomically replaces the file at path. Output is
// canonical YAML with no leading document separator so published manifests
// diff cleanly.
func Write(path string, m *Manifest) error {
	serialized, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to serialize manifest: %w", err)
	}
	serialized = Normalize(serialized)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, serialized, constants.WriteReadReadPerms); err != nil {
		return fmt.Errorf("failed to write manifest to %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to move manifest into place at %s: %w", path, err)
	}
	return nil
}

// Normalize strips a leading YAML document separator if present.
func Normalize(contents []byte) []byte {
	s := string(contents)
	if stripped, ok := strings.CutPrefix(s, "---\n"); ok {
		return []byte(stripped)
	}
	if stripped, ok := strings.CutPrefix(s, "---\r\n"); ok {
		return []byte(stripped)
	}
	return contents
}

// DumpFileName returns the artifact name for a chain's packaged dump.
func DumpFileName(chainID uint64) string {
	return fmt.Sprintf("%d.db.tar.gz", chainID)
}

// PathIn returns the manifest location inside a data directory.
func PathIn(dataDir string) string {
	return filepath.Join(dataDir, constants.ManifestFileName)
}
