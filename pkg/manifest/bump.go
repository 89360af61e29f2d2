// Copyright (C) 2022-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package manifest

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
)

// SchemaVersionBump reports the before/after versions of a schema bump.
type SchemaVersionBump struct {
	Previous uint32
	Next     uint32
}

// SeedGenerationBump reports the before/after generations of a seed bump.
type SeedGenerationBump struct {
	ChainID  uint64
	Previous uint32
	Next     uint32
}

var schemaVersionDecl = regexp.MustCompile(`(const CurrentSchemaVersion = )(\d+)`)

// BumpSchemaVersion increments the manifest's schema version by one and
// rewrites the CurrentSchemaVersion declaration in sourcePath to match. The
// declared constant must equal the manifest's current version before either
// side is touched; on mismatch nothing is modified.
func BumpSchemaVersion(manifestPath string, sourcePath string) (SchemaVersionBump, error) {
	m, err := Load(manifestPath)
	if err != nil {
		return SchemaVersionBump{}, err
	}

	source, err := os.ReadFile(sourcePath)
	if err != nil {
		return SchemaVersionBump{}, fmt.Errorf("failed to read schema version source %s: %w", sourcePath, err)
	}
	match := schemaVersionDecl.FindSubmatch(source)
	if match == nil {
		return SchemaVersionBump{}, fmt.Errorf("no CurrentSchemaVersion declaration found in %s", sourcePath)
	}
	declared, err := strconv.ParseUint(string(match[2]), 10, 32)
	if err != nil {
		return SchemaVersionBump{}, fmt.Errorf("failed to parse declared schema version in %s: %w", sourcePath, err)
	}
	if uint32(declared) != m.SchemaVersion {
		return SchemaVersionBump{}, fmt.Errorf(
			"declared schema version %d in %s does not match manifest schema version %d; refusing to bump",
			declared, sourcePath, m.SchemaVersion,
		)
	}

	bump := SchemaVersionBump{
		Previous: m.SchemaVersion,
		Next:     m.SchemaVersion + 1,
	}

	m.SchemaVersion = bump.Next
	if err := Write(manifestPath, m); err != nil {
		return SchemaVersionBump{}, err
	}

	updated := schemaVersionDecl.ReplaceAll(source, []byte(fmt.Sprintf("${1}%d", bump.Next)))
	info, err := os.Stat(sourcePath)
	if err != nil {
		return SchemaVersionBump{}, fmt.Errorf("failed to stat schema version source %s: %w", sourcePath, err)
	}
	if err := os.WriteFile(sourcePath, updated, info.Mode().Perm()); err != nil {
		return SchemaVersionBump{}, fmt.Errorf("failed to update schema version source %s: %w", sourcePath, err)
	}

	return bump, nil
}

// BumpSeedGeneration increments exactly one chain's seed generation,
// signalling that its seed data was rebuilt from a fresh baseline. The chain
// must already exist in the manifest.
func BumpSeedGeneration(manifestPath string, chainID uint64) (SeedGenerationBump, error) {
	m, err := Load(manifestPath)
	if err != nil {
		return SeedGenerationBump{}, err
	}

	id := NetworkID(chainID)
	entry, ok := m.Networks[id]
	if !ok {
		return SeedGenerationBump{}, fmt.Errorf("chain %d not found in manifest %s", chainID, manifestPath)
	}

	bump := SeedGenerationBump{
		ChainID:  chainID,
		Previous: entry.SeedGeneration,
		Next:     entry.SeedGeneration + 1,
	}
	entry.SeedGeneration = bump.Next
	m.Networks[id] = entry

	if err := Write(manifestPath, m); err != nil {
		return SeedGenerationBump{}, err
	}
	return bump, nil
}
