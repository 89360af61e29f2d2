// Copyright (C) 2022-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.
package localdb

import (
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/dbsync/pkg/ux"
)

func createSyncStatusDB(t *testing.T, schema string, inserts ...string) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "chain.db")
	db, err := sql.Open(sqliteDriver, dbPath)
	require.NoError(t, err)
	defer db.Close()

	if schema != "" {
		_, err = db.Exec(schema)
		require.NoError(t, err)
	}
	for _, stmt := range inserts {
		_, err = db.Exec(stmt)
		require.NoError(t, err)
	}
	return dbPath
}

func TestPlanResumesAfterLastSyncedBlock(t *testing.T) {
	dbPath := createSyncStatusDB(t,
		`CREATE TABLE sync_status (id INTEGER PRIMARY KEY, last_block INTEGER)`,
		`INSERT INTO sync_status (last_block) VALUES (7)`,
		`INSERT INTO sync_status (last_block) VALUES (123)`,
	)

	p := NewPlannerWithLog(ux.NewNopUserLog())
	plan, err := p.Plan(dbPath, dbPath+".tar.gz")
	require.NoError(t, err)
	require.NotNil(t, plan.LastSyncedBlock)
	require.Equal(t, uint64(123), *plan.LastSyncedBlock)
	require.NotNil(t, plan.NextStartBlock)
	require.Equal(t, uint64(124), *plan.NextStartBlock)
}

func TestPlanMissingDatabase(t *testing.T) {
	p := NewPlannerWithLog(ux.NewNopUserLog())
	plan, err := p.Plan(filepath.Join(t.TempDir(), "absent.db"), "absent.db.tar.gz")
	require.NoError(t, err)
	require.Nil(t, plan.LastSyncedBlock)
	require.Nil(t, plan.NextStartBlock)
}

func TestPlanMissingSyncStatusTable(t *testing.T) {
	dbPath := createSyncStatusDB(t, `CREATE TABLE other (x INTEGER)`)

	p := NewPlannerWithLog(ux.NewNopUserLog())
	plan, err := p.Plan(dbPath, dbPath+".tar.gz")
	require.NoError(t, err)
	require.Nil(t, plan.NextStartBlock)
}

func TestPlanEmptySyncStatusTable(t *testing.T) {
	dbPath := createSyncStatusDB(t,
		`CREATE TABLE sync_status (id INTEGER PRIMARY KEY, last_block INTEGER)`,
	)

	p := NewPlannerWithLog(ux.NewNopUserLog())
	plan, err := p.Plan(dbPath, dbPath+".tar.gz")
	require.NoError(t, err)
	require.Nil(t, plan.LastSyncedBlock)
	require.Nil(t, plan.NextStartBlock)
}

func TestPlanNoBlockColumn(t *testing.T) {
	dbPath := createSyncStatusDB(t,
		`CREATE TABLE sync_status (id INTEGER PRIMARY KEY, progress INTEGER)`,
		`INSERT INTO sync_status (progress) VALUES (55)`,
	)

	p := NewPlannerWithLog(ux.NewNopUserLog())
	plan, err := p.Plan(dbPath, dbPath+".tar.gz")
	require.NoError(t, err)
	require.Nil(t, plan.NextStartBlock)
}

func TestPlanPicksFirstBlockColumnInDeclarationOrder(t *testing.T) {
	dbPath := createSyncStatusDB(t,
		`CREATE TABLE sync_status (id INTEGER PRIMARY KEY, Synced_Block INTEGER, end_block INTEGER)`,
		`INSERT INTO sync_status (Synced_Block, end_block) VALUES (42, 9000)`,
	)

	p := NewPlannerWithLog(ux.NewNopUserLog())
	plan, err := p.Plan(dbPath, dbPath+".tar.gz")
	require.NoError(t, err)
	require.NotNil(t, plan.LastSyncedBlock)
	require.Equal(t, uint64(42), *plan.LastSyncedBlock)
}

func TestPlanNonNumericBlockValue(t *testing.T) {
	dbPath := createSyncStatusDB(t,
		`CREATE TABLE sync_status (id INTEGER PRIMARY KEY, last_block TEXT)`,
		`INSERT INTO sync_status (last_block) VALUES ('not-a-number')`,
	)

	p := NewPlannerWithLog(ux.NewNopUserLog())
	plan, err := p.Plan(dbPath, dbPath+".tar.gz")
	require.NoError(t, err)
	require.Nil(t, plan.LastSyncedBlock)
	require.Nil(t, plan.NextStartBlock)
}

func TestPlanWarnsOnceWhenInspectionUnavailable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "garbage.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("this is not a sqlite file"), 0o644))

	var out bytes.Buffer
	p := NewPlannerWithLog(ux.NewUserLogTo(&out))

	for range 3 {
		plan, err := p.Plan(dbPath, dbPath+".tar.gz")
		require.NoError(t, err)
		require.Nil(t, plan.NextStartBlock)
	}

	require.Equal(t, 1, strings.Count(out.String(), "inspection unavailable"))
}
