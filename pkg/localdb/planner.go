// Copyright (C) 2022-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package localdb

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/luxfi/dbsync/pkg/ux"
)

const (
	sqliteDriver    = "sqlite"
	syncStatusTable = "sync_status"
)

// Plan captures where one chain's sync should resume. It is recomputed from
// the working database every run and never persisted: the database itself is
// the durable progress record.
type Plan struct {
	DBPath          string
	DumpPath        string
	LastSyncedBlock *uint64
	NextStartBlock  *uint64
}

// Planner discovers the last durably recorded block inside a working
// database. Inspection is strictly read-only and best-effort: any failure
// degrades to "no prior progress" so a sync can still proceed from scratch.
//
// The unavailable-inspection warning fires at most once per Planner; the
// default runtime shares a single Planner, giving once-per-process behavior.
type Planner struct {
	ul       *ux.UserLog
	warnOnce sync.Once
}

func NewPlanner() *Planner {
	return &Planner{ul: ux.Default()}
}

func NewPlannerWithLog(ul *ux.UserLog) *Planner {
	return &Planner{ul: ul}
}

// Plan inspects the working database at dbPath and computes the resume
// point. A missing database, missing sync_status table, missing block
// column, empty table, or unparsable value all yield a plan with no blocks.
func (p *Planner) Plan(dbPath string, dumpPath string) (Plan, error) {
	lastSynced := p.lastSyncedBlock(dbPath)

	plan := Plan{
		DBPath:          dbPath,
		DumpPath:        dumpPath,
		LastSyncedBlock: lastSynced,
	}
	if lastSynced != nil {
		next := *lastSynced + 1
		plan.NextStartBlock = &next
	}
	return plan, nil
}

func (p *Planner) lastSyncedBlock(dbPath string) *uint64 {
	if !pathExists(dbPath) {
		return nil
	}

	db, err := sql.Open(sqliteDriver, fmt.Sprintf("file:%s?mode=ro", dbPath))
	if err != nil {
		p.warnInspectionUnavailable(err)
		return nil
	}
	defer db.Close()

	var one int
	err = db.QueryRow(
		`SELECT 1 FROM sqlite_master WHERE type='table' AND name=? LIMIT 1`, syncStatusTable,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		p.warnInspectionUnavailable(err)
		return nil
	}

	column, ok := p.findBlockColumn(db)
	if !ok {
		return nil
	}

	quoted := quoteIdentifier(column)
	var raw sql.NullString
	err = db.QueryRow(fmt.Sprintf(
		`SELECT %s FROM %s ORDER BY %s DESC LIMIT 1`, quoted, syncStatusTable, quoted,
	)).Scan(&raw)
	if err != nil || !raw.Valid {
		return nil
	}

	value, err := strconv.ParseUint(strings.TrimSpace(raw.String), 10, 64)
	if err != nil {
		return nil
	}
	return &value
}

// findBlockColumn enumerates the sync_status columns in declaration order
// and returns the first whose name contains "block", case-insensitively.
func (p *Planner) findBlockColumn(db *sql.DB) (string, bool) {
	rows, err := db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdentifier(syncStatusTable)))
	if err != nil {
		return "", false
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			columnType string
			notNull    int
			dfltValue  sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &columnType, &notNull, &dfltValue, &primaryKey); err != nil {
			return "", false
		}
		if strings.Contains(strings.ToLower(name), "block") {
			return name, true
		}
	}
	return "", false
}

func (p *Planner) warnInspectionUnavailable(err error) {
	p.warnOnce.Do(func() {
		p.ul.PrintToUser("⚠️  local database inspection unavailable; skipping sync-status lookup.")
		p.ul.Error("database inspection failed: %v", err)
	})
}

func quoteIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
