package ekv

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"
)

const migrationsMetaKey = "migrations"

type MigrateOptions struct {
	// MaxRecords caps how many records one invocation migrates; 0 means
	// unlimited. When the cap is hit, stats.Remaining is true and the
	// caller re-invokes to continue.
	MaxRecords int
}

type MigrationStats struct {
	// Migrated counts records successfully moved to a newer table.
	Migrated int
	// Remaining is true when MaxRecords stopped the run early.
	Remaining bool
	// Errors holds one MigrationError per record that failed; those
	// records stay under their old table name.
	Errors []error
}

type migrationLink struct {
	old, new  *Table
	transform func(oldRow any) (any, error)
}

// EnsureMigrations moves records from ancestor tables to tbl, one version
// at a time, oldest ancestor first. Each record migrates in its own
// transaction: the transformed row is saved under the new name through the
// normal Put path and the old record (with its index entries) is deleted in
// that same transaction, so an interrupted run never duplicates data —
// a record either still sits under the old name or has fully moved.
// Re-running is safe: already-migrated records are detected by absence.
//
// Transform failures and commit conflicts abort only the affected record's
// transaction; they are collected in stats.Errors and migration continues.
func (db *DB) EnsureMigrations(tbl *Table, opt MigrateOptions) (MigrationStats, error) {
	var stats MigrationStats

	var links []migrationLink
	for t := tbl; t.prev != nil; t = t.prev.old {
		if len(links) > len(db.schema.tables) {
			panic(fmt.Errorf("%s: migration chain contains a cycle", tbl.name))
		}
		links = append(links, migrationLink{old: t.prev.old, new: t, transform: t.prev.transform})
	}
	slices.Reverse(links)

	budget := opt.MaxRecords
	limited := opt.MaxRecords > 0
	for _, ln := range links {
		done, err := db.migrateLink(ln, &budget, limited, &stats)
		if err != nil {
			return stats, err
		}
		if !done {
			stats.Remaining = true
			return stats, nil
		}
	}

	if len(links) > 0 {
		if err := db.recordAppliedMigrations(tbl, links); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (db *DB) migrateLink(ln migrationLink, budget *int, limited bool, stats *MigrationStats) (bool, error) {
	oldPrefix := ln.old.dataPrefix(nil)

	var keys [][]byte
	err := db.View(func(tx *Tx) error {
		kc := tx.ktx.Scan(oldPrefix)
		for {
			k, _ := kc.Next()
			if k == nil {
				return nil
			}
			keys = append(keys, slices.Clone(k))
		}
	})
	if err != nil {
		return false, err
	}

	for _, keyRaw := range keys {
		if limited && *budget <= 0 {
			return false, nil
		}
		moved := false
		err := db.Update(func(tx *Tx) error {
			raw, err := tx.ktx.Get(keyRaw)
			if err != nil {
				return err
			}
			if raw == nil {
				return nil // vanished since the scan, nothing to move
			}
			oldRow, _, err := ln.old.decodeRow(keyRaw, raw)
			if err != nil {
				return &MigrationError{Table: ln.old.name, Key: keyRaw, Err: err}
			}
			newRow, err := ln.transform(oldRow)
			if err != nil {
				return &MigrationError{Table: ln.old.name, Key: keyRaw, Err: err}
			}
			if err := tx.Put(ln.new, newRow); err != nil {
				return &MigrationError{Table: ln.old.name, Key: keyRaw, Err: err}
			}
			pkPart := keyRaw[len(oldPrefix):]
			if err := tx.deleteRowRaw(ln.old, pkPart, keyRaw, raw); err != nil {
				return err
			}
			moved = true
			return nil
		})
		if err != nil {
			var merr *MigrationError
			if errors.As(err, &merr) {
				stats.Errors = append(stats.Errors, err)
				db.logger.Debug("MIGRATE.SKIP", zap.String("from", ln.old.name), zap.String("to", ln.new.name), zap.Error(err))
				continue
			}
			if errors.Is(err, ErrTxConflict) {
				stats.Errors = append(stats.Errors, &MigrationError{Table: ln.old.name, Key: keyRaw, Err: err})
				continue
			}
			return false, err
		}
		if !moved {
			continue
		}
		stats.Migrated++
		if limited {
			*budget--
		}
		db.logger.Debug("MIGRATE", zap.String("from", ln.old.name), zap.String("to", ln.new.name))
	}
	return true, nil
}

// recordAppliedMigrations keeps an advisory log of completed chain steps
// under the current table's meta key. Detection of pending work is by
// presence of old records, not by this log.
func (db *DB) recordAppliedMigrations(tbl *Table, links []migrationLink) error {
	return db.Update(func(tx *Tx) error {
		applied, err := loadAppliedMigrations(tx, tbl)
		if err != nil {
			return err
		}
		changed := false
		for _, ln := range links {
			name := ln.old.name + "->" + ln.new.name
			if !slices.Contains(applied, name) {
				applied = append(applied, name)
				changed = true
			}
		}
		if !changed {
			return nil
		}
		raw, err := json.Marshal(applied)
		if err != nil {
			return err
		}
		return tx.ktx.Put(tbl.metaKey(nil, migrationsMetaKey), raw)
	})
}

// AppliedMigrations returns the advisory log of chain steps completed for
// a table, in application order.
func (db *DB) AppliedMigrations(tbl *Table) ([]string, error) {
	var applied []string
	err := db.View(func(tx *Tx) error {
		var err error
		applied, err = loadAppliedMigrations(tx, tbl)
		return err
	})
	return applied, err
}

func loadAppliedMigrations(tx *Tx, tbl *Table) ([]string, error) {
	raw, err := tx.ktx.Get(tbl.metaKey(nil, migrationsMetaKey))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var applied []string
	if err := json.Unmarshal(raw, &applied); err != nil {
		return nil, dataErrf(raw, 0, err, "decoding applied migrations for %s", tbl.name)
	}
	return applied, nil
}
