package ekv

import (
	"bytes"

	"go.uber.org/zap"
)

type rawIndexEntry struct {
	idx   *Index
	value any
	key   []byte
	val   []byte
}

// rawIndexEntries computes the index keys and values a row contributes.
// pkPart is the already-encoded primary key part of the row.
func (tbl *Table) rawIndexEntries(row any, pkPart []byte) []rawIndexEntry {
	ivs := tbl.indexedValues(row)
	if len(ivs) == 0 {
		return nil
	}
	entries := make([]rawIndexEntry, 0, len(ivs))
	for _, iv := range ivs {
		e := rawIndexEntry{idx: iv.idx, value: iv.value}
		if iv.idx.isUnique {
			e.key = iv.idx.valuePrefix(nil, iv.value)
			e.val = pkPart
		} else {
			e.key = appendRaw(iv.idx.valuePrefix(nil, iv.value), pkPart)
			e.val = []byte{}
		}
		entries = append(entries, e)
	}
	return entries
}

func containsRawKey(entries []rawIndexEntry, key []byte) bool {
	for _, e := range entries {
		if bytes.Equal(e.key, key) {
			return true
		}
	}
	return false
}

// Put saves a row and brings all of its index entries up to date, in three
// phases within the caller's transaction:
//
//  1. load the previous value, if any, and compute the index entries that
//     must be retracted;
//  2. verify that no unique index entry would end up pointing at a
//     different primary key (UniqueConstraintError otherwise);
//  3. write the new primary record, delete stale index entries, write the
//     new ones.
//
// Everything becomes visible atomically at commit, so readers never observe
// an index missing an entry for a live record or pointing at a stale one.
func (tx *Tx) Put(tbl *Table, row any) error {
	if err := tx.requireWritable(); err != nil {
		return err
	}
	key := tbl.keyOf(row)
	pkPart := appendKeyPart(nil, key)
	dataKey := tbl.dataKeyFromPart(nil, pkPart)
	newEntries := tbl.rawIndexEntries(row, pkPart)

	var oldEntries []rawIndexEntry
	oldRaw, err := tx.ktx.Get(dataKey)
	if err != nil {
		return err
	}
	if oldRaw != nil {
		oldRow, _, err := tbl.decodeRow(dataKey, oldRaw)
		if err != nil {
			return tableErrf(tbl, nil, dataKey, err, "decoding old value")
		}
		oldEntries = tbl.rawIndexEntries(oldRow, pkPart)
	}

	for _, e := range newEntries {
		if !e.idx.isUnique {
			continue
		}
		existing, err := tx.ktx.Get(e.key)
		if err != nil {
			return err
		}
		// Overwriting our own entry is fine; only a different primary key
		// is a violation.
		if existing != nil && !bytes.Equal(existing, pkPart) {
			return &UniqueConstraintError{Index: e.idx, Value: e.value}
		}
	}

	valueRaw := appendValueHeader(nil, vfDefault, tbl.latestSchemaVer)
	valueRaw = tbl.valueEnc.EncodeValue(valueRaw, row)
	if err := tx.ktx.Put(dataKey, valueRaw); err != nil {
		return err
	}

	for _, e := range oldEntries {
		if !containsRawKey(newEntries, e.key) {
			if err := tx.ktx.Delete(e.key); err != nil {
				return err
			}
		}
	}
	for _, e := range newEntries {
		if err := tx.ktx.Put(e.key, e.val); err != nil {
			return err
		}
	}

	tx.db.logger.Debug("PUT", zap.String("table", tbl.name), zap.Any("key", key), zap.Int("indexEntries", len(newEntries)))
	return nil
}
