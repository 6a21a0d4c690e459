package ekv

import (
	"go.uber.org/zap"
)

// Delete removes a row and all of its index entries in the caller's
// transaction. Deleting a missing key is a no-op and returns false, nil.
func (tx *Tx) Delete(tbl *Table, key any) (bool, error) {
	if err := tx.requireWritable(); err != nil {
		return false, err
	}
	pkPart := appendKeyPart(nil, key)
	dataKey := tbl.dataKeyFromPart(nil, pkPart)
	raw, err := tx.ktx.Get(dataKey)
	if err != nil {
		return false, err
	}
	if raw == nil {
		tx.db.logger.Debug("DELETE.NOOP", zap.String("table", tbl.name), zap.Any("key", key))
		return false, nil
	}
	if err := tx.deleteRowRaw(tbl, pkPart, dataKey, raw); err != nil {
		return false, err
	}
	tx.db.logger.Debug("DELETE", zap.String("table", tbl.name), zap.Any("key", key))
	return true, nil
}

// deleteRowRaw deletes the record stored at dataKey together with its index
// entries, recomputed from the stored value. Also used by the migration
// engine to retire records under an old table name.
func (tx *Tx) deleteRowRaw(tbl *Table, pkPart, dataKey, raw []byte) error {
	row, _, err := tbl.decodeRow(dataKey, raw)
	if err != nil {
		return err
	}
	for _, e := range tbl.rawIndexEntries(row, pkPart) {
		if err := tx.ktx.Delete(e.key); err != nil {
			return err
		}
	}
	return tx.ktx.Delete(dataKey)
}
