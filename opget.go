package ekv

import (
	"go.uber.org/zap"
)

// Get loads a row by primary key, or returns ErrNotFound.
func Get[Row any](tx *Tx, tbl *Table, key any) (*Row, error) {
	row, err := tx.Get(tbl, key)
	if err != nil {
		return nil, err
	}
	return row.(*Row), nil
}

func (tx *Tx) Get(tbl *Table, key any) (any, error) {
	dataKey := tbl.dataKey(nil, key)
	raw, err := tx.ktx.Get(dataKey)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		tx.db.logger.Debug("GET.NOTFOUND", zap.String("table", tbl.name), zap.Any("key", key))
		return nil, ErrNotFound
	}
	row, _, err := tbl.decodeRow(dataKey, raw)
	if err != nil {
		return nil, err
	}
	tx.db.logger.Debug("GET", zap.String("table", tbl.name), zap.Any("key", key))
	return row, nil
}

func (tx *Tx) Exists(tbl *Table, key any) (bool, error) {
	raw, err := tx.ktx.Get(tbl.dataKey(nil, key))
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}

// decodeRow decodes a primary-record value into a fresh row.
func (tbl *Table) decodeRow(dataKey, raw []byte) (any, uint64, error) {
	var vle value
	if err := vle.decode(raw); err != nil {
		return nil, 0, tableErrf(tbl, nil, dataKey, err, "decoding value")
	}
	row := tbl.newRow()
	if err := tbl.valueEnc.DecodeValue(vle.Data, row); err != nil {
		return nil, 0, tableErrf(tbl, nil, dataKey, err, "decoding row")
	}
	return row, vle.SchemaVer, nil
}
