package ekv

import (
	"fmt"

	"go.uber.org/zap"
)

// Lookup loads the single row a unique index maps value to, or returns
// ErrNotFound.
func Lookup[Row any](tx *Tx, idx *Index, value any) (*Row, error) {
	row, err := tx.Lookup(idx, value)
	if err != nil {
		return nil, err
	}
	return row.(*Row), nil
}

func (tx *Tx) Lookup(idx *Index, value any) (any, error) {
	if !idx.isUnique {
		panic(fmt.Errorf("%s: Lookup requires a unique index, use IndexScan", idx.FullName()))
	}
	tbl := idx.table
	pkPart, err := tx.ktx.Get(idx.valuePrefix(nil, value))
	if err != nil {
		return nil, err
	}
	if pkPart == nil {
		tx.db.logger.Debug("LOOKUP.NOTFOUND", zap.String("index", idx.FullName()), zap.Any("value", value))
		return nil, ErrNotFound
	}
	dataKey := tbl.dataKeyFromPart(nil, pkPart)
	raw, err := tx.ktx.Get(dataKey)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		if tx.db.strict {
			panic(tableErrf(tbl, idx, dataKey, nil, "index entry points to missing record"))
		}
		return nil, ErrNotFound
	}
	row, _, err := tbl.decodeRow(dataKey, raw)
	if err != nil {
		return nil, err
	}
	tx.db.logger.Debug("LOOKUP", zap.String("index", idx.FullName()), zap.Any("value", value))
	return row, nil
}

// LookupKey resolves a unique index entry to the decoded primary key
// without loading the record. Returns ErrNotFound when absent.
func (tx *Tx) LookupKey(idx *Index, value any) (any, error) {
	if !idx.isUnique {
		panic(fmt.Errorf("%s: LookupKey requires a unique index", idx.FullName()))
	}
	pkPart, err := tx.ktx.Get(idx.valuePrefix(nil, value))
	if err != nil {
		return nil, err
	}
	if pkPart == nil {
		return nil, ErrNotFound
	}
	key, rest, err := decodeKeyPart(pkPart, pkPart)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, corruptKeyf(pkPart, "trailing bytes after primary key part")
	}
	return key, nil
}
