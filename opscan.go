package ekv

import (
	"errors"
	"fmt"
)

// IndexScan returns a cursor over all rows a non-unique index maps value
// to, in ascending primary-key order. The cursor is lazy; records are
// loaded one at a time as Next advances. Re-invoking IndexScan restarts
// the scan.
//
// Records that fail to decode are skipped and reported via Err after the
// scan; they do not abort it.
func (tx *Tx) IndexScan(idx *Index, value any) *IndexCursor {
	if idx.isUnique {
		panic(fmt.Errorf("%s: IndexScan requires a non-unique index, use Lookup", idx.FullName()))
	}
	prefix := idx.valuePrefix(nil, value)
	return &IndexCursor{
		tx:     tx,
		idx:    idx,
		prefix: prefix,
		kc:     tx.ktx.Scan(prefix),
	}
}

type IndexCursor struct {
	tx     *Tx
	idx    *Index
	prefix []byte
	kc     KVCursor
	row    any
	errs   []error
}

func (c *IndexCursor) Next() bool {
	c.row = nil
	tbl := c.idx.table
	for {
		k, _ := c.kc.Next()
		if k == nil {
			return false
		}
		pkPart := k[len(c.prefix):]
		dataKey := tbl.dataKeyFromPart(nil, pkPart)
		raw, err := c.tx.ktx.Get(dataKey)
		if err != nil {
			c.errs = append(c.errs, err)
			continue
		}
		if raw == nil {
			if c.tx.db.strict {
				panic(tableErrf(tbl, c.idx, dataKey, nil, "index entry points to missing record"))
			}
			c.errs = append(c.errs, tableErrf(tbl, c.idx, dataKey, nil, "index entry points to missing record"))
			continue
		}
		row, _, err := tbl.decodeRow(dataKey, raw)
		if err != nil {
			c.errs = append(c.errs, err)
			continue
		}
		c.row = row
		return true
	}
}

func (c *IndexCursor) Row() any {
	return c.row
}

func (c *IndexCursor) Err() error {
	return errors.Join(c.errs...)
}

// AllByIndex collects an entire index scan.
func AllByIndex[Row any](tx *Tx, idx *Index, value any) ([]*Row, error) {
	c := tx.IndexScan(idx, value)
	var rows []*Row
	for c.Next() {
		rows = append(rows, c.Row().(*Row))
	}
	return rows, c.Err()
}

// All returns a cursor over every primary record of a table, in ascending
// primary-key order.
func (tx *Tx) All(tbl *Table) *TableCursor {
	prefix := tbl.dataPrefix(nil)
	return &TableCursor{
		tx:     tx,
		tbl:    tbl,
		prefix: prefix,
		kc:     tx.ktx.Scan(prefix),
	}
}

type TableCursor struct {
	tx        *Tx
	tbl       *Table
	prefix    []byte
	kc        KVCursor
	row       any
	keyRaw    []byte
	schemaVer uint64
	errs      []error
}

func (c *TableCursor) Next() bool {
	c.row = nil
	for {
		k, v := c.kc.Next()
		if k == nil {
			return false
		}
		row, schemaVer, err := c.tbl.decodeRow(k, v)
		if err != nil {
			c.errs = append(c.errs, err)
			continue
		}
		c.row = row
		c.keyRaw = append(c.keyRaw[:0], k...)
		c.schemaVer = schemaVer
		return true
	}
}

func (c *TableCursor) Row() any {
	return c.row
}

// RawKey returns the full primary-record key of the current row. Valid
// until the next call to Next.
func (c *TableCursor) RawKey() []byte {
	return c.keyRaw
}

// SchemaVer returns the schema version that last wrote the current row.
func (c *TableCursor) SchemaVer() uint64 {
	return c.schemaVer
}

func (c *TableCursor) Err() error {
	return errors.Join(c.errs...)
}

// All collects every row of a table.
func All[Row any](tx *Tx, tbl *Table) ([]*Row, error) {
	c := tx.All(tbl)
	var rows []*Row
	for c.Next() {
		rows = append(rows, c.Row().(*Row))
	}
	return rows, c.Err()
}

// Count returns the number of primary records in a table.
func (tx *Tx) Count(tbl *Table) (int, error) {
	kc := tx.ktx.Scan(tbl.dataPrefix(nil))
	var n int
	for {
		k, _ := kc.Next()
		if k == nil {
			return n, nil
		}
		n++
	}
}
