package ekv

import (
	"fmt"
)

// Tx wraps one store transaction. Every entity operation takes it
// explicitly; there is no ambient transaction state.
type Tx struct {
	db       *DB
	ktx      KVTx
	writable bool
	done     bool
}

func (db *DB) Begin(writable bool) (*Tx, error) {
	ktx, err := db.kv.Begin(writable)
	if err != nil {
		return nil, err
	}
	return &Tx{db: db, ktx: ktx, writable: writable}, nil
}

func (tx *Tx) DB() *DB {
	return tx.db
}

func (tx *Tx) Schema() *Schema {
	return tx.db.schema
}

func (tx *Tx) IsWritable() bool {
	return tx.writable
}

// KVTx exposes the underlying store transaction for callers that need to
// mix raw store access with entity operations.
func (tx *Tx) KVTx() KVTx {
	return tx.ktx
}

// Commit commits the store transaction. ErrTxConflict is surfaced as is;
// it is never retried here.
func (tx *Tx) Commit() error {
	if tx.done {
		return fmt.Errorf("ekv: tx already finished")
	}
	tx.done = true
	return tx.ktx.Commit()
}

// Rollback aborts the transaction. Safe to call after Commit, so it can be
// deferred unconditionally.
func (tx *Tx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	return tx.ktx.Rollback()
}

// View runs f inside a read-only transaction.
func (db *DB) View(f func(tx *Tx) error) error {
	tx, err := db.Begin(false)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return f(tx)
}

// Update runs f inside a writable transaction and commits it unless f
// fails. A commit-time ErrTxConflict is returned to the caller unchanged.
func (db *DB) Update(f func(tx *Tx) error) error {
	tx, err := db.Begin(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := f(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (tx *Tx) requireWritable() error {
	if !tx.writable {
		return fmt.Errorf("ekv: tx not writable")
	}
	if tx.done {
		return fmt.Errorf("ekv: tx already finished")
	}
	return nil
}
