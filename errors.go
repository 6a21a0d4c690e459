package ekv

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get and Lookup when no record matches.
var ErrNotFound = errors.New("ekv: not found")

// ErrTxConflict is returned by Commit when the store detected a concurrent
// conflicting write. The transaction is rolled back; the caller decides
// whether to retry.
var ErrTxConflict = errors.New("ekv: transaction conflict")

// UniqueConstraintError is returned by Put when saving would make a unique
// index entry point at a second primary key.
type UniqueConstraintError struct {
	Index *Index
	Value any
}

func (e *UniqueConstraintError) Error() string {
	return fmt.Sprintf("%s: unique constraint violation on value %v", e.Index.FullName(), e.Value)
}

// CorruptKeyError means stored key bytes do not decode back into parts.
// Only expected under storage corruption; fatal for the affected operation.
type CorruptKeyError struct {
	Key []byte
	Msg string
}

func (e *CorruptKeyError) Error() string {
	return fmt.Sprintf("corrupt key %x: %s", e.Key, e.Msg)
}

func corruptKeyf(key []byte, format string, args ...any) error {
	return &CorruptKeyError{Key: key, Msg: fmt.Sprintf(format, args...)}
}

// MigrationError reports a record that failed to migrate. Migration
// continues with the next record; these are collected into MigrationStats.
type MigrationError struct {
	Table string
	Key   []byte
	Err   error
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("%s/%x: migration failed: %v", e.Table, e.Key, e.Err)
}

type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}

// TableError wraps an error with table, index and key context.
type TableError struct {
	Table string
	Index string
	Key   []byte
	Msg   string
	Err   error
}

func tableErrf(tbl *Table, idx *Index, key []byte, err error, format string, args ...any) error {
	e := &TableError{Key: key, Msg: fmt.Sprintf(format, args...), Err: err}
	if tbl != nil {
		e.Table = tbl.name
	}
	if idx != nil {
		e.Index = idx.name
		if e.Table == "" && idx.table != nil {
			e.Table = idx.table.name
		}
	}
	return e
}

func (e *TableError) Unwrap() error {
	return e.Err
}

func (e *TableError) Error() string {
	s := e.Table
	if e.Index != "" {
		s += "." + e.Index
	}
	if e.Key != nil {
		s += fmt.Sprintf("/%x", e.Key)
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
