package ekv

import (
	"go.uber.org/zap"
)

// DB couples a schema with a store. It holds no locks and no state of its
// own; concurrency control is entirely the store's.
type DB struct {
	kv     KV
	schema *Schema
	logger *zap.Logger
	strict bool
}

type Options struct {
	// Logger receives debug-level operation logging. Defaults to a no-op.
	Logger *zap.Logger

	// Strict makes internal inconsistencies (an index entry pointing at a
	// missing record) panic instead of being reported as ErrNotFound.
	// Recommended for tests.
	Strict bool
}

func Open(kv KV, schema *Schema, opt Options) *DB {
	logger := opt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{
		kv:     kv,
		schema: schema,
		logger: logger,
		strict: opt.Strict,
	}
}

func (db *DB) Schema() *Schema {
	return db.schema
}

func (db *DB) Close() error {
	return db.kv.Close()
}
