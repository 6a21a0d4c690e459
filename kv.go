package ekv

// KV is the transactional sorted key-value store the entity layer runs on
// (bbolt, in-memory, TiKV-alike, etc.). Implementations must provide
// snapshot isolation: all reads within one transaction see a single
// consistent snapshot, and all writes become visible atomically at commit.
type KV interface {
	// Begin starts a new transaction.
	Begin(writable bool) (KVTx, error)
	// Close closes the store.
	Close() error
}

// KVTx is a single store transaction.
type KVTx interface {
	// Get retrieves a value by key. Returns nil, nil if not found.
	Get(key []byte) ([]byte, error)

	// Put stores a key-value pair.
	Put(key, value []byte) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(key []byte) error

	// Scan returns a cursor over all keys starting with prefix,
	// in ascending key order.
	Scan(prefix []byte) KVCursor

	// Commit commits the transaction. Returns ErrTxConflict when the store
	// detected a concurrent conflicting write; the transaction is rolled
	// back in that case.
	Commit() error

	// Rollback aborts the transaction. Safe to call after Commit.
	Rollback() error
}

// KVCursor iterates over a key range in ascending key order.
// Next returns nil, nil past the end. Returned slices are only valid until
// the next call and must not be retained without copying.
type KVCursor interface {
	Next() (key, value []byte)
}
