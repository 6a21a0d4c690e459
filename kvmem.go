package ekv

import (
	"bytes"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// MemKV is a transient in-memory KV with snapshot isolation and optimistic
// commits. Begin snapshots the whole store (simplicity over efficiency);
// Commit validates the transaction's reads against writes committed in the
// meantime and returns ErrTxConflict when any of them changed. Suitable for
// tests and small embedded use.
type MemKV struct {
	mu      sync.Mutex
	entries []memEntry // sorted by key; deleted keys stay as tombstones
	seq     uint64
	closed  bool
}

// memEntry with value == nil is a tombstone: invisible to reads, but its
// version still participates in conflict detection.
type memEntry struct {
	key   []byte
	value []byte
	ver   uint64
}

func NewMemKV() *MemKV {
	return &MemKV{}
}

func (s *MemKV) Begin(writable bool) (KVTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("store closed")
	}
	snap := make([]memEntry, len(s.entries))
	for i, e := range s.entries {
		snap[i] = memEntry{key: e.key, value: e.value, ver: e.ver}
	}
	return &memTx{
		base:     s,
		writable: writable,
		startSeq: s.seq,
		entries:  snap,
		reads:    make(map[string]uint64),
		writes:   make(map[string]bool),
	}, nil
}

func (s *MemKV) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}

func findEntry(entries []memEntry, key []byte) (int, bool) {
	i := sort.Search(len(entries), func(i int) bool {
		return bytes.Compare(entries[i].key, key) >= 0
	})
	if i < len(entries) && bytes.Equal(entries[i].key, key) {
		return i, true
	}
	return i, false
}

type memTx struct {
	base     *MemKV
	writable bool
	startSeq uint64
	entries  []memEntry // private snapshot, mutated by Put/Delete

	reads    map[string]uint64 // key -> entry version seen (0 = absent)
	scans    [][]byte          // prefixes read via Scan
	writes   map[string]bool   // keys written (true) or deleted (false)
	writeSeq []string          // write order, for deterministic apply
	closed   bool
}

func (tx *memTx) Get(key []byte) ([]byte, error) {
	if tx.closed {
		return nil, fmt.Errorf("tx closed")
	}
	i, ok := findEntry(tx.entries, key)
	if _, written := tx.writes[string(key)]; !written {
		if _, seen := tx.reads[string(key)]; !seen {
			var ver uint64
			if ok {
				ver = tx.entries[i].ver
			}
			tx.reads[string(key)] = ver
		}
	}
	if !ok || tx.entries[i].value == nil {
		return nil, nil
	}
	return tx.entries[i].value, nil
}

func (tx *memTx) Put(key, value []byte) error {
	if tx.closed {
		return fmt.Errorf("tx closed")
	}
	if !tx.writable {
		return fmt.Errorf("tx not writable")
	}
	if value == nil {
		value = []byte{}
	}
	key = slices.Clone(key)
	value = slices.Clone(value)
	i, ok := findEntry(tx.entries, key)
	if ok {
		tx.entries[i].value = value
	} else {
		tx.entries = slices.Insert(tx.entries, i, memEntry{key: key, value: value})
	}
	tx.recordWrite(key, true)
	return nil
}

func (tx *memTx) Delete(key []byte) error {
	if tx.closed {
		return fmt.Errorf("tx closed")
	}
	if !tx.writable {
		return fmt.Errorf("tx not writable")
	}
	i, ok := findEntry(tx.entries, key)
	if ok {
		tx.entries[i].value = nil
	}
	tx.recordWrite(slices.Clone(key), false)
	return nil
}

func (tx *memTx) recordWrite(key []byte, put bool) {
	k := string(key)
	if _, dup := tx.writes[k]; !dup {
		tx.writeSeq = append(tx.writeSeq, k)
	}
	tx.writes[k] = put
}

func (tx *memTx) Scan(prefix []byte) KVCursor {
	if tx.closed {
		panic("tx closed")
	}
	tx.scans = append(tx.scans, slices.Clone(prefix))
	i := sort.Search(len(tx.entries), func(i int) bool {
		return bytes.Compare(tx.entries[i].key, prefix) >= 0
	})
	return &memCursor{tx: tx, prefix: prefix, pos: i}
}

func (tx *memTx) Commit() error {
	if tx.closed {
		return fmt.Errorf("tx closed")
	}
	tx.closed = true
	if !tx.writable || len(tx.writes) == 0 {
		return nil
	}

	s := tx.base
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store closed")
	}

	// Validate point reads: the entry version must be what we saw.
	for k, seenVer := range tx.reads {
		var curVer uint64
		if i, ok := findEntry(s.entries, []byte(k)); ok {
			curVer = s.entries[i].ver
		}
		if curVer != seenVer {
			return ErrTxConflict
		}
	}

	// Validate scanned ranges: no write under any scanned prefix since the
	// snapshot was taken. Tombstones count.
	for _, prefix := range tx.scans {
		i := sort.Search(len(s.entries), func(i int) bool {
			return bytes.Compare(s.entries[i].key, prefix) >= 0
		})
		for ; i < len(s.entries) && bytes.HasPrefix(s.entries[i].key, prefix); i++ {
			if s.entries[i].ver > tx.startSeq {
				return ErrTxConflict
			}
		}
	}

	s.seq++
	ver := s.seq
	for _, k := range tx.writeSeq {
		key := []byte(k)
		i, ok := findEntry(s.entries, key)
		if tx.writes[k] {
			j, _ := findEntry(tx.entries, key)
			e := memEntry{key: key, value: tx.entries[j].value, ver: ver}
			if ok {
				s.entries[i] = e
			} else {
				s.entries = slices.Insert(s.entries, i, e)
			}
		} else {
			if ok {
				s.entries[i].value = nil
				s.entries[i].ver = ver
			} else {
				s.entries = slices.Insert(s.entries, i, memEntry{key: key, ver: ver})
			}
		}
	}
	return nil
}

func (tx *memTx) Rollback() error {
	tx.closed = true
	return nil
}

type memCursor struct {
	tx     *memTx
	prefix []byte
	pos    int
}

func (c *memCursor) Next() ([]byte, []byte) {
	for c.pos < len(c.tx.entries) {
		e := c.tx.entries[c.pos]
		if !bytes.HasPrefix(e.key, c.prefix) {
			return nil, nil
		}
		c.pos++
		if e.value == nil {
			continue // tombstone
		}
		return e.key, e.value
	}
	return nil, nil
}
