package ekv

import (
	"bytes"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var boltRootBucket = []byte("ekv")

// BoltKV is a durable KV backed by bbolt, storing everything in one flat
// bucket. Bolt serializes writers, so Commit never reports a conflict.
type BoltKV struct {
	bdb *bbolt.DB
}

type BoltOptions struct {
	IsTesting bool
	MmapSize  int
}

func OpenBolt(path string, opt BoltOptions) (*BoltKV, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 1024
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("ekv: %w", err)
	}
	err = bdb.Update(func(btx *bbolt.Tx) error {
		_, err := btx.CreateBucketIfNotExists(boltRootBucket)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("ekv: %w", err)
	}
	return &BoltKV{bdb: bdb}, nil
}

func (s *BoltKV) Begin(writable bool) (KVTx, error) {
	btx, err := s.bdb.Begin(writable)
	if err != nil {
		return nil, err
	}
	return &boltTx{btx: btx}, nil
}

func (s *BoltKV) Close() error {
	return s.bdb.Close()
}

type boltTx struct {
	btx *bbolt.Tx
}

func (tx *boltTx) BoltTx() *bbolt.Tx { return tx.btx }

func (tx *boltTx) bucket() *bbolt.Bucket {
	b := tx.btx.Bucket(boltRootBucket)
	if b == nil {
		panic("ekv: root bucket missing")
	}
	return b
}

func (tx *boltTx) Get(key []byte) ([]byte, error) {
	return tx.bucket().Get(key), nil
}

func (tx *boltTx) Put(key, value []byte) error {
	return tx.bucket().Put(key, value)
}

func (tx *boltTx) Delete(key []byte) error {
	return tx.bucket().Delete(key)
}

func (tx *boltTx) Scan(prefix []byte) KVCursor {
	return &boltCursor{c: tx.bucket().Cursor(), prefix: prefix}
}

func (tx *boltTx) Commit() error { return tx.btx.Commit() }

func (tx *boltTx) Rollback() error {
	err := tx.btx.Rollback()
	if err == bbolt.ErrTxClosed {
		return nil
	}
	return err
}

type boltCursor struct {
	c      *bbolt.Cursor
	prefix []byte
	moved  bool
}

func (c *boltCursor) Next() ([]byte, []byte) {
	var k, v []byte
	if !c.moved {
		c.moved = true
		k, v = c.c.Seek(c.prefix)
	} else {
		k, v = c.c.Next()
	}
	if k == nil || !bytes.HasPrefix(k, c.prefix) {
		return nil, nil
	}
	return k, v
}
