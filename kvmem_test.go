package ekv

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func memWith(t *testing.T, pairs map[string]string) *MemKV {
	s := NewMemKV()
	tx, err := s.Begin(true)
	require.NoError(t, err)
	for k, v := range pairs {
		require.NoError(t, tx.Put([]byte(k), []byte(v)))
	}
	require.NoError(t, tx.Commit())
	t.Cleanup(func() { s.Close() })
	return s
}

func scanKeys(t *testing.T, tx KVTx, prefix string) []string {
	var keys []string
	c := tx.Scan([]byte(prefix))
	for {
		k, _ := c.Next()
		if k == nil {
			return keys
		}
		keys = append(keys, string(k))
	}
}

func TestMemKVBasics(t *testing.T) {
	s := memWith(t, map[string]string{"a/1": "v1", "a/2": "v2", "b/1": "v3"})

	tx, err := s.Begin(false)
	require.NoError(t, err)
	defer tx.Rollback()

	v, err := tx.Get([]byte("a/1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)

	v, err = tx.Get([]byte("missing"))
	require.NoError(t, err)
	assert.Nil(t, v)

	assert.Equal(t, []string{"a/1", "a/2"}, scanKeys(t, tx, "a/"))
	assert.Empty(t, scanKeys(t, tx, "c/"))
}

func TestMemKVDelete(t *testing.T) {
	s := memWith(t, map[string]string{"a/1": "v1", "a/2": "v2"})

	tx, err := s.Begin(true)
	require.NoError(t, err)
	require.NoError(t, tx.Delete([]byte("a/1")))
	require.NoError(t, tx.Commit())

	tx, err = s.Begin(false)
	require.NoError(t, err)
	defer tx.Rollback()
	v, err := tx.Get([]byte("a/1"))
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, []string{"a/2"}, scanKeys(t, tx, "a/"))
}

func TestMemKVSnapshotIsolation(t *testing.T) {
	s := memWith(t, map[string]string{"k": "old"})

	rtx, err := s.Begin(false)
	require.NoError(t, err)
	defer rtx.Rollback()

	wtx, err := s.Begin(true)
	require.NoError(t, err)
	require.NoError(t, wtx.Put([]byte("k"), []byte("new")))
	require.NoError(t, wtx.Commit())

	v, err := rtx.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), v)
}

func TestMemKVReadWriteConflict(t *testing.T) {
	s := memWith(t, map[string]string{"k": "v0"})

	begin := func() KVTx {
		tx, err := s.Begin(true)
		require.NoError(t, err)
		return tx
	}
	readThenBump := func(tx KVTx) {
		v, err := tx.Get([]byte("k"))
		require.NoError(t, err)
		require.NoError(t, tx.Put([]byte("k"), append(v, 'x')))
	}

	tx1, tx2 := begin(), begin()
	readThenBump(tx1)
	readThenBump(tx2)
	require.NoError(t, tx1.Commit())
	assert.ErrorIs(t, tx2.Commit(), ErrTxConflict)
}

func TestMemKVReadOfDeletedKeyConflicts(t *testing.T) {
	s := memWith(t, map[string]string{"k": "v0"})

	tx1, err := s.Begin(true)
	require.NoError(t, err)
	tx2, err := s.Begin(true)
	require.NoError(t, err)

	_, err = tx2.Get([]byte("k"))
	require.NoError(t, err)
	require.NoError(t, tx2.Put([]byte("other"), []byte("x")))

	require.NoError(t, tx1.Delete([]byte("k")))
	require.NoError(t, tx1.Commit())

	assert.ErrorIs(t, tx2.Commit(), ErrTxConflict)
}

func TestMemKVScanPhantomConflict(t *testing.T) {
	s := memWith(t, map[string]string{"q/1": "x"})

	tx1, err := s.Begin(true)
	require.NoError(t, err)
	assert.Empty(t, scanKeys(t, tx1, "p/"))
	require.NoError(t, tx1.Put([]byte("q/2"), []byte("y")))

	tx2, err := s.Begin(true)
	require.NoError(t, err)
	require.NoError(t, tx2.Put([]byte("p/new"), []byte("z")))
	require.NoError(t, tx2.Commit())

	assert.ErrorIs(t, tx1.Commit(), ErrTxConflict)
}

func TestMemKVDisjointWritesBothCommit(t *testing.T) {
	s := memWith(t, nil)

	tx1, err := s.Begin(true)
	require.NoError(t, err)
	tx2, err := s.Begin(true)
	require.NoError(t, err)

	require.NoError(t, tx1.Put([]byte("a"), []byte("1")))
	require.NoError(t, tx2.Put([]byte("b"), []byte("2")))
	require.NoError(t, tx1.Commit())
	require.NoError(t, tx2.Commit())
}

func TestConcurrentSaveSamePrimaryKey(t *testing.T) {
	db := Open(NewMemKV(), testSchema, Options{})
	defer db.Close()

	tx1, err := db.Begin(true)
	require.NoError(t, err)
	defer tx1.Rollback()
	tx2, err := db.Begin(true)
	require.NoError(t, err)
	defer tx2.Rollback()

	require.NoError(t, tx1.Put(usersTable, &User{ID: uid(1), Email: "a@example.com"}))
	require.NoError(t, tx2.Put(usersTable, &User{ID: uid(1), Email: "b@example.com"}))

	require.NoError(t, tx1.Commit())
	assert.ErrorIs(t, tx2.Commit(), ErrTxConflict)
}

func TestConcurrentUniqueValueRace(t *testing.T) {
	db := Open(NewMemKV(), testSchema, Options{})
	defer db.Close()

	tx1, err := db.Begin(true)
	require.NoError(t, err)
	defer tx1.Rollback()
	tx2, err := db.Begin(true)
	require.NoError(t, err)
	defer tx2.Rollback()

	// Different primary keys claiming the same unique value: neither sees
	// the other's entry, so at most one commit may win.
	require.NoError(t, tx1.Put(usersTable, &User{ID: uid(1), Email: "same@example.com"}))
	require.NoError(t, tx2.Put(usersTable, &User{ID: uid(2), Email: "same@example.com"}))

	require.NoError(t, tx1.Commit())
	assert.ErrorIs(t, tx2.Commit(), ErrTxConflict)
}

func TestConcurrentUpdates(t *testing.T) {
	db := Open(NewMemKV(), testSchema, Options{})
	defer db.Close()

	const n = 8
	start := make(chan struct{})
	results := make([]error, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			<-start
			results[i] = db.Update(func(tx *Tx) error {
				return tx.Put(usersTable, &User{ID: uid(7), Email: "same@example.com", Name: "racer"})
			})
			return nil
		})
	}
	close(start)
	require.NoError(t, g.Wait())

	var ok, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrTxConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.GreaterOrEqual(t, ok, 1)
	assert.Equal(t, n, ok+conflicts)

	require.NoError(t, db.View(func(tx *Tx) error {
		u, err := Get[User](tx, usersTable, uid(7))
		require.NoError(t, err)
		assert.Equal(t, "racer", u.Name)
		return nil
	}))
}
