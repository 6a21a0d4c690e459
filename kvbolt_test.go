package ekv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupBolt(t *testing.T) *DB {
	kv, err := OpenBolt(filepath.Join(t.TempDir(), "test.db"), BoltOptions{IsTesting: true})
	require.NoError(t, err)
	db := Open(kv, testSchema, Options{Logger: zaptest.NewLogger(t), Strict: true})
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBoltRoundTrip(t *testing.T) {
	db := setupBolt(t)
	u1 := &User{ID: uid(1), Email: "a@example.com", Name: "dup"}
	u2 := &User{ID: uid(2), Email: "b@example.com", Name: "dup"}

	require.NoError(t, db.Update(func(tx *Tx) error {
		require.NoError(t, tx.Put(usersTable, u1))
		return tx.Put(usersTable, u2)
	}))

	require.NoError(t, db.View(func(tx *Tx) error {
		got, err := Get[User](tx, usersTable, u1.ID)
		require.NoError(t, err)
		assert.Equal(t, u1, got)

		got, err = Lookup[User](tx, usersByEmail, "b@example.com")
		require.NoError(t, err)
		assert.Equal(t, u2, got)

		rows, err := AllByIndex[User](tx, usersByName, "dup")
		require.NoError(t, err)
		assert.Equal(t, []*User{u1, u2}, rows)
		return nil
	}))

	require.NoError(t, db.Update(func(tx *Tx) error {
		ok, err := tx.Delete(usersTable, u1.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	}))

	require.NoError(t, db.View(func(tx *Tx) error {
		_, err := Get[User](tx, usersTable, u1.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		rows, err := AllByIndex[User](tx, usersByName, "dup")
		require.NoError(t, err)
		assert.Equal(t, []*User{u2}, rows)
		return nil
	}))
}
