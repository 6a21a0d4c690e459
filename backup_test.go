package ekv

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestBackupRestore(t *testing.T) {
	db := setup(t)
	u1 := &User{ID: uid(1), Email: "ada@example.com", Name: "ada"}
	u2 := &User{ID: uid(2), Email: "alan@example.com", Name: "alan"}
	require.NoError(t, db.Update(func(tx *Tx) error {
		require.NoError(t, tx.Put(usersTable, u1))
		return tx.Put(usersTable, u2)
	}))

	path, err := db.Backup(usersTable, t.TempDir())
	require.NoError(t, err)
	assert.Regexp(t, `^Users_\d+\.json$`, filepath.Base(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(raw, []byte("\n")))

	db2 := Open(NewMemKV(), testSchema, Options{Logger: zaptest.NewLogger(t), Strict: true})
	defer db2.Close()
	require.NoError(t, db2.Restore(usersTable, path))

	require.NoError(t, db2.View(func(tx *Tx) error {
		rows, err := All[User](tx, usersTable)
		require.NoError(t, err)
		assert.Equal(t, []*User{u1, u2}, rows)

		// Restore goes through the normal save path, so indexes come back.
		got, err := Lookup[User](tx, usersByEmail, "alan@example.com")
		require.NoError(t, err)
		assert.Equal(t, u2, got)

		byName, err := AllByIndex[User](tx, usersByName, "ada")
		require.NoError(t, err)
		assert.Equal(t, []*User{u1}, byName)
		return nil
	}))
}

func TestRestoreBatching(t *testing.T) {
	db := setup(t)
	const n = restoreBatchSize*2 + 17
	require.NoError(t, db.Update(func(tx *Tx) error {
		for i := 0; i < n; i++ {
			u := &User{Email: fmt.Sprintf("u%d@example.com", i)}
			u.ID[14] = byte(i >> 8)
			u.ID[15] = byte(i)
			if err := tx.Put(usersTable, u); err != nil {
				return err
			}
		}
		return nil
	}))

	path, err := db.Backup(usersTable, t.TempDir())
	require.NoError(t, err)

	db2 := Open(NewMemKV(), testSchema, Options{Logger: zaptest.NewLogger(t)})
	defer db2.Close()
	require.NoError(t, db2.Restore(usersTable, path))

	require.NoError(t, db2.View(func(tx *Tx) error {
		count, err := tx.Count(usersTable)
		require.NoError(t, err)
		assert.Equal(t, n, count)
		return nil
	}))
}

func TestRestoreIsIdempotent(t *testing.T) {
	db := setup(t)
	u := &User{ID: uid(1), Email: "ada@example.com", Name: "ada"}
	require.NoError(t, db.Update(func(tx *Tx) error {
		return tx.Put(usersTable, u)
	}))

	path, err := db.Backup(usersTable, t.TempDir())
	require.NoError(t, err)

	// Restoring into a store that already holds the records re-saves them.
	require.NoError(t, db.Restore(usersTable, path))

	require.NoError(t, db.View(func(tx *Tx) error {
		count, err := tx.Count(usersTable)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		got, err := Lookup[User](tx, usersByEmail, "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, u, got)
		return nil
	}))
}

func TestBackupReportsCorruptRecords(t *testing.T) {
	db := setup(t)
	u1 := &User{ID: uid(1), Email: "ada@example.com", Name: "ada"}
	u2 := &User{ID: uid(2), Email: "alan@example.com", Name: "alan"}
	require.NoError(t, db.Update(func(tx *Tx) error {
		require.NoError(t, tx.Put(usersTable, u1))
		return tx.Put(usersTable, u2)
	}))
	require.NoError(t, db.Update(func(tx *Tx) error {
		return tx.KVTx().Put(usersTable.dataKey(nil, u2.ID), []byte{0xFF, 0xFF, 0xFF})
	}))

	// The corrupt record is reported, but the healthy ones still land in a
	// usable backup file.
	path, err := db.Backup(usersTable, t.TempDir())
	require.Error(t, err)
	var terr *TableError
	require.ErrorAs(t, err, &terr)
	require.NotEmpty(t, path)

	db2 := Open(NewMemKV(), testSchema, Options{Logger: zaptest.NewLogger(t)})
	defer db2.Close()
	require.NoError(t, db2.Restore(usersTable, path))
	require.NoError(t, db2.View(func(tx *Tx) error {
		rows, err := All[User](tx, usersTable)
		require.NoError(t, err)
		assert.Equal(t, []*User{u1}, rows)
		return nil
	}))
}

func TestRestoreRejectsMalformedLine(t *testing.T) {
	db := setup(t)
	path := filepath.Join(t.TempDir(), "Users_1.json")
	require.NoError(t, os.WriteFile(path, []byte("{\"id\":\"00000000-0000-0000-0000-000000000001\"}\nnot json\n"), 0666))

	err := db.Restore(usersTable, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}
