package ekv

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// restoreBatchSize bounds transaction size during restore. Progress is
// durable per batch; re-running a failed restore re-saves already-restored
// records, which is idempotent.
const restoreBatchSize = 128

// Backup exports every primary record of a table to a new file in dir,
// one JSON object per line, and returns the file's path. The whole export
// runs inside one read transaction, so it is a consistent snapshot.
//
// File system errors abort the backup and may leave a partial file behind;
// backup is not atomic. Records that fail to decode are skipped and
// reported in the returned error alongside a valid path.
func (db *DB) Backup(tbl *Table, dir string) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("%s_%d.json", tbl.name, time.Now().Unix()))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating backup file: %w", err)
	}
	w := bufio.NewWriter(f)

	var recErr error
	err = db.View(func(tx *Tx) error {
		c := tx.All(tbl)
		for c.Next() {
			raw, err := json.Marshal(c.Row())
			if err != nil {
				return fmt.Errorf("serializing %s/%x: %w", tbl.name, c.RawKey(), err)
			}
			if _, err := w.Write(raw); err != nil {
				return fmt.Errorf("writing backup file: %w", err)
			}
			if err := w.WriteByte('\n'); err != nil {
				return fmt.Errorf("writing backup file: %w", err)
			}
		}
		recErr = c.Err()
		return nil
	})
	if err != nil {
		f.Close()
		return "", err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return "", fmt.Errorf("writing backup file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing backup file: %w", err)
	}
	db.logger.Debug("BACKUP", zap.String("table", tbl.name), zap.String("path", path))
	return path, recErr
}

// Restore reads a backup file produced by Backup and saves every record
// through the normal Put path, rebuilding all index entries. Writes are
// batched into transactions of restoreBatchSize records; a failure aborts
// the restore but earlier batches stay committed.
func (db *DB) Restore(tbl *Table, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening backup file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var batch []any
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := db.Update(func(tx *Tx) error {
			for _, row := range batch {
				if err := tx.Put(tbl, row); err != nil {
					return err
				}
			}
			return nil
		})
		batch = batch[:0]
		return err
	}

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		row := tbl.newRow()
		if err := json.Unmarshal(line, row); err != nil {
			return fmt.Errorf("%s line %d: %w", path, lineNo, err)
		}
		batch = append(batch, row)
		if len(batch) >= restoreBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading backup file: %w", err)
	}
	if err := flush(); err != nil {
		return err
	}
	db.logger.Debug("RESTORE", zap.String("table", tbl.name), zap.String("path", path), zap.Int("records", lineNo))
	return nil
}
