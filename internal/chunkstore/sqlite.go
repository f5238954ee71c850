package chunkstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"docqa/internal/models"
)

const chunkSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id INTEGER PRIMARY KEY,
	document_id TEXT NOT NULL,
	sequence_no INTEGER NOT NULL,
	text TEXT NOT NULL
);
`

// Save writes the ordered chunk sequence to a SQLite file at path,
// replacing any previous contents. Parent directories are created if needed.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create chunk store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("open chunk store: %w", err)
	}
	defer db.Close()
	if _, err := db.Exec(chunkSchema); err != nil {
		return fmt.Errorf("init chunk schema: %w", err)
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin chunk save: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM chunks`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("reset chunk records: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO chunks (id, document_id, sequence_no, text) VALUES (?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()
	for _, ch := range s.chunks {
		if _, err := stmt.Exec(ch.ID, ch.DocumentID, ch.SequenceNo, ch.Text); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("write chunk %d: %w", ch.ID, err)
		}
	}
	return tx.Commit()
}

// Load reads the chunk records file at path and replaces the in-memory
// contents. The file must contain a contiguous sequence of IDs starting at
// zero; anything else, including an unreadable database, fails with
// ErrCorruptStore.
func (s *Store) Load(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat chunk store: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("open chunk store: %w", err)
	}
	defer db.Close()
	rows, err := db.Query(`SELECT id, document_id, sequence_no, text FROM chunks ORDER BY id`)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	defer rows.Close()
	var chunks []models.Chunk
	for rows.Next() {
		var ch models.Chunk
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.SequenceNo, &ch.Text); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptStore, err)
		}
		if ch.ID != len(chunks) {
			return fmt.Errorf("%w: chunk ids not contiguous at %d", ErrCorruptStore, ch.ID)
		}
		chunks = append(chunks, ch)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	s.mu.Lock()
	s.chunks = chunks
	s.mu.Unlock()
	return nil
}
