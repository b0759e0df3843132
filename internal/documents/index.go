package documents

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/nugget/cinebot/internal/embeddings"
)

// Index stores the chunks of one document with their embeddings. Each
// session owns its own index, normally an in-memory SQLite database.
type Index struct {
	db *sql.DB
}

// OpenMemoryIndex opens a private in-memory index using the named
// database/sql driver ("sqlite3" or "sqlite").
func OpenMemoryIndex(driver string) (*Index, error) {
	db, err := sql.Open(driver, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	idx, err := NewIndexWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// NewIndexWithDB creates an index using an existing database connection.
func NewIndexWithDB(db *sql.DB) (*Index, error) {
	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return idx, nil
}

func (idx *Index) migrate() error {
	_, err := idx.db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			seq INTEGER PRIMARY KEY,
			content TEXT NOT NULL,
			embedding BLOB NOT NULL
		);

		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	return err
}

// Replace swaps the indexed document for name and its chunks. chunks
// and vectors must be the same length.
func (idx *Index) Replace(ctx context.Context, name string, chunks []string, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%d chunks but %d embeddings", len(chunks), len(vectors))
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (seq, content, embedding) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx, i, chunk, encodeVector(vectors[i])); err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('document', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, name); err != nil {
		return fmt.Errorf("set document name: %w", err)
	}
	return tx.Commit()
}

// DocumentName returns the name of the indexed document, or "" if none.
func (idx *Index) DocumentName(ctx context.Context) (string, error) {
	var name string
	err := idx.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'document'`).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return name, err
}

// Count returns the number of indexed chunks.
func (idx *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := idx.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// Search returns the k chunks most similar to query, best first.
func (idx *Index) Search(ctx context.Context, query []float32, k int) ([]string, error) {
	rows, err := idx.db.QueryContext(ctx, `SELECT content, embedding FROM chunks ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var (
		contents []string
		vectors  [][]float32
	)
	for rows.Next() {
		var (
			content string
			blob    []byte
		)
		if err := rows.Scan(&content, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		contents = append(contents, content)
		vectors = append(vectors, decodeVector(blob))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	best := embeddings.TopK(query, vectors, k)
	out := make([]string, len(best))
	for i, j := range best {
		out[i] = contents[j]
	}
	return out, nil
}

// Close releases the database.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// encodeVector packs v as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
