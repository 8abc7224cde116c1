package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"forge/internal/cachekey"
)

// Metadata is what the index records about one stored artifact.
type Metadata struct {
	ElementName        string
	WeakKey            cachekey.Key
	StrongKey          cachekey.Key
	EmbeddedStrongKey  cachekey.Key // the strong key effective when this artifact was built
	StoredAt           time.Time
}

// Index is the sqlite-backed artifact metadata store. It exists
// alongside the content-addressed blob store so the core can recover,
// for a weak-key match, the strong key that was effective at build time
// (needed for non-strict cache-key plans).
type Index struct {
	db *sql.DB
}

// OpenIndex opens (creating if needed) the sqlite metadata database at
// path.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open metadata index: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite does not support concurrent writers

	const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	weak_key   TEXT NOT NULL,
	strong_key TEXT NOT NULL,
	element    TEXT NOT NULL,
	embedded_strong_key TEXT NOT NULL,
	stored_at  INTEGER NOT NULL,
	PRIMARY KEY (weak_key, strong_key)
);
CREATE INDEX IF NOT EXISTS idx_artifacts_weak ON artifacts(weak_key);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create metadata schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error { return idx.db.Close() }

// Record stores metadata for an artifact under both its weak and strong
// keys, replacing any earlier weak-key binding (non-strict plans always
// prefer the latest matching build).
func (idx *Index) Record(m Metadata) error {
	const upsert = `
INSERT INTO artifacts (weak_key, strong_key, element, embedded_strong_key, stored_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(weak_key, strong_key) DO UPDATE SET
	element = excluded.element,
	embedded_strong_key = excluded.embedded_strong_key,
	stored_at = excluded.stored_at;
`
	_, err := idx.db.Exec(upsert, string(m.WeakKey), string(m.StrongKey), m.ElementName, string(m.EmbeddedStrongKey), m.StoredAt.Unix())
	if err != nil {
		return fmt.Errorf("cache: record artifact metadata: %w", err)
	}

	const clearStaleWeak = `
DELETE FROM artifacts WHERE weak_key = ? AND strong_key != ? AND stored_at < ?;
`
	if _, err := idx.db.Exec(clearStaleWeak, string(m.WeakKey), string(m.StrongKey), m.StoredAt.Unix()); err != nil {
		return fmt.Errorf("cache: replace stale weak-key binding: %w", err)
	}
	return nil
}

// History returns every recorded artifact for elementName, most recently
// stored first.
func (idx *Index) History(elementName string) ([]Metadata, error) {
	rows, err := idx.db.Query(
		`SELECT weak_key, strong_key, element, embedded_strong_key, stored_at FROM artifacts WHERE element = ? ORDER BY stored_at DESC;`,
		elementName,
	)
	if err != nil {
		return nil, fmt.Errorf("cache: query artifact history: %w", err)
	}
	defer rows.Close()

	var out []Metadata
	for rows.Next() {
		var weak, strong, element, embedded string
		var storedAt int64
		if err := rows.Scan(&weak, &strong, &element, &embedded, &storedAt); err != nil {
			return nil, fmt.Errorf("cache: scan artifact history row: %w", err)
		}
		out = append(out, Metadata{
			WeakKey:           cachekey.Key(weak),
			StrongKey:         cachekey.Key(strong),
			ElementName:       element,
			EmbeddedStrongKey: cachekey.Key(embedded),
			StoredAt:          time.Unix(storedAt, 0).UTC(),
		})
	}
	return out, rows.Err()
}

// EmbeddedStrongKey returns the strong key effective when the artifact
// matching weakKey was most recently built.
func (idx *Index) EmbeddedStrongKey(weakKey cachekey.Key) (cachekey.Key, bool, error) {
	row := idx.db.QueryRow(
		`SELECT embedded_strong_key FROM artifacts WHERE weak_key = ? ORDER BY stored_at DESC LIMIT 1;`,
		string(weakKey),
	)
	var key string
	switch err := row.Scan(&key); err {
	case nil:
		return cachekey.Key(key), true, nil
	case sql.ErrNoRows:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("cache: lookup embedded strong key: %w", err)
	}
}
