// ABOUTME: Persistent group-membership restoration map backed by SQLite
// ABOUTME: Remembers every non-empty membership list ever observed, plus explicit-clear tombstones
package restore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harperreed/funnel/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS group_restorations (
	entity_id TEXT PRIMARY KEY,
	memberships TEXT NOT NULL,
	cleared INTEGER NOT NULL DEFAULT 0,
	observed_at DATETIME NOT NULL
);
`

// Store is the restoration subsystem's persistence layer, deliberately
// separate from the main cache: the bulk list API intermittently omits the
// groupMemberships relation, and this map is what keeps previously-seen
// assignments from flickering to "None".
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the restoration database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init restoration schema: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens an ephemeral store for tests.
func OpenInMemory() (*Store, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Observe records a non-empty membership list for an entity. Empty lists are
// ignored; only an explicit Clear may empty an entry. Observing real
// memberships lifts any tombstone.
func (s *Store) Observe(entityID string, memberships []models.GroupMembership) error {
	if entityID == "" || len(memberships) == 0 {
		return nil
	}
	data, err := json.Marshal(memberships)
	if err != nil {
		return fmt.Errorf("failed to encode memberships: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO group_restorations (entity_id, memberships, cleared, observed_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(entity_id) DO UPDATE SET memberships = excluded.memberships, cleared = 0, observed_at = excluded.observed_at
	`, entityID, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record memberships: %w", err)
	}
	return nil
}

// Clear writes an explicit-clear tombstone for an entity. A tombstone means
// the user intentionally removed the entity from all groups, so restoration
// must not resurrect the old assignments.
func (s *Store) Clear(entityID string) error {
	if entityID == "" {
		return nil
	}
	_, err := s.db.Exec(`
		INSERT INTO group_restorations (entity_id, memberships, cleared, observed_at)
		VALUES (?, '[]', 1, ?)
		ON CONFLICT(entity_id) DO UPDATE SET memberships = '[]', cleared = 1, observed_at = excluded.observed_at
	`, entityID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record group clear: %w", err)
	}
	return nil
}

// Lookup returns the remembered memberships for an entity. cleared reports
// an explicit-clear tombstone; memberships is nil when the entity has no
// entry or the entry is tombstoned.
func (s *Store) Lookup(entityID string) (memberships []models.GroupMembership, cleared bool, err error) {
	var data string
	var clearedInt int
	err = s.db.QueryRow(`
		SELECT memberships, cleared FROM group_restorations WHERE entity_id = ?
	`, entityID).Scan(&data, &clearedInt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up restoration entry: %w", err)
	}
	if clearedInt != 0 {
		return nil, true, nil
	}

	if err := json.Unmarshal([]byte(data), &memberships); err != nil {
		// A corrupt entry degrades to "nothing remembered".
		return nil, false, nil
	}
	if len(memberships) == 0 {
		return nil, false, nil
	}
	return memberships, false, nil
}

// All returns the full restoration map, skipping tombstoned entries. Used to
// mirror the map into the cache adapter at session start.
func (s *Store) All() (map[string][]models.GroupMembership, error) {
	rows, err := s.db.Query(`SELECT entity_id, memberships FROM group_restorations WHERE cleared = 0`)
	if err != nil {
		return nil, fmt.Errorf("failed to list restoration entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]models.GroupMembership)
	for rows.Next() {
		var entityID, data string
		if err := rows.Scan(&entityID, &data); err != nil {
			return nil, err
		}
		var memberships []models.GroupMembership
		if err := json.Unmarshal([]byte(data), &memberships); err != nil {
			continue
		}
		if len(memberships) > 0 {
			out[entityID] = memberships
		}
	}
	return out, rows.Err()
}
