package session

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"modelhub/pkg/types"
)

// Registry is the process-wide map from model ID to its session directory.
// Register is an atomic upsert; the most recent registration wins. When
// opened with a sqlite path, every mutation is written through so other
// processes can list sessions, but the in-memory map stays authoritative
// for this process and a persistence failure never fails a registration.
type Registry struct {
	mu      sync.RWMutex
	byModel map[string]types.SessionRecord

	db  *sql.DB
	log zerolog.Logger
}

// NewRegistry returns an in-memory registry with no persistence.
func NewRegistry() *Registry {
	return &Registry{
		byModel: make(map[string]types.SessionRecord),
		log:     zerolog.Nop(),
	}
}

// OpenRegistry opens (creating if needed) the sqlite file at path and
// loads any previously persisted entries into memory.
func OpenRegistry(path string, log zerolog.Logger) (*Registry, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	r := &Registry{
		byModel: make(map[string]types.SessionRecord),
		db:      db,
		log:     log,
	}
	if err := r.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := r.loadAll(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Registry) migrate() error {
	_, err := r.db.Exec(`
CREATE TABLE IF NOT EXISTS sessions (
  model_id TEXT PRIMARY KEY,
  dir TEXT NOT NULL,
  registered_at INTEGER NOT NULL
);
`)
	if err != nil {
		return fmt.Errorf("migrate registry db: %w", err)
	}
	return nil
}

func (r *Registry) loadAll() error {
	rows, err := r.db.Query("SELECT model_id, dir, registered_at FROM sessions;")
	if err != nil {
		return fmt.Errorf("load registry rows: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rec types.SessionRecord
		if err := rows.Scan(&rec.ModelID, &rec.Dir, &rec.RegisteredAt); err != nil {
			return fmt.Errorf("scan registry row: %w", err)
		}
		r.byModel[rec.ModelID] = rec
	}
	return rows.Err()
}

// Register upserts the session directory for modelID. Last write wins.
func (r *Registry) Register(modelID, dir string) {
	rec := types.SessionRecord{
		ModelID:      modelID,
		Dir:          dir,
		RegisteredAt: time.Now().Unix(),
	}
	r.mu.Lock()
	r.byModel[modelID] = rec
	r.mu.Unlock()

	if r.db == nil {
		return
	}
	_, err := r.db.Exec(`
INSERT INTO sessions(model_id, dir, registered_at) VALUES(?, ?, ?)
ON CONFLICT(model_id) DO UPDATE SET
  dir=excluded.dir,
  registered_at=excluded.registered_at;
`, rec.ModelID, rec.Dir, rec.RegisteredAt)
	if err != nil {
		r.log.Warn().Err(err).Str("model", modelID).Msg("registry write-through failed")
	}
}

// Lookup returns the registered session record for modelID.
func (r *Registry) Lookup(modelID string) (types.SessionRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byModel[modelID]
	return rec, ok
}

// Clear removes the entry for modelID, if any.
func (r *Registry) Clear(modelID string) {
	r.mu.Lock()
	delete(r.byModel, modelID)
	r.mu.Unlock()

	if r.db == nil {
		return
	}
	if _, err := r.db.Exec("DELETE FROM sessions WHERE model_id=?;", modelID); err != nil {
		r.log.Warn().Err(err).Str("model", modelID).Msg("registry delete failed")
	}
}

// List snapshots all records sorted by model ID.
func (r *Registry) List() []types.SessionRecord {
	r.mu.RLock()
	out := make([]types.SessionRecord, 0, len(r.byModel))
	for _, rec := range r.byModel {
		out = append(out, rec)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byModel)
}

// Close releases the backing database, if any.
func (r *Registry) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}
