package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"modelhub/internal/common/fsutil"
)

// MetaName is the metadata file written into every session directory.
const MetaName = "meta.json"

// Meta is the on-disk record of one serve session.
type Meta struct {
	ModelID   string    `json:"model_id"`
	CreatedAt time.Time `json:"created_at"`
	URL       string    `json:"url,omitempty"`
	SRV       string    `json:"srv,omitempty"`
	PID       int       `json:"pid,omitempty"`
}

// Store creates per-serve session directories under a base directory.
// Each directory is named "<modelID>_<8 hex chars>" and holds meta.json.
type Store struct {
	mu      sync.Mutex
	baseDir string
}

// NewStore ensures baseDir exists and returns a store rooted there.
func NewStore(baseDir string) (*Store, error) {
	abs, err := fsutil.EnsureDir(baseDir)
	if err != nil {
		return nil, fmt.Errorf("sessions dir: %w", err)
	}
	return &Store{baseDir: abs}, nil
}

// BaseDir returns the absolute sessions root.
func (s *Store) BaseDir() string { return s.baseDir }

// Create makes a fresh session directory for modelID and seeds its meta.json.
func (s *Store) Create(modelID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	dir := filepath.Join(s.baseDir, modelID+"_"+id[:8])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}
	m := Meta{ModelID: modelID, CreatedAt: time.Now()}
	if err := writeMeta(dir, m); err != nil {
		return "", err
	}
	return dir, nil
}

// Finalize records the server facts once the model is up.
func (s *Store) Finalize(dir, url, srv string, pid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := readMeta(dir)
	if err != nil {
		return err
	}
	m.URL = url
	m.SRV = srv
	m.PID = pid
	return writeMeta(dir, m)
}

// ReadMeta loads the meta.json of a session directory.
func (s *Store) ReadMeta(dir string) (Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readMeta(dir)
}

// writeMeta writes meta.json via temp file + rename so readers never
// observe a torn file.
func writeMeta(dir string, m Meta) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	path := filepath.Join(dir, MetaName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write meta tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename meta: %w", err)
	}
	return nil
}

func readMeta(dir string) (Meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetaName))
	if err != nil {
		return Meta{}, fmt.Errorf("read meta: %w", err)
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return Meta{}, fmt.Errorf("unmarshal meta: %w", err)
	}
	return m, nil
}
