package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"modelhub/internal/common/fsutil"
)

// ManifestName is the file that marks a directory as a model bundle.
const ManifestName = "model.yaml"

// Bundle describes one installed model: its identity, the operations it
// exposes, and how to start its server process.
type Bundle struct {
	ID      string
	Slug    string
	Title   string
	APIs    []string
	Command []string
	Health  string
	Env     map[string]string
	Dir     string
}

type manifest struct {
	ID      string            `yaml:"id"`
	Slug    string            `yaml:"slug"`
	Title   string            `yaml:"title"`
	APIs    []string          `yaml:"apis"`
	Command []string          `yaml:"command"`
	Health  string            `yaml:"health"`
	Env     map[string]string `yaml:"env"`
}

// Catalog indexes the model bundles found under a models directory.
// Lookup accepts either the bundle ID or its slug.
type Catalog struct {
	dir string

	mu     sync.RWMutex
	byID   map[string]Bundle
	bySlug map[string]Bundle
}

// Open scans dir for bundles and returns a catalog over them.
// Subdirectories without a model.yaml are ignored; a malformed
// manifest is an error so the operator fixes it instead of serving
// a half-indexed catalog.
func Open(dir string) (*Catalog, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	c := &Catalog{dir: abs}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload rescans the models directory, replacing the index atomically.
func (c *Catalog) Reload() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read models dir: %w", err)
	}
	byID := make(map[string]Bundle)
	bySlug := make(map[string]Bundle)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		bdir := filepath.Join(c.dir, e.Name())
		mpath := filepath.Join(bdir, ManifestName)
		if !fsutil.PathExists(mpath) {
			continue
		}
		b, err := loadBundle(bdir, mpath)
		if err != nil {
			return err
		}
		if prev, ok := byID[b.ID]; ok {
			return fmt.Errorf("duplicate model id %q in %s and %s", b.ID, prev.Dir, b.Dir)
		}
		byID[b.ID] = b
		if b.Slug != "" {
			if prev, ok := bySlug[b.Slug]; ok {
				return fmt.Errorf("duplicate model slug %q in %s and %s", b.Slug, prev.Dir, b.Dir)
			}
			bySlug[b.Slug] = b
		}
	}
	c.mu.Lock()
	c.byID = byID
	c.bySlug = bySlug
	c.mu.Unlock()
	return nil
}

func loadBundle(dir, mpath string) (Bundle, error) {
	raw, err := os.ReadFile(mpath)
	if err != nil {
		return Bundle{}, fmt.Errorf("read manifest %s: %w", mpath, err)
	}
	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Bundle{}, fmt.Errorf("parse manifest %s: %w", mpath, err)
	}
	if m.ID == "" {
		return Bundle{}, fmt.Errorf("manifest %s: missing id", mpath)
	}
	b := Bundle{
		ID:      m.ID,
		Slug:    m.Slug,
		Title:   m.Title,
		APIs:    m.APIs,
		Command: m.Command,
		Health:  m.Health,
		Env:     m.Env,
		Dir:     dir,
	}
	if len(b.APIs) == 0 {
		b.APIs = []string{"run"}
	}
	if b.Health == "" {
		b.Health = "/healthz"
	}
	return b, nil
}

// Lookup resolves ref as a bundle ID first, then as a slug.
func (c *Catalog) Lookup(ref string) (Bundle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if b, ok := c.byID[ref]; ok {
		return b, true
	}
	b, ok := c.bySlug[ref]
	return b, ok
}

// List returns all bundles sorted by ID.
func (c *Catalog) List() []Bundle {
	c.mu.RLock()
	out := make([]Bundle, 0, len(c.byID))
	for _, b := range c.byID {
		out = append(out, b)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports how many bundles are indexed.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}
