package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rl1809/pantry/internal/core/domain"
)

type snapshot struct {
	Products []domain.Product `json:"products"`
	Recipes  []domain.Recipe  `json:"recipes"`
}

// FileAdapter keeps the whole pantry in one JSON file. Writes go to a
// temporary file that is renamed over the target, so a crash never leaves a
// truncated snapshot behind.
type FileAdapter struct {
	mu   sync.Mutex
	path string
}

func NewFileAdapter(path string) *FileAdapter {
	return &FileAdapter{path: path}
}

func (f *FileAdapter) LoadProducts(ctx context.Context) ([]domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap, err := f.readLocked()
	if err != nil {
		return nil, err
	}
	return snap.Products, nil
}

func (f *FileAdapter) LoadRecipes(ctx context.Context) ([]domain.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap, err := f.readLocked()
	if err != nil {
		return nil, err
	}
	return snap.Recipes, nil
}

func (f *FileAdapter) SaveProducts(ctx context.Context, products []domain.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap, err := f.readLocked()
	if err != nil {
		return err
	}
	snap.Products = products
	return f.writeLocked(snap)
}

func (f *FileAdapter) SaveRecipes(ctx context.Context, recipes []domain.Recipe) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap, err := f.readLocked()
	if err != nil {
		return err
	}
	snap.Recipes = recipes
	return f.writeLocked(snap)
}

// readLocked returns an empty snapshot when the file does not exist yet.
func (f *FileAdapter) readLocked() (snapshot, error) {
	var snap snapshot

	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("read snapshot: %w", err)
	}
	if len(raw) == 0 {
		return snap, nil
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		return snap, fmt.Errorf("decode snapshot %s: %w", f.path, err)
	}
	return snap, nil
}

func (f *FileAdapter) writeLocked(snap snapshot) error {
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
