package library

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ralt/ghpm/internal/models"
	"github.com/ralt/ghpm/internal/utils"
)

// Library is the persisted record of what is installed where.
// Callers mutate the returned models and must call Save afterwards.
type Library struct {
	path     string
	packages map[string]*models.PackageModel
}

// New creates an empty, unsaved library backed by path
func New(path string) *Library {
	return &Library{
		path:     path,
		packages: make(map[string]*models.PackageModel),
	}
}

// Load reads the library at path. A missing file yields an empty library.
func Load(path string) (*Library, error) {
	lib := New(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logrus.Debugf("No library at %s, starting empty", path)
			return lib, nil
		}
		return nil, fmt.Errorf("failed to read library: %w", err)
	}

	raw, err := utils.ZstdDecompress(data)
	if err != nil {
		return nil, models.NewError(models.ErrIntegrity, "", fmt.Errorf("failed to decompress library %s: %w", path, err))
	}

	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&lib.packages); err != nil {
		return nil, models.NewError(models.ErrIntegrity, "", fmt.Errorf("failed to decode library %s: %w", path, err))
	}

	for key, m := range lib.packages {
		if m.Slots == nil {
			m.Slots = make(map[int]*models.SlotManifest)
		}
		if m.CacheData == nil {
			m.CacheData = make(map[string]*models.CacheManifest)
		}
		m.Key = key
	}

	logrus.Debugf("Loaded library with %d packages from %s", len(lib.packages), path)
	return lib, nil
}

// Path returns the file backing the library
func (l *Library) Path() string {
	return l.path
}

// Save writes the library atomically
func (l *Library) Save() error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(l.packages); err != nil {
		return fmt.Errorf("failed to encode library: %w", err)
	}

	data, err := utils.ZstdCompress(buf.Bytes())
	if err != nil {
		return fmt.Errorf("failed to compress library: %w", err)
	}

	if err := utils.WriteFileAtomic(l.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write library: %w", err)
	}
	return nil
}

// Get returns the model for key
func (l *Library) Get(key string) (*models.PackageModel, bool) {
	m, ok := l.packages[strings.ToLower(key)]
	return m, ok
}

// GetOrAdd returns the model for key, creating an empty one if needed
func (l *Library) GetOrAdd(key string) *models.PackageModel {
	key = strings.ToLower(key)
	m, ok := l.packages[key]
	if !ok {
		m = models.NewPackageModel(key)
		l.packages[key] = m
	}
	return m
}

// Keys returns all package keys in sorted order
func (l *Library) Keys() []string {
	keys := make([]string, 0, len(l.packages))
	for k := range l.packages {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of tracked packages
func (l *Library) Len() int {
	return len(l.packages)
}

// Prune drops the model for key if it holds no slots and no cache data.
// It returns true when the model was removed.
func (l *Library) Prune(key string) bool {
	key = strings.ToLower(key)
	m, ok := l.packages[key]
	if !ok || !m.IsEmpty() {
		return false
	}
	delete(l.packages, key)
	return true
}
