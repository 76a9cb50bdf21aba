package models

import (
	"path/filepath"
	"sort"
)

// HashedFile is a file path with an optional SHA-512 digest and size.
// Sha512 and Size are nil when they were not computed.
type HashedFile struct {
	Name   string
	Sha512 *string
	Size   *int64
}

// NewHashedFile builds a HashedFile with digest and size set
func NewHashedFile(name, sha512 string, size int64) HashedFile {
	return HashedFile{Name: name, Sha512: &sha512, Size: &size}
}

// Matches reports whether the recorded digest and size equal the given ones
func (f HashedFile) Matches(sha512 string, size int64) bool {
	if f.Sha512 == nil {
		return false
	}
	// gob does not transmit zero values, so an empty file decodes with a nil Size
	var recorded int64
	if f.Size != nil {
		recorded = *f.Size
	}
	return *f.Sha512 == sha512 && recorded == size
}

// SlotManifest is one physical installation of a package
type SlotManifest struct {
	Files     []HashedFile
	FullPath  string
	Version   string
	IsDefault bool
}

// IsInstalled reports whether the slot holds deployed files.
// A slot without files is a failed or partial install.
func (s *SlotManifest) IsInstalled() bool {
	return s != nil && len(s.Files) > 0
}

// CacheManifest records the cached assets of one package version
type CacheManifest struct {
	Files []HashedFile
}

// Find returns the entry for name, if any
func (c *CacheManifest) Find(name string) (HashedFile, bool) {
	for _, f := range c.Files {
		if f.Name == name {
			return f, true
		}
	}
	return HashedFile{}, false
}

// Upsert replaces the entry with the same name or appends a new one
func (c *CacheManifest) Upsert(file HashedFile) {
	for i := range c.Files {
		if c.Files[i].Name == file.Name {
			c.Files[i] = file
			return
		}
	}
	c.Files = append(c.Files, file)
}

// PackageModel is the Library record of one tracked package
type PackageModel struct {
	Key       string
	Slots     map[int]*SlotManifest
	CacheData map[string]*CacheManifest
}

// NewPackageModel creates an empty model for key
func NewPackageModel(key string) *PackageModel {
	return &PackageModel{
		Key:       key,
		Slots:     make(map[int]*SlotManifest),
		CacheData: make(map[string]*CacheManifest),
	}
}

// NextFreeSlot returns the lowest slot index not present in Slots
func (m *PackageModel) NextFreeSlot() int {
	i := 0
	for {
		if _, ok := m.Slots[i]; !ok {
			return i
		}
		i++
	}
}

// SlotAt returns the slot whose FullPath equals dir
func (m *PackageModel) SlotAt(dir string) (int, *SlotManifest, bool) {
	want := filepath.Clean(dir)
	for _, idx := range m.SlotIndexes() {
		slot := m.Slots[idx]
		if slot.FullPath != "" && filepath.Clean(slot.FullPath) == want {
			return idx, slot, true
		}
	}
	return 0, nil, false
}

// SlotIndexes returns the slot indexes in ascending order
func (m *PackageModel) SlotIndexes() []int {
	indexes := make([]int, 0, len(m.Slots))
	for idx := range m.Slots {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	return indexes
}

// Cache returns the cache manifest for version, creating it when asked to
func (m *PackageModel) Cache(version string, create bool) *CacheManifest {
	if m.CacheData == nil {
		m.CacheData = make(map[string]*CacheManifest)
	}
	manifest, ok := m.CacheData[version]
	if !ok && create {
		manifest = &CacheManifest{}
		m.CacheData[version] = manifest
	}
	return manifest
}

// IsEmpty reports whether the model tracks neither slots nor cache data
func (m *PackageModel) IsEmpty() bool {
	return len(m.Slots) == 0 && len(m.CacheData) == 0
}
