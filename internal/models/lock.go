package models

// LockSchemaVersion is the current PackageLock format version
const LockSchemaVersion = 1

// PackageMeta is one package/version pair in a lock file
type PackageMeta struct {
	Id      string `json:"id,omitempty"`
	Version string `json:"version,omitempty"`
}

// PackageLock records which packages are installed in a directory
type PackageLock struct {
	Version  int           `json:"version"`
	Packages []PackageMeta `json:"packages,omitempty"`
}

// Add appends an entry unless an identical one is present.
// It returns true when the lock changed.
func (l *PackageLock) Add(id, version string) bool {
	for _, p := range l.Packages {
		if p.Id == id && p.Version == version {
			return false
		}
	}
	l.Packages = append(l.Packages, PackageMeta{Id: id, Version: version})
	return true
}

// Remove drops every entry for id and reports whether anything was removed
func (l *PackageLock) Remove(id string) bool {
	kept := l.Packages[:0]
	for _, p := range l.Packages {
		if p.Id != id {
			kept = append(kept, p)
		}
	}
	removed := len(kept) != len(l.Packages)
	l.Packages = kept
	return removed
}

// IsEmpty reports whether the lock lists no packages
func (l *PackageLock) IsEmpty() bool {
	return len(l.Packages) == 0
}
