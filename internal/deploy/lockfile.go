package deploy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ralt/ghpm/internal/models"
	"github.com/ralt/ghpm/internal/utils"
)

// DefaultLockFileName is the sidecar written into every install directory
const DefaultLockFileName = "ghpm.lock"

// ReadLock reads the lock file in dir. It returns (nil, nil) when the
// file does not exist.
func ReadLock(dir, name string) (*models.PackageLock, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read lock file: %w", err)
	}

	var lock models.PackageLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse lock file %s: %w", filepath.Join(dir, name), err)
	}
	return &lock, nil
}

// WriteLock writes lock into dir
func WriteLock(dir, name string, lock *models.PackageLock) error {
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode lock file: %w", err)
	}
	data = append(data, '\n')

	if err := utils.WriteFileAtomic(filepath.Join(dir, name), data, 0644); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

// AddToLock records id at version in the lock file of dir
func AddToLock(dir, name, id, version string) error {
	lock, err := ReadLock(dir, name)
	if err != nil {
		return err
	}
	if lock == nil {
		lock = &models.PackageLock{Version: models.LockSchemaVersion}
	}

	if !lock.Add(id, version) {
		return nil
	}
	return WriteLock(dir, name, lock)
}

// RemoveFromLock drops id from the lock file of dir, deleting the file
// once it lists nothing
func RemoveFromLock(dir, name, id string) error {
	lock, err := ReadLock(dir, name)
	if err != nil || lock == nil {
		return err
	}

	lock.Remove(id)
	if lock.IsEmpty() {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete lock file: %w", err)
		}
		return nil
	}
	return WriteLock(dir, name, lock)
}
