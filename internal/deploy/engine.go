package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/ralt/ghpm/internal/archive"
	"github.com/ralt/ghpm/internal/library"
	"github.com/ralt/ghpm/internal/models"
	"github.com/ralt/ghpm/internal/selector"
	"github.com/ralt/ghpm/internal/utils"
)

// CacheReader exposes the cached assets of a package version
type CacheReader interface {
	Dir(pkg models.Package, version string) string
	Manifest(pkg models.Package, version string) *models.CacheManifest
}

// Engine deploys cached assets into slots and removes them again.
// It is the only writer of slot files and lock files.
type Engine struct {
	library  *library.Library
	cache    CacheReader
	resolver *selector.InstallPathResolver
	lockName string
}

// NewEngine creates a deployment engine
func NewEngine(lib *library.Library, cache CacheReader, resolver *selector.InstallPathResolver, lockName string) *Engine {
	if resolver == nil {
		resolver = selector.DefaultInstallPathResolver()
	}
	if lockName == "" {
		lockName = DefaultLockFileName
	}
	return &Engine{
		library:  lib,
		cache:    cache,
		resolver: resolver,
		lockName: lockName,
	}
}

// LockFileName returns the name of the lock sidecar
func (e *Engine) LockFileName() string {
	return e.lockName
}

// InstallFromCache deploys the cached asset of pkg at version into slot.
// Only assetName is deployed, other files cached for the same version are
// left alone. The slot's FullPath is used as the base directory, or the
// working directory when it is unset.
func (e *Engine) InstallFromCache(ctx context.Context, pkg models.Package, version, assetName string, slotIdx int) error {
	id := pkg.Id()

	cacheDir := e.cache.Dir(pkg, version)
	manifest := e.cache.Manifest(pkg, version)
	if !utils.PathExists(cacheDir) || manifest == nil || len(manifest.Files) == 0 {
		return models.NewError(models.ErrIntegrity, id,
			fmt.Errorf("%w: %s %s was never cached", models.ErrCacheMissing, id, version))
	}
	cached, ok := manifest.Find(filepath.Base(assetName))
	if !ok {
		return models.NewError(models.ErrIntegrity, id,
			fmt.Errorf("%w: %s is not cached for %s %s", models.ErrCacheMissing, assetName, id, version))
	}

	model := e.library.GetOrAdd(id)
	slot, existed := model.Slots[slotIdx]
	if !existed {
		slot = &models.SlotManifest{}
		model.Slots[slotIdx] = slot
	}

	if (version != "" && slot.Version == version) || slot.IsInstalled() {
		logrus.Warnf("%s %s is already installed in slot %d", id, slot.Version, slotIdx)
		return models.NewError(models.ErrUserInput, id, models.ErrAlreadyInstalled)
	}

	files, err := e.deploy(ctx, pkg, slot, cacheDir, cached)
	if err != nil {
		e.rollback(model, slotIdx, existed, files)
		return err
	}

	slot.Version = version
	slot.Files = files
	if err := e.library.Save(); err != nil {
		e.rollback(model, slotIdx, existed, files)
		return models.NewError(models.ErrTransient, id, err)
	}

	// The lock lives in FullPath, the directory Restore reads, even when
	// InstallPath redirected the files elsewhere
	if err := AddToLock(slot.FullPath, e.lockName, id, version); err != nil {
		logrus.Warnf("Installed %s but could not update the lock file: %v", id, err)
	}

	logrus.Infof("Installed %s %s into %s", id, version, slot.FullPath)
	return nil
}

func (e *Engine) deploy(ctx context.Context, pkg models.Package, slot *models.SlotManifest, cacheDir string, cached models.HashedFile) ([]models.HashedFile, error) {
	id := pkg.Id()

	if slot.FullPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, models.NewError(models.ErrTransient, id, err)
		}
		slot.FullPath = cwd
	}
	dest := e.resolver.Resolve(pkg, slot.FullPath)

	if err := utils.EnsureDir(dest); err != nil {
		return nil, models.NewError(models.ErrTransient, id, fmt.Errorf("failed to create %s: %w", dest, err))
	}

	var installed []models.HashedFile
	src := filepath.Join(cacheDir, cached.Name)

	contentType := pkg.ContentType
	if contentType == models.ContentUnknown {
		contentType = models.ContentSingleFile
		if archive.IsSupportedArchive(src) {
			contentType = models.ContentArchive
		}
		logrus.Warnf("%s has no content type, guessed %s from %s. Here be dragons.", id, contentType, cached.Name)
	}

	switch contentType {
	case models.ContentArchive:
		if !archive.IsSupportedArchive(src) {
			return installed, models.NewError(models.ErrUserInput, id,
				fmt.Errorf("%s is not a supported archive", cached.Name))
		}
		paths, err := archive.Extract(ctx, src, dest, true, true)
		for _, p := range paths {
			installed = append(installed, models.HashedFile{Name: p})
		}
		if err != nil {
			return installed, models.NewError(models.ErrTransient, id, err)
		}
	default:
		target := filepath.Join(dest, cached.Name)
		if err := utils.CopyFile(src, target); err != nil {
			return installed, models.NewError(models.ErrTransient, id, fmt.Errorf("failed to copy %s: %w", cached.Name, err))
		}
		installed = append(installed, models.HashedFile{Name: target})

		// Release binaries ship without the executable bit
		if err := os.Chmod(target, 0755); err != nil {
			logrus.Debugf("Could not mark %s executable: %v", target, err)
		}
	}

	return installed, nil
}

// rollback drops a slot allocated by the failed call and removes the
// files it already deployed
func (e *Engine) rollback(model *models.PackageModel, slotIdx int, existed bool, files []models.HashedFile) {
	for _, f := range files {
		if err := os.Remove(f.Name); err != nil && !errors.Is(err, os.ErrNotExist) {
			logrus.Warnf("Failed to remove %s during rollback: %v", f.Name, err)
		}
	}
	if slot := model.Slots[slotIdx]; slot != nil {
		slot.Files = nil
	}
	if !existed {
		delete(model.Slots, slotIdx)
	}
	if err := e.library.Save(); err != nil {
		logrus.Errorf("Failed to save library after rollback: %v", err)
	}
}

// Uninstall deletes the files of a slot, updates the lock file and
// drops the slot. File deletion is best effort; failures are reported
// as a partial error after the slot record has been removed.
func (e *Engine) Uninstall(ctx context.Context, key string, slotIdx int) error {
	model, ok := e.library.Get(key)
	if !ok {
		logrus.Warnf("%s is not installed", key)
		return models.NewError(models.ErrUserInput, key, models.ErrNotInstalled)
	}
	slot, ok := model.Slots[slotIdx]
	if !ok {
		logrus.Warnf("Nothing installed for %s in slot %d", key, slotIdx)
		return models.NewError(models.ErrUserInput, key, models.ErrNotInstalled)
	}

	var errs []error
	for _, f := range slot.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.Remove(f.Name); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logrus.Warnf("%s is already gone, skipping", f.Name)
				continue
			}
			logrus.Errorf("Failed to delete %s: %v", f.Name, err)
			errs = append(errs, err)
		}
	}

	if slot.FullPath != "" {
		for _, f := range slot.Files {
			if utils.IsWithin(slot.FullPath, f.Name) {
				utils.RemoveEmptyParents(f.Name, slot.FullPath)
			}
		}

		if err := RemoveFromLock(slot.FullPath, e.lockName, model.Key); err != nil {
			logrus.Errorf("Failed to update lock file in %s: %v", slot.FullPath, err)
			errs = append(errs, err)
		}
	}

	delete(model.Slots, slotIdx)
	if err := e.library.Save(); err != nil {
		return models.NewError(models.ErrTransient, key, err)
	}

	if len(errs) > 0 {
		return models.NewError(models.ErrPartial, key, errors.Join(errs...))
	}

	logrus.Infof("Removed %s %s from %s", model.Key, slot.Version, slot.FullPath)
	return nil
}
