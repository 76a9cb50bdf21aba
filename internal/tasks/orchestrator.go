package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ralt/ghpm/internal/deploy"
	"github.com/ralt/ghpm/internal/github"
	"github.com/ralt/ghpm/internal/library"
	"github.com/ralt/ghpm/internal/models"
	"github.com/ralt/ghpm/internal/selector"
)

// PackageResolver turns user input into a catalog package
type PackageResolver interface {
	GetPackageFromName(name string) (models.Package, error)
}

// ReleaseSource lists the releases of a package, newest first
type ReleaseSource interface {
	GetReleasesForPackage(ctx context.Context, pkg models.Package) ([]models.Release, error)
}

// AssetCache makes release assets available locally
type AssetCache interface {
	EnsureCached(ctx context.Context, pkg models.Package, asset models.ReleaseAsset, version string) error
}

// Deployer installs cached assets into slots and removes them
type Deployer interface {
	InstallFromCache(ctx context.Context, pkg models.Package, version, assetName string, slot int) error
	Uninstall(ctx context.Context, key string, slot int) error
	LockFileName() string
}

// Options wires an Orchestrator
type Options struct {
	Catalog  PackageResolver
	Releases ReleaseSource
	Cache    AssetCache
	Deployer Deployer
	Library  *library.Library
	Selector *selector.AssetSelector

	// Root of global installs; each package gets <GlobalDir>/<id>
	GlobalDir string

	// Defaults to os.Getwd
	WorkDir func() (string, error)
}

// Orchestrator runs install, update, remove and restore against the
// library. Operations are serialised.
type Orchestrator struct {
	catalog   PackageResolver
	releases  ReleaseSource
	cache     AssetCache
	deployer  Deployer
	library   *library.Library
	selector  *selector.AssetSelector
	globalDir string
	workDir   func() (string, error)

	mu sync.Mutex
}

// New creates an Orchestrator
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		catalog:   opts.Catalog,
		releases:  opts.Releases,
		cache:     opts.Cache,
		deployer:  opts.Deployer,
		library:   opts.Library,
		selector:  opts.Selector,
		globalDir: opts.GlobalDir,
		workDir:   opts.WorkDir,
	}
	if o.selector == nil {
		o.selector = selector.DefaultAssetSelector()
	}
	if o.workDir == nil {
		o.workDir = os.Getwd
	}
	return o
}

// Installation describes one installed slot
type Installation struct {
	Id        string
	Slot      int
	Version   string
	FullPath  string
	IsDefault bool
}

// Install installs name at version (latest when empty) into the global
// directory, path, or the working directory, then its dependencies
func (o *Orchestrator) Install(ctx context.Context, name, version, path string, global bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.installByName(ctx, name, version, path, global)
}

func (o *Orchestrator) installByName(ctx context.Context, name, version, path string, global bool) error {
	if global && path != "" {
		logrus.Warn("--global and --path can not be combined")
		return models.NewError(models.ErrUserInput, name, models.ErrConflictingFlags)
	}

	pkg, err := o.catalog.GetPackageFromName(name)
	if err != nil {
		return err
	}

	return o.install(ctx, pkg, version, path, global, map[string]bool{})
}

func (o *Orchestrator) install(ctx context.Context, pkg models.Package, version, path string, global bool, visited map[string]bool) error {
	id := pkg.Id()
	visited[id] = true

	dir, err := o.installPath(id, path, global)
	if err != nil {
		return models.NewError(models.ErrUserInput, id, err)
	}

	model := o.library.GetOrAdd(id)

	idx, slot, found := model.SlotAt(dir)
	if found && slot.IsInstalled() {
		logrus.Warnf("%s %s is already installed in %s, use update instead", id, slot.Version, dir)
		return models.NewError(models.ErrUserInput, id, models.ErrAlreadyInstalled)
	}
	if !found {
		idx = model.NextFreeSlot()
	}

	model.Slots[idx] = &models.SlotManifest{FullPath: dir, IsDefault: global}
	logrus.Debugf("Allocated slot %d of %s at %s", idx, id, dir)

	release, asset, err := o.resolveAsset(ctx, pkg, version)
	if err == nil {
		err = o.cache.EnsureCached(ctx, pkg, asset, release.TagName)
	}
	if err == nil {
		err = o.deployer.InstallFromCache(ctx, pkg, release.TagName, asset.Name, idx)
	}
	if err != nil {
		o.releaseSlot(model, idx)
		logrus.Errorf("Failed to install %s: %v", id, err)
		return err
	}

	for _, dep := range pkg.Dependencies {
		o.installDependency(ctx, pkg, dep, dir, visited)
	}
	return nil
}

// installDependency installs dep next to its parent. Failures are logged
// and never fail the parent.
func (o *Orchestrator) installDependency(ctx context.Context, parent models.Package, dep models.Dependency, dir string, visited map[string]bool) {
	depId := strings.ToLower(dep.Id)
	if visited[depId] {
		logrus.Debugf("Skipping dependency %s of %s, already visited", depId, parent.Id())
		return
	}

	depPkg, err := o.catalog.GetPackageFromName(dep.Id)
	if err != nil {
		logrus.Warnf("Dependency %s of %s could not be resolved: %v", dep.Id, parent.Id(), err)
		return
	}
	if visited[depPkg.Id()] {
		return
	}

	logrus.Infof("Installing dependency %s of %s", depPkg.Id(), parent.Id())
	err = o.install(ctx, depPkg, dep.Version, dir, false, visited)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrAlreadyInstalled):
		logrus.Infof("Dependency %s is already present in %s", depPkg.Id(), dir)
	default:
		logrus.Warnf("Dependency %s of %s failed to install: %v", depPkg.Id(), parent.Id(), err)
	}
}

// releaseSlot undoes a slot allocation after a failed install
func (o *Orchestrator) releaseSlot(model *models.PackageModel, idx int) {
	delete(model.Slots, idx)
	o.library.Prune(model.Key)
	if err := o.library.Save(); err != nil {
		logrus.Errorf("Failed to save library: %v", err)
	}
}

// Update replaces the installation addressed by slot, path or global with
// the requested version, or the latest one
func (o *Orchestrator) Update(ctx context.Context, name string, global bool, path string, slot *int, version string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if (slot != nil && path != "") || (global && (path != "" || slot != nil)) {
		logrus.Warn("--slot, --path and --global are mutually exclusive")
		return models.NewError(models.ErrUserInput, name, models.ErrConflictingFlags)
	}

	pkg, err := o.catalog.GetPackageFromName(name)
	if err != nil {
		return err
	}
	id := pkg.Id()

	model, ok := o.library.Get(id)
	if !ok {
		logrus.Warnf("%s is not installed", id)
		return models.NewError(models.ErrUserInput, id, models.ErrNotInstalled)
	}

	idx, err := o.findSlot(model, slot, path, global)
	if err != nil {
		return err
	}
	current := model.Slots[idx]
	if !current.IsInstalled() {
		logrus.Warnf("Slot %d of %s holds no installation", idx, id)
		return models.NewError(models.ErrUserInput, id, models.ErrNotInstalled)
	}

	releases, err := o.releases.GetReleasesForPackage(ctx, pkg)
	if err != nil {
		return err
	}

	if version == "" && github.IsLatest(releases, current.Version) {
		logrus.Infof("%s %s is already the latest version", id, current.Version)
		return models.NewError(models.ErrUserInput, id, models.ErrUpToDate)
	}

	release, asset, err := o.pickAsset(pkg, releases, version)
	if err != nil {
		return err
	}
	if release.TagName == current.Version {
		logrus.Infof("%s is already at %s", id, current.Version)
		return models.NewError(models.ErrUserInput, id, models.ErrUpToDate)
	}

	// Fetch the new version before touching the old one
	if err := o.cache.EnsureCached(ctx, pkg, asset, release.TagName); err != nil {
		return err
	}

	fullPath, isDefault, oldVersion := current.FullPath, current.IsDefault, current.Version
	if err := o.deployer.Uninstall(ctx, id, idx); err != nil {
		logrus.Errorf("Failed to remove %s %s, not installing %s: %v", id, oldVersion, release.TagName, err)
		return err
	}

	model = o.library.GetOrAdd(id)
	model.Slots[idx] = &models.SlotManifest{FullPath: fullPath, IsDefault: isDefault}
	if err := o.deployer.InstallFromCache(ctx, pkg, release.TagName, asset.Name, idx); err != nil {
		o.releaseSlot(model, idx)
		logrus.Errorf("Removed %s %s but failed to install %s: %v", id, oldVersion, release.TagName, err)
		return err
	}

	logrus.Infof("Updated %s from %s to %s", id, oldVersion, release.TagName)
	return nil
}

// Remove uninstalls the installation addressed by slot, path, global or,
// when none is given, the working directory
func (o *Orchestrator) Remove(ctx context.Context, name string, global bool, path string, slot *int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	modes := 0
	for _, set := range []bool{global, path != "", slot != nil} {
		if set {
			modes++
		}
	}
	if modes > 1 {
		logrus.Warn("--slot, --path and --global are mutually exclusive")
		return models.NewError(models.ErrUserInput, name, models.ErrConflictingFlags)
	}

	key := strings.ToLower(strings.TrimSpace(name))
	if pkg, err := o.catalog.GetPackageFromName(name); err == nil {
		key = pkg.Id()
	} else if _, ok := o.library.Get(key); !ok {
		return err
	}

	model, ok := o.library.Get(key)
	if !ok {
		logrus.Warnf("%s is not installed", key)
		return models.NewError(models.ErrUserInput, key, models.ErrNotInstalled)
	}

	idx, err := o.findSlot(model, slot, path, global)
	if err != nil {
		return err
	}

	err = o.deployer.Uninstall(ctx, key, idx)
	if o.library.Prune(key) {
		if saveErr := o.library.Save(); saveErr != nil {
			logrus.Errorf("Failed to save library: %v", saveErr)
		}
	}
	return err
}

// Restore installs every package listed in the working directory's lock
// file. Entries that are already installed are skipped.
func (o *Orchestrator) Restore(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	cwd, err := o.workDir()
	if err != nil {
		return models.NewError(models.ErrTransient, "", err)
	}

	lock, err := deploy.ReadLock(cwd, o.deployer.LockFileName())
	if err != nil {
		return models.NewError(models.ErrUserInput, "", err)
	}
	if lock == nil || lock.IsEmpty() {
		logrus.Infof("No %s in %s, nothing to restore", o.deployer.LockFileName(), cwd)
		return nil
	}

	var errs []error
	for _, entry := range lock.Packages {
		err := o.installByName(ctx, entry.Id, entry.Version, cwd, false)
		switch {
		case err == nil:
			logrus.Infof("Restored %s %s", entry.Id, entry.Version)
		case errors.Is(err, models.ErrAlreadyInstalled):
			logrus.Infof("%s is already installed, skipping", entry.Id)
		default:
			errs = append(errs, fmt.Errorf("%s %s: %w", entry.Id, entry.Version, err))
		}
	}
	return errors.Join(errs...)
}

// List returns every installed slot, sorted by id and slot
func (o *Orchestrator) List() []Installation {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []Installation
	for _, key := range o.library.Keys() {
		model, _ := o.library.Get(key)
		for _, idx := range model.SlotIndexes() {
			slot := model.Slots[idx]
			if !slot.IsInstalled() {
				continue
			}
			out = append(out, Installation{
				Id:        key,
				Slot:      idx,
				Version:   slot.Version,
				FullPath:  slot.FullPath,
				IsDefault: slot.IsDefault,
			})
		}
	}
	return out
}

// installPath resolves the directory addressed by the install mode
func (o *Orchestrator) installPath(id, path string, global bool) (string, error) {
	switch {
	case global:
		return filepath.Join(o.globalDir, filepath.FromSlash(id)), nil
	case path != "":
		return filepath.Abs(path)
	default:
		return o.workDir()
	}
}

// findSlot maps an addressing mode to a slot index of model
func (o *Orchestrator) findSlot(model *models.PackageModel, slot *int, path string, global bool) (int, error) {
	if slot != nil {
		if _, ok := model.Slots[*slot]; !ok {
			logrus.Warnf("%s has no slot %d", model.Key, *slot)
			return 0, models.NewError(models.ErrUserInput, model.Key, models.ErrNotInstalled)
		}
		return *slot, nil
	}

	dir, err := o.installPath(model.Key, path, global)
	if err != nil {
		return 0, models.NewError(models.ErrUserInput, model.Key, err)
	}

	idx, _, ok := model.SlotAt(dir)
	if !ok {
		logrus.Warnf("%s is not installed in %s", model.Key, dir)
		return 0, models.NewError(models.ErrUserInput, model.Key, models.ErrNotInstalled)
	}
	return idx, nil
}

func (o *Orchestrator) resolveAsset(ctx context.Context, pkg models.Package, version string) (models.Release, models.ReleaseAsset, error) {
	releases, err := o.releases.GetReleasesForPackage(ctx, pkg)
	if err != nil {
		return models.Release{}, models.ReleaseAsset{}, err
	}
	return o.pickAsset(pkg, releases, version)
}

func (o *Orchestrator) pickAsset(pkg models.Package, releases []models.Release, version string) (models.Release, models.ReleaseAsset, error) {
	release, err := github.FindRelease(releases, version)
	if err != nil {
		if version == "" {
			logrus.Warnf("%s has no releases", pkg.Id())
		} else {
			logrus.Warnf("%s has no release %s", pkg.Id(), version)
		}
		return models.Release{}, models.ReleaseAsset{}, models.NewError(models.ErrUserInput, pkg.Id(), err)
	}

	asset, err := o.selector.Select(pkg, release.Assets)
	if err != nil {
		logrus.Warnf("No asset of %s %s matches: %v", pkg.Id(), release.TagName, err)
		return models.Release{}, models.ReleaseAsset{}, err
	}
	return release, asset, nil
}
