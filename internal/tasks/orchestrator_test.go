package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ralt/ghpm/internal/cache"
	"github.com/ralt/ghpm/internal/catalog"
	"github.com/ralt/ghpm/internal/deploy"
	"github.com/ralt/ghpm/internal/library"
	"github.com/ralt/ghpm/internal/models"
)

type fakeReleases struct {
	releases map[string][]models.Release
}

func (f *fakeReleases) GetReleasesForPackage(_ context.Context, pkg models.Package) ([]models.Release, error) {
	r, ok := f.releases[pkg.Id()]
	if !ok {
		return nil, models.NewError(models.ErrTransient, pkg.Id(), fmt.Errorf("404"))
	}
	return r, nil
}

type fakeDownloader struct {
	calls int
}

func (d *fakeDownloader) Download(_ context.Context, url string) ([]byte, error) {
	d.calls++
	return []byte("payload from " + url), nil
}

type env struct {
	tmpDir    string
	cwd       string
	globalDir string
	lib       *library.Library
	releases  *fakeReleases
	packages  []models.Package
	orch      *Orchestrator
}

var (
	wolvenkit = models.Package{
		Url:              "https://github.com/WolvenKit/WolvenKit",
		Identifier:       "test1",
		AssetNamePattern: "WolvenKit-*.exe",
		ContentType:      models.ContentSingleFile,
	}
	parent = models.Package{
		Url:         "https://github.com/owner/parent",
		ContentType: models.ContentSingleFile,
		Dependencies: []models.Dependency{
			{Id: "owner/missing"},
			{Id: "owner/child", Version: "v1"},
		},
	}
	multi = models.Package{
		Url:              "https://github.com/owner/multi",
		AssetNamePattern: "a-*",
		ContentType:      models.ContentSingleFile,
	}
	child = models.Package{
		Url:          "https://github.com/owner/child",
		ContentType:  models.ContentSingleFile,
		Dependencies: []models.Dependency{{Id: "owner/parent"}},
	}
)

func release(tag string, names ...string) models.Release {
	r := models.Release{TagName: tag}
	for _, n := range names {
		r.Assets = append(r.Assets, models.ReleaseAsset{Name: n, BrowserDownloadURL: "https://dl/" + tag + "/" + n})
	}
	return r
}

func newEnv(t *testing.T) *env {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "ghpm-tasks-")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	e := &env{
		tmpDir:    tmpDir,
		cwd:       filepath.Join(tmpDir, "project"),
		globalDir: filepath.Join(tmpDir, "global"),
		releases: &fakeReleases{releases: map[string][]models.Release{
			wolvenkit.Id(): {
				release("8.4.2", "WolvenKit-8.4.2.zip.sha256", "WolvenKit-8.4.2.exe"),
				release("8.4.1", "WolvenKit-8.4.1.exe"),
			},
			parent.Id(): {release("v2", "parent")},
			child.Id():  {release("v2", "child"), release("v1", "child")},
			multi.Id():  {release("v1", "a-linux", "b-linux")},
		}},
		packages: []models.Package{wolvenkit, parent, child},
	}
	os.MkdirAll(e.cwd, 0755)
	e.lib = library.New(filepath.Join(tmpDir, "library.bin"))
	e.orch = e.newOrchestrator(e.lib, nil)
	return e
}

// newOrchestrator wires lib to a real cache and, unless one is given, a
// real deployment engine
func (e *env) newOrchestrator(lib *library.Library, deployer Deployer) *Orchestrator {
	c := cache.New(filepath.Join(e.tmpDir, "cache"), lib, &fakeDownloader{})
	if deployer == nil {
		deployer = deploy.NewEngine(lib, c, nil, "")
	}
	return New(Options{
		Catalog:   catalog.New(e.packages),
		Releases:  e.releases,
		Cache:     c,
		Deployer:  deployer,
		Library:   lib,
		GlobalDir: e.globalDir,
		WorkDir:   func() (string, error) { return e.cwd, nil },
	})
}

func intPtr(i int) *int { return &i }

func TestInstallGlobalTwice(t *testing.T) {
	e := newEnv(t)
	defer os.RemoveAll(e.tmpDir)
	ctx := context.Background()

	if err := e.orch.Install(ctx, "wolvenkit/wolvenkit/test1", "", "", true); err != nil {
		t.Fatalf("First install failed: %v", err)
	}

	model, ok := e.lib.Get("wolvenkit/wolvenkit/test1")
	if !ok {
		t.Fatalf("Package missing from library")
	}
	slot := model.Slots[0]
	wantDir := filepath.Join(e.globalDir, "wolvenkit", "wolvenkit", "test1")
	if slot == nil || slot.FullPath != wantDir || slot.Version != "8.4.2" || !slot.IsDefault {
		t.Fatalf("Unexpected slot 0: %+v", slot)
	}
	if _, err := os.Stat(filepath.Join(wantDir, "WolvenKit-8.4.2.exe")); err != nil {
		t.Errorf("Asset not deployed: %v", err)
	}

	before := *slot
	err := e.orch.Install(ctx, "wolvenkit/wolvenkit/test1", "", "", true)
	if !errors.Is(err, models.ErrAlreadyInstalled) {
		t.Fatalf("Expected ErrAlreadyInstalled, got %v", err)
	}

	if len(model.Slots) != 1 {
		t.Errorf("Expected 1 slot, got %d", len(model.Slots))
	}
	after := model.Slots[0]
	if after.Version != before.Version || after.FullPath != before.FullPath || len(after.Files) != len(before.Files) {
		t.Errorf("Library changed by rejected install: %+v", after)
	}
}

func TestInstallOtherVersionSamePathFails(t *testing.T) {
	e := newEnv(t)
	defer os.RemoveAll(e.tmpDir)
	ctx := context.Background()
	dir := filepath.Join(e.tmpDir, "custom")

	if err := e.orch.Install(ctx, "wolvenkit/wolvenkit/test1", "8.4.1", dir, false); err != nil {
		t.Fatalf("Install 8.4.1 failed: %v", err)
	}

	err := e.orch.Install(ctx, "wolvenkit/wolvenkit/test1", "8.4.2", dir, false)
	if !errors.Is(err, models.ErrAlreadyInstalled) {
		t.Fatalf("Expected ErrAlreadyInstalled, got %v", err)
	}

	model, _ := e.lib.Get(wolvenkit.Id())
	if len(model.Slots) != 1 || model.Slots[0].Version != "8.4.1" {
		t.Errorf("Expected single slot at 8.4.1, got %+v", model.Slots)
	}
}

func TestInstallNewPathGetsNextSlot(t *testing.T) {
	e := newEnv(t)
	defer os.RemoveAll(e.tmpDir)
	ctx := context.Background()

	if err := e.orch.Install(ctx, "wolvenkit/wolvenkit/test1", "", "", true); err != nil {
		t.Fatalf("Global install failed: %v", err)
	}
	if err := e.orch.Install(ctx, "wolvenkit/wolvenkit/test1", "8.4.1", filepath.Join(e.tmpDir, "custom"), false); err != nil {
		t.Fatalf("Custom install failed: %v", err)
	}

	model, _ := e.lib.Get(wolvenkit.Id())
	if model.Slots[1] == nil || model.Slots[1].Version != "8.4.1" || model.Slots[1].IsDefault {
		t.Errorf("Unexpected slot 1: %+v", model.Slots[1])
	}
}

func TestInstallRollsBackOnMissingVersion(t *testing.T) {
	e := newEnv(t)
	defer os.RemoveAll(e.tmpDir)
	ctx := context.Background()

	err := e.orch.Install(ctx, "wolvenkit/wolvenkit/test1", "9.9.9", "", true)
	if !errors.Is(err, models.ErrVersionNotFound) {
		t.Fatalf("Expected ErrVersionNotFound, got %v", err)
	}
	if _, ok := e.lib.Get(wolvenkit.Id()); ok {
		t.Errorf("Failed first install must not leave a library entry")
	}

	// With an existing installation only the new slot is dropped
	if err := e.orch.Install(ctx, "wolvenkit/wolvenkit/test1", "", "", true); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if err := e.orch.Install(ctx, "wolvenkit/wolvenkit/test1", "9.9.9", filepath.Join(e.tmpDir, "x"), false); err == nil {
		t.Fatalf("Expected failure for unknown version")
	}

	model, _ := e.lib.Get(wolvenkit.Id())
	if _, ok := model.Slots[1]; ok {
		t.Errorf("Slot 1 should have been rolled back")
	}
	if !model.Slots[0].IsInstalled() {
		t.Errorf("Slot 0 must be untouched")
	}
}

func TestInstallUnknownPackage(t *testing.T) {
	e := newEnv(t)
	defer os.RemoveAll(e.tmpDir)

	err := e.orch.Install(context.Background(), "nothing/here", "", "", false)
	if !errors.Is(err, models.ErrUnknownPackage) {
		t.Errorf("Expected ErrUnknownPackage, got %v", err)
	}
}

func TestMutuallyExclusiveAddressing(t *testing.T) {
	e := newEnv(t)
	defer os.RemoveAll(e.tmpDir)
	ctx := context.Background()

	if err := e.orch.Install(ctx, "wolvenkit/wolvenkit/test1", "", "", true); err != nil {
		t.Fatalf("Install failed: %v", err)
	}

	if err := e.orch.Install(ctx, "wolvenkit/wolvenkit/test1", "", "X", true); !errors.Is(err, models.ErrConflictingFlags) {
		t.Errorf("Install: expected ErrConflictingFlags, got %v", err)
	}
	if err := e.orch.Remove(ctx, "wolvenkit/wolvenkit/test1", true, "X", nil); !errors.Is(err, models.ErrConflictingFlags) {
		t.Errorf("Remove: expected ErrConflictingFlags, got %v", err)
	}
	if err := e.orch.Remove(ctx, "wolvenkit/wolvenkit/test1", false, "X", intPtr(0)); !errors.Is(err, models.ErrConflictingFlags) {
		t.Errorf("Remove: expected ErrConflictingFlags, got %v", err)
	}
	if err := e.orch.Update(ctx, "wolvenkit/wolvenkit/test1", true, "", intPtr(0), ""); !errors.Is(err, models.ErrConflictingFlags) {
		t.Errorf("Update: expected ErrConflictingFlags, got %v", err)
	}
	if err := e.orch.Update(ctx, "wolvenkit/wolvenkit/test1", false, "X", intPtr(0), ""); !errors.Is(err, models.ErrConflictingFlags) {
		t.Errorf("Update: expected ErrConflictingFlags, got %v", err)
	}

	// Nothing was removed
	model, _ := e.lib.Get(wolvenkit.Id())
	if !model.Slots[0].IsInstalled() {
		t.Errorf("Installation changed by rejected commands")
	}
}

func TestRemove(t *testing.T) {
	e := newEnv(t)
	defer os.RemoveAll(e.tmpDir)
	ctx := context.Background()

	if err := e.orch.Install(ctx, "wolvenkit/wolvenkit/test1", "", "", true); err != nil {
		t.Fatalf("Global install failed: %v", err)
	}
	if err := e.orch.Install(ctx, "wolvenkit/wolvenkit/test1", "8.4.1", "", false); err != nil {
		t.Fatalf("Local install failed: %v", err)
	}

	// No addressing mode removes the working directory's installation
	if err := e.orch.Remove(ctx, "wolvenkit/wolvenkit/test1", false, "", nil); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(e.cwd, "WolvenKit-8.4.1.exe")); !os.IsNotExist(err) {
		t.Errorf("Local file not removed")
	}

	// Removing again matches zero slots
	if err := e.orch.Remove(ctx, "wolvenkit/wolvenkit/test1", false, "", nil); !errors.Is(err, models.ErrNotInstalled) {
		t.Errorf("Expected ErrNotInstalled, got %v", err)
	}
	if err := e.orch.Remove(ctx, "wolvenkit/wolvenkit/test1", false, "", intPtr(7)); !errors.Is(err, models.ErrNotInstalled) {
		t.Errorf("Expected ErrNotInstalled for unknown slot, got %v", err)
	}

	if err := e.orch.Remove(ctx, "wolvenkit/wolvenkit/test1", true, "", nil); err != nil {
		t.Fatalf("Global remove failed: %v", err)
	}

	model, ok := e.lib.Get(wolvenkit.Id())
	if ok && len(model.Slots) != 0 {
		t.Errorf("Expected no slots left, got %+v", model.Slots)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	e := newEnv(t)
	defer os.RemoveAll(e.tmpDir)
	ctx := context.Background()

	if err := e.orch.Install(ctx, "wolvenkit/wolvenkit/test1", "8.4.1", "", false); err != nil {
		t.Fatalf("Install failed: %v", err)
	}

	lock, err := deploy.ReadLock(e.cwd, deploy.DefaultLockFileName)
	if err != nil || lock == nil {
		t.Fatalf("Lock file missing: %v", err)
	}
	want := models.PackageMeta{Id: "wolvenkit/wolvenkit/test1", Version: "8.4.1"}
	if len(lock.Packages) != 1 || lock.Packages[0] != want {
		t.Fatalf("Unexpected lock %+v", lock)
	}

	// A fresh machine only has the lock file
	fresh := library.New(filepath.Join(e.tmpDir, "fresh.bin"))
	orch := e.newOrchestrator(fresh, nil)

	if err := orch.Restore(ctx); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	model, ok := fresh.Get(want.Id)
	if !ok || model.Slots[0] == nil || model.Slots[0].Version != want.Version || model.Slots[0].FullPath != e.cwd {
		t.Fatalf("Restore did not reinstall %+v", want)
	}

	// Second restore finds everything installed
	if err := orch.Restore(ctx); err != nil {
		t.Errorf("Second restore should be a no-op, got %v", err)
	}
	if len(model.Slots) != 1 {
		t.Errorf("Second restore allocated extra slots: %+v", model.Slots)
	}

	lock, _ = deploy.ReadLock(e.cwd, deploy.DefaultLockFileName)
	if len(lock.Packages) != 1 || lock.Packages[0] != want {
		t.Errorf("Lock changed by restore: %+v", lock)
	}
}

func TestRestoreWithoutLockFile(t *testing.T) {
	e := newEnv(t)
	defer os.RemoveAll(e.tmpDir)

	if err := e.orch.Restore(context.Background()); err != nil {
		t.Errorf("Expected nothing to restore, got %v", err)
	}
}

func TestDependencyFailureIsSoft(t *testing.T) {
	e := newEnv(t)
	defer os.RemoveAll(e.tmpDir)
	ctx := context.Background()

	// parent depends on an unknown package and on child, child depends back on parent
	if err := e.orch.Install(ctx, "owner/parent", "", "", true); err != nil {
		t.Fatalf("Parent install must succeed despite a failing dependency: %v", err)
	}

	parentDir := filepath.Join(e.globalDir, "owner", "parent")

	childModel, ok := e.lib.Get(child.Id())
	if !ok || len(childModel.Slots) != 1 {
		t.Fatalf("Child dependency not installed")
	}
	slot := childModel.Slots[0]
	if slot.FullPath != parentDir || slot.IsDefault || slot.Version != "v1" {
		t.Errorf("Unexpected child slot %+v", slot)
	}

	parentModel, _ := e.lib.Get(parent.Id())
	if len(parentModel.Slots) != 1 {
		t.Errorf("Dependency cycle installed the parent twice: %+v", parentModel.Slots)
	}
}

func TestUpdate(t *testing.T) {
	e := newEnv(t)
	defer os.RemoveAll(e.tmpDir)
	ctx := context.Background()
	dir := filepath.Join(e.tmpDir, "custom")

	if err := e.orch.Install(ctx, "wolvenkit/wolvenkit/test1", "8.4.1", dir, false); err != nil {
		t.Fatalf("Install failed: %v", err)
	}

	if err := e.orch.Update(ctx, "wolvenkit/wolvenkit/test1", false, dir, nil, ""); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	model, _ := e.lib.Get(wolvenkit.Id())
	slot := model.Slots[0]
	if slot == nil || slot.Version != "8.4.2" || slot.FullPath != dir {
		t.Fatalf("Unexpected slot after update: %+v", slot)
	}
	if _, err := os.Stat(filepath.Join(dir, "WolvenKit-8.4.1.exe")); !os.IsNotExist(err) {
		t.Errorf("Old version still on disk")
	}
	if _, err := os.Stat(filepath.Join(dir, "WolvenKit-8.4.2.exe")); err != nil {
		t.Errorf("New version missing: %v", err)
	}

	lock, _ := deploy.ReadLock(dir, deploy.DefaultLockFileName)
	if lock == nil || len(lock.Packages) != 1 || lock.Packages[0].Version != "8.4.2" {
		t.Errorf("Lock not updated: %+v", lock)
	}

	err := e.orch.Update(ctx, "wolvenkit/wolvenkit/test1", false, "", intPtr(0), "")
	if !errors.Is(err, models.ErrUpToDate) {
		t.Errorf("Expected ErrUpToDate, got %v", err)
	}
}

func TestUpdateNotInstalled(t *testing.T) {
	e := newEnv(t)
	defer os.RemoveAll(e.tmpDir)

	err := e.orch.Update(context.Background(), "wolvenkit/wolvenkit/test1", true, "", nil, "")
	if !errors.Is(err, models.ErrNotInstalled) {
		t.Errorf("Expected ErrNotInstalled, got %v", err)
	}
}

func TestList(t *testing.T) {
	e := newEnv(t)
	defer os.RemoveAll(e.tmpDir)
	ctx := context.Background()

	e.orch.Install(ctx, "wolvenkit/wolvenkit/test1", "", "", true)
	e.orch.Install(ctx, "owner/child", "v1", "", false)

	// child pulls owner/parent into the working directory
	list := e.orch.List()
	if len(list) != 3 {
		t.Fatalf("Expected 3 installations, got %d", len(list))
	}
	if list[0].Id != "owner/child" || list[1].Id != "owner/parent" || list[2].Id != "wolvenkit/wolvenkit/test1" {
		t.Errorf("List not sorted by id: %+v", list)
	}
	if !list[2].IsDefault || list[1].IsDefault {
		t.Errorf("Global install should be marked default")
	}
}

// recordingDeployer fails every Uninstall and counts installs
type recordingDeployer struct {
	uninstallErr error
	installs     int
	uninstalls   int
}

func (d *recordingDeployer) InstallFromCache(_ context.Context, _ models.Package, _, _ string, _ int) error {
	d.installs++
	return nil
}

func (d *recordingDeployer) Uninstall(_ context.Context, _ string, _ int) error {
	d.uninstalls++
	return d.uninstallErr
}

func (d *recordingDeployer) LockFileName() string {
	return deploy.DefaultLockFileName
}

func TestUpdateAbortsWhenUninstallFails(t *testing.T) {
	e := newEnv(t)
	defer os.RemoveAll(e.tmpDir)
	ctx := context.Background()
	dir := filepath.Join(e.tmpDir, "custom")

	if err := e.orch.Install(ctx, "wolvenkit/wolvenkit/test1", "8.4.1", dir, false); err != nil {
		t.Fatalf("Install failed: %v", err)
	}

	deployer := &recordingDeployer{
		uninstallErr: models.NewError(models.ErrPartial, wolvenkit.Id(), fmt.Errorf("file busy")),
	}
	orch := e.newOrchestrator(e.lib, deployer)

	err := orch.Update(ctx, "wolvenkit/wolvenkit/test1", false, dir, nil, "")
	if !models.IsType(err, models.ErrPartial) {
		t.Fatalf("Expected the partial uninstall error, got %v", err)
	}
	if deployer.uninstalls != 1 {
		t.Errorf("Expected one uninstall attempt, got %d", deployer.uninstalls)
	}
	if deployer.installs != 0 {
		t.Errorf("New version must not be installed after a failed uninstall, got %d installs", deployer.installs)
	}

	model, _ := e.lib.Get(wolvenkit.Id())
	if slot := model.Slots[0]; slot == nil || slot.Version != "8.4.1" {
		t.Errorf("Slot changed by aborted update: %+v", slot)
	}
}

func TestUpdateToInstalledVersionIsUpToDate(t *testing.T) {
	e := newEnv(t)
	defer os.RemoveAll(e.tmpDir)
	ctx := context.Background()
	dir := filepath.Join(e.tmpDir, "custom")

	if err := e.orch.Install(ctx, "wolvenkit/wolvenkit/test1", "8.4.1", dir, false); err != nil {
		t.Fatalf("Install failed: %v", err)
	}

	err := e.orch.Update(ctx, "wolvenkit/wolvenkit/test1", false, dir, nil, "8.4.1")
	if !errors.Is(err, models.ErrUpToDate) {
		t.Errorf("Expected ErrUpToDate, got %v", err)
	}
}

func TestInstallDeploysOnlySelectedAsset(t *testing.T) {
	e := newEnv(t)
	defer os.RemoveAll(e.tmpDir)
	ctx := context.Background()
	e.packages = []models.Package{multi}
	d1 := filepath.Join(e.tmpDir, "d1")
	d2 := filepath.Join(e.tmpDir, "d2")

	orch := e.newOrchestrator(e.lib, nil)
	if err := orch.Install(ctx, "owner/multi", "", d1, false); err != nil {
		t.Fatalf("Install into d1 failed: %v", err)
	}

	// The catalog now selects the other asset of the same release
	changed := multi
	changed.AssetNamePattern = "b-*"
	e.packages = []models.Package{changed}
	orch = e.newOrchestrator(e.lib, nil)
	if err := orch.Install(ctx, "owner/multi", "", d2, false); err != nil {
		t.Fatalf("Install into d2 failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(d2, "a-linux")); !os.IsNotExist(err) {
		t.Errorf("a-linux was not selected but was deployed into d2")
	}
	if _, err := os.Stat(filepath.Join(d2, "b-linux")); err != nil {
		t.Errorf("b-linux missing from d2: %v", err)
	}

	model, _ := e.lib.Get(multi.Id())
	if idx, slot, ok := model.SlotAt(d2); !ok || len(slot.Files) != 1 {
		t.Errorf("Slot %d at d2 should hold one file: %+v", idx, slot)
	}
}
