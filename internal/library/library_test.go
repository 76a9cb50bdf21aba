package library

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ralt/ghpm/internal/models"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "ghpm-library-")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	lib, err := Load(filepath.Join(tmpDir, "library.bin"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if lib.Len() != 0 {
		t.Errorf("Expected empty library, got %d packages", lib.Len())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "ghpm-library-")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "nested", "library.bin")
	lib := New(path)

	m := lib.GetOrAdd("Owner/Repo")
	m.Slots[0] = &models.SlotManifest{
		FullPath:  "/opt/repo",
		Version:   "v1.0.0",
		IsDefault: true,
		Files:     []models.HashedFile{{Name: "/opt/repo/tool"}},
	}
	m.Cache("v1.0.0", true).Upsert(models.NewHashedFile("tool", "abc", 3))

	if err := lib.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	got, ok := loaded.Get("owner/repo")
	if !ok {
		t.Fatalf("Package owner/repo missing after reload")
	}
	slot := got.Slots[0]
	if slot == nil || slot.Version != "v1.0.0" || !slot.IsDefault || slot.FullPath != "/opt/repo" {
		t.Errorf("Slot not preserved: %+v", slot)
	}
	if !slot.IsInstalled() {
		t.Errorf("Slot with files should be installed")
	}

	entry, ok := got.CacheData["v1.0.0"].Find("tool")
	if !ok || !entry.Matches("abc", 3) {
		t.Errorf("Cache manifest not preserved: %+v", entry)
	}
	if entry.Sha512 == nil || entry.Size == nil {
		t.Errorf("Expected hash and size to be set")
	}
	if slot.Files[0].Sha512 != nil {
		t.Errorf("Expected nil hash for deployed file entry")
	}
}

func TestPrune(t *testing.T) {
	lib := New(filepath.Join(os.TempDir(), "unused.bin"))

	m := lib.GetOrAdd("a/b")
	m.Slots[0] = &models.SlotManifest{FullPath: "/x"}

	if lib.Prune("a/b") {
		t.Errorf("Prune must keep a model with slots")
	}

	delete(m.Slots, 0)
	if !lib.Prune("a/b") {
		t.Errorf("Prune should drop an empty model")
	}
	if _, ok := lib.Get("a/b"); ok {
		t.Errorf("Model still present after prune")
	}
}

func TestKeysSorted(t *testing.T) {
	lib := New("unused")
	lib.GetOrAdd("zeta/z")
	lib.GetOrAdd("alpha/a")
	lib.GetOrAdd("Mid/M")

	keys := lib.Keys()
	want := []string{"alpha/a", "mid/m", "zeta/z"}
	if len(keys) != len(want) {
		t.Fatalf("Expected %d keys, got %d", len(want), len(keys))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Key %d: expected %s, got %s", i, want[i], keys[i])
		}
	}
}

func TestNextFreeSlot(t *testing.T) {
	m := models.NewPackageModel("a/b")
	m.Slots[0] = &models.SlotManifest{}
	m.Slots[2] = &models.SlotManifest{}

	if got := m.NextFreeSlot(); got != 1 {
		t.Errorf("Expected slot 1, got %d", got)
	}
}
