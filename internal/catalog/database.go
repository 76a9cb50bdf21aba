package catalog

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ralt/ghpm/internal/models"
	"github.com/ralt/ghpm/internal/utils"
)

// LoadDatabase reads the binary package database. A missing database
// yields an empty list.
func LoadDatabase(path string) ([]models.Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logrus.Warnf("No package database at %s, run `ghpm catalog sync` or `ghpm catalog rebuild`", path)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read package database: %w", err)
	}

	raw, err := utils.ZstdDecompress(data)
	if err != nil {
		return nil, models.NewError(models.ErrIntegrity, "", fmt.Errorf("failed to decompress package database: %w", err))
	}

	var records []record
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&records); err != nil {
		return nil, models.NewError(models.ErrIntegrity, "", fmt.Errorf("failed to decode package database: %w", err))
	}

	packages := make([]models.Package, 0, len(records))
	for _, r := range records {
		packages = append(packages, r.toPackage())
	}
	return packages, nil
}

// SaveDatabase writes packages to the binary package database
func SaveDatabase(path string, packages []models.Package) error {
	records := make([]record, 0, len(packages))
	for _, pkg := range packages {
		records = append(records, newRecord(pkg))
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(records); err != nil {
		return fmt.Errorf("failed to encode package database: %w", err)
	}

	data, err := utils.ZstdCompress(buf.Bytes())
	if err != nil {
		return fmt.Errorf("failed to compress package database: %w", err)
	}
	return utils.WriteFileAtomic(path, data, 0644)
}

// Rebuild parses the definitions under dir and writes the package
// database to dbPath. Duplicate ids keep the first definition.
func Rebuild(ctx context.Context, dir, dbPath string) ([]models.Package, error) {
	packages, err := LoadDefinitions(ctx, dir)
	if err != nil {
		return nil, err
	}

	kept, dropped := utils.Deduplicate(packages)
	for _, pkg := range dropped {
		logrus.Warnf("Duplicate package id %s (%s), keeping the first definition", pkg.Id(), pkg.Url)
	}

	if err := SaveDatabase(dbPath, kept); err != nil {
		return nil, err
	}

	logrus.Infof("Wrote %d packages to %s", len(kept), dbPath)
	return kept, nil
}

// record is the stored form of a Package. gob drops zero values, so an
// asset index of 0 needs an explicit presence flag.
type record struct {
	Package       models.Package
	AssetIndex    int
	HasAssetIndex bool
}

func newRecord(pkg models.Package) record {
	r := record{Package: pkg}
	if pkg.AssetIndex != nil {
		r.AssetIndex = *pkg.AssetIndex
		r.HasAssetIndex = true
	}
	r.Package.AssetIndex = nil
	return r
}

func (r record) toPackage() models.Package {
	pkg := r.Package
	pkg.AssetIndex = nil
	if r.HasAssetIndex {
		idx := r.AssetIndex
		pkg.AssetIndex = &idx
	}
	return pkg
}
