package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ralt/ghpm/internal/models"
)

// definition is the on-disk YAML shape of a catalog entry
type definition struct {
	Url              string                 `yaml:"url"`
	Identifier       string                 `yaml:"identifier"`
	AssetIndex       *int                   `yaml:"asset_index"`
	AssetNamePattern string                 `yaml:"asset_name_pattern"`
	ContentType      string                 `yaml:"content_type"`
	InstallPath      string                 `yaml:"install_path"`
	Dependencies     []dependencyDefinition `yaml:"dependencies"`
	Tags             []string               `yaml:"tags"`
	Topics           []string               `yaml:"topics"`
	SigningKey       string                 `yaml:"signing_key"`
}

type dependencyDefinition struct {
	Id      string `yaml:"id"`
	Version string `yaml:"version"`
}

// ParseDefinition decodes a single YAML package definition
func ParseDefinition(data []byte) (models.Package, error) {
	var def definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return models.Package{}, fmt.Errorf("invalid yaml: %w", err)
	}

	contentType, err := models.ParseContentType(def.ContentType)
	if err != nil {
		return models.Package{}, err
	}

	pkg := models.Package{
		Url:              strings.TrimSpace(def.Url),
		Identifier:       strings.TrimSpace(def.Identifier),
		AssetIndex:       def.AssetIndex,
		AssetNamePattern: def.AssetNamePattern,
		ContentType:      contentType,
		InstallPath:      def.InstallPath,
		Tags:             def.Tags,
		Topics:           def.Topics,
		SigningKey:       def.SigningKey,
	}
	for _, d := range def.Dependencies {
		if d.Id == "" {
			return models.Package{}, fmt.Errorf("dependency without id")
		}
		pkg.Dependencies = append(pkg.Dependencies, models.Dependency{Id: d.Id, Version: d.Version})
	}

	if err := pkg.Validate(); err != nil {
		return models.Package{}, err
	}
	return pkg, nil
}

// LoadDefinitions recursively reads every .yaml/.yml file under dir.
// Invalid definitions are logged and skipped.
func LoadDefinitions(ctx context.Context, dir string) ([]models.Package, error) {
	var packages []models.Package

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Check context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			logrus.Warnf("Failed to read definition %s: %v", path, err)
			return nil
		}

		pkg, err := ParseDefinition(data)
		if err != nil {
			logrus.Warnf("Skipping invalid definition %s: %v", path, err)
			return nil
		}

		logrus.Debugf("Found package %s in %s", pkg.Id(), path)
		packages = append(packages, pkg)
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan catalog: %w", err)
	}

	logrus.Infof("Found %d package definitions in %s", len(packages), dir)
	return packages, nil
}
