package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ralt/ghpm/internal/library"
	"github.com/ralt/ghpm/internal/models"
	"github.com/ralt/ghpm/internal/signer"
	"github.com/ralt/ghpm/internal/utils"
)

// Downloader fetches a URL into memory
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// ContentCache stores downloaded release assets under
// root/<package id>/<version>/<asset name>, verified by SHA-512 and size
type ContentCache struct {
	root       string
	library    *library.Library
	downloader Downloader
}

// New creates a ContentCache rooted at root
func New(root string, lib *library.Library, downloader Downloader) *ContentCache {
	return &ContentCache{
		root:       root,
		library:    lib,
		downloader: downloader,
	}
}

// Dir returns the cache directory of a package version
func (c *ContentCache) Dir(pkg models.Package, version string) string {
	return filepath.Join(c.root, filepath.FromSlash(pkg.Id()), sanitizeVersion(version))
}

// CachedFile returns the cache path of an asset
func (c *ContentCache) CachedFile(pkg models.Package, version, assetName string) string {
	return filepath.Join(c.Dir(pkg, version), filepath.Base(assetName))
}

// Manifest returns the cache manifest recorded for a package version
func (c *ContentCache) Manifest(pkg models.Package, version string) *models.CacheManifest {
	model, ok := c.library.Get(pkg.Id())
	if !ok {
		return nil
	}
	return model.Cache(version, false)
}

// EnsureCached makes sure the asset is present and intact in the cache,
// downloading it when the cached copy is missing or does not match its
// recorded digest and size
func (c *ContentCache) EnsureCached(ctx context.Context, pkg models.Package, asset models.ReleaseAsset, version string) error {
	name := filepath.Base(asset.Name)
	path := c.CachedFile(pkg, version, name)

	if c.isValid(pkg, version, name, path) {
		logrus.Debugf("Cache hit for %s %s (%s)", pkg.Id(), version, name)
		return nil
	}

	logrus.Infof("Downloading %s %s (%s)", pkg.Id(), version, name)
	data, err := c.downloader.Download(ctx, asset.BrowserDownloadURL)
	if err != nil {
		logrus.Errorf("Failed to download %s: %v", name, err)
		return models.NewError(models.ErrTransient, pkg.Id(), fmt.Errorf("failed to download %s: %w", name, err))
	}

	if pkg.SigningKey != "" {
		if err := c.verify(ctx, pkg, asset, data); err != nil {
			logrus.Errorf("Signature check failed for %s: %v", name, err)
			return models.NewError(models.ErrIntegrity, pkg.Id(), fmt.Errorf("%w: %s: %v", models.ErrSignature, name, err))
		}
	}

	sum := utils.ChecksumBytes(data)

	if err := utils.WriteFile(path, data, 0644); err != nil {
		logrus.Errorf("Failed to write cache file %s: %v", path, err)
		return models.NewError(models.ErrTransient, pkg.Id(), fmt.Errorf("failed to write cache file: %w", err))
	}

	// Only reference the file once it is fully written
	model := c.library.GetOrAdd(pkg.Id())
	model.Cache(version, true).Upsert(models.NewHashedFile(name, sum.SHA512, sum.Size))
	if err := c.library.Save(); err != nil {
		return models.NewError(models.ErrTransient, pkg.Id(), err)
	}

	logrus.Debugf("Cached %s (%d bytes, sha512 %s)", path, sum.Size, sum.SHA512[:16])
	return nil
}

func (c *ContentCache) isValid(pkg models.Package, version, name, path string) bool {
	manifest := c.Manifest(pkg, version)
	if manifest == nil {
		return false
	}
	entry, ok := manifest.Find(name)
	if !ok || !utils.PathExists(path) {
		return false
	}

	sum, err := utils.CalculateChecksum(path)
	if err != nil {
		logrus.Warnf("Failed to hash cached file %s: %v", path, err)
		return false
	}
	if !entry.Matches(sum.SHA512, sum.Size) {
		logrus.Warnf("Cached file %s does not match its manifest, downloading again", path)
		return false
	}
	return true
}

func (c *ContentCache) verify(ctx context.Context, pkg models.Package, asset models.ReleaseAsset, data []byte) error {
	if asset.SignatureURL == "" {
		return fmt.Errorf("no signature published for %s", asset.Name)
	}

	v, err := signer.NewGPGVerifier([]byte(pkg.SigningKey))
	if err != nil {
		return err
	}

	sig, err := c.downloader.Download(ctx, asset.SignatureURL)
	if err != nil {
		return fmt.Errorf("failed to download signature: %w", err)
	}
	return v.Verify(data, sig)
}

// sanitizeVersion keeps tags such as "release/1.0" inside one directory
func sanitizeVersion(version string) string {
	v := strings.NewReplacer("/", "_", "\\", "_").Replace(version)
	if v == "" || v == "." || v == ".." {
		return "_" + v
	}
	return v
}
