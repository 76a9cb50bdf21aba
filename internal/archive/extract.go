package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/sassoftware/go-rpmutils"
	"github.com/sirupsen/logrus"

	"github.com/ralt/ghpm/internal/utils"
)

// ErrUnsupportedFormat is returned for files Extract cannot open
var ErrUnsupportedFormat = errors.New("unsupported archive format")

// ErrPathEscape is returned for entries that would land outside the destination
var ErrPathEscape = errors.New("archive entry escapes destination")

// Extract unpacks archivePath into destDir and returns the absolute paths
// of the files and symlinks it created. With preserveRelativePaths unset
// every entry is flattened into destDir. With overwrite unset an existing
// file at an entry's target is an error.
func Extract(ctx context.Context, archivePath, destDir string, overwrite, preserveRelativePaths bool) ([]string, error) {
	format, err := DetectFormat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect archive format: %w", err)
	}
	if format == FormatUnknown {
		return nil, fmt.Errorf("%s: %w", archivePath, ErrUnsupportedFormat)
	}

	absDest, err := filepath.Abs(destDir)
	if err != nil {
		return nil, err
	}
	if err := utils.EnsureDir(absDest); err != nil {
		return nil, fmt.Errorf("failed to create destination: %w", err)
	}

	x := &extractor{
		ctx:       ctx,
		destDir:   absDest,
		overwrite: overwrite,
		preserve:  preserveRelativePaths,
	}

	logrus.Debugf("Extracting %s archive %s to %s", format, archivePath, absDest)

	switch format {
	case FormatZip:
		err = x.extractZip(archivePath)
	case FormatTar, FormatTarGz, FormatTarXz, FormatTarZst:
		err = x.extractCompressedTar(archivePath, format)
	case FormatDeb:
		err = x.extractDeb(archivePath)
	case FormatRpm:
		err = x.extractRpm(archivePath)
	}
	if err != nil {
		return x.files, fmt.Errorf("failed to extract %s: %w", filepath.Base(archivePath), err)
	}

	logrus.Debugf("Extracted %d entries from %s", len(x.files), archivePath)
	return x.files, nil
}

type extractor struct {
	ctx       context.Context
	destDir   string
	overwrite bool
	preserve  bool
	files     []string
}

// target maps an entry name to its path under destDir
func (x *extractor) target(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(name, "/")))
	if !x.preserve {
		clean = filepath.Base(clean)
	}
	if clean == "." || clean == string(filepath.Separator) {
		return "", fmt.Errorf("%q: %w", name, ErrPathEscape)
	}

	path := filepath.Join(x.destDir, clean)
	if path == x.destDir || !utils.IsWithin(x.destDir, path) {
		return "", fmt.Errorf("%q: %w", name, ErrPathEscape)
	}
	return path, nil
}

func (x *extractor) checkCancelled() error {
	select {
	case <-x.ctx.Done():
		return x.ctx.Err()
	default:
		return nil
	}
}

func (x *extractor) prepare(path string) error {
	if _, err := os.Lstat(path); err == nil {
		if !x.overwrite {
			return fmt.Errorf("%s already exists", path)
		}
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return os.MkdirAll(filepath.Dir(path), 0755)
}

func (x *extractor) mkdir(name string) error {
	if !x.preserve {
		return nil
	}
	path, err := x.target(name)
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0755)
}

func (x *extractor) writeFile(name string, mode os.FileMode, r io.Reader) error {
	path, err := x.target(name)
	if err != nil {
		return err
	}
	if err := x.prepare(path); err != nil {
		return err
	}

	perm := mode.Perm()
	if perm == 0 {
		perm = 0644
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	x.files = append(x.files, path)
	return nil
}

func (x *extractor) symlink(name, linkname string) error {
	path, err := x.target(name)
	if err != nil {
		return err
	}

	resolved := linkname
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(path), linkname)
	}
	if !utils.IsWithin(x.destDir, resolved) {
		logrus.Warnf("Skipping symlink %s -> %s pointing outside %s", name, linkname, x.destDir)
		return nil
	}

	if err := x.prepare(path); err != nil {
		return err
	}
	if err := os.Symlink(linkname, path); err != nil {
		return err
	}

	x.files = append(x.files, path)
	return nil
}

func (x *extractor) extractZip(archivePath string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if err := x.checkCancelled(); err != nil {
			return err
		}

		info := f.FileInfo()
		switch {
		case info.IsDir():
			if err := x.mkdir(f.Name); err != nil {
				return err
			}
		case info.Mode()&os.ModeSymlink != 0:
			link, err := readZipEntry(f)
			if err != nil {
				return err
			}
			if err := x.symlink(f.Name, string(link)); err != nil {
				return err
			}
		default:
			rc, err := f.Open()
			if err != nil {
				return err
			}
			err = x.writeFile(f.Name, info.Mode(), rc)
			rc.Close()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (x *extractor) extractCompressedTar(archivePath string, format Format) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	r, closer, err := decompressor(f, format)
	if err != nil {
		return err
	}
	defer closer()

	return x.extractTar(r)
}

func (x *extractor) extractTar(r io.Reader) error {
	tr := tar.NewReader(r)

	for {
		if err := x.checkCancelled(); err != nil {
			return err
		}

		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			err = x.mkdir(header.Name)
		case tar.TypeReg:
			err = x.writeFile(header.Name, os.FileMode(header.Mode), tr)
		case tar.TypeSymlink:
			err = x.symlink(header.Name, header.Linkname)
		case tar.TypeLink:
			err = x.hardlink(header.Name, header.Linkname)
		default:
			logrus.Debugf("Skipping tar entry %s of type %c", header.Name, header.Typeflag)
		}
		if err != nil {
			return err
		}
	}
}

// hardlink copies the previously extracted link source
func (x *extractor) hardlink(name, linkname string) error {
	src, err := x.target(linkname)
	if err != nil {
		return err
	}
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("hard link %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return x.writeFile(name, info.Mode(), f)
}

// extractDeb unpacks the data.tar member of a Debian ar archive
func (x *extractor) extractDeb(archivePath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	// Skip the global header ("!<arch>\n")
	global := make([]byte, 8)
	if _, err := io.ReadFull(f, global); err != nil {
		return err
	}

	for {
		// ar member header is 60 bytes
		arHeader := make([]byte, 60)
		if _, err := io.ReadFull(f, arHeader); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read ar header: %w", err)
		}

		// Name is space padded and may carry a trailing slash
		filename := strings.TrimRight(strings.TrimSpace(string(arHeader[0:16])), "/")
		size, err := strconv.ParseInt(strings.TrimSpace(string(arHeader[48:58])), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid ar member size for %s: %w", filename, err)
		}

		if strings.HasPrefix(filename, "data.tar") {
			format := FormatTar
			switch {
			case strings.HasSuffix(filename, ".gz"):
				format = FormatTarGz
			case strings.HasSuffix(filename, ".xz"):
				format = FormatTarXz
			case strings.HasSuffix(filename, ".zst"):
				format = FormatTarZst
			}

			r, closer, err := decompressor(io.LimitReader(f, size), format)
			if err != nil {
				return err
			}
			defer closer()
			return x.extractTar(r)
		}

		// Members are aligned to 2 bytes
		skip := size + size%2
		if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
			return err
		}
	}

	return fmt.Errorf("data.tar not found in package")
}

// extractRpm expands the cpio payload into a staging directory inside
// destDir and moves each file into place
func (x *extractor) extractRpm(archivePath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	rpm, err := rpmutils.ReadRpm(f)
	if err != nil {
		return fmt.Errorf("failed to read rpm: %w", err)
	}

	staging, err := os.MkdirTemp(x.destDir, ".ghpm-rpm-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	if err := rpm.ExpandPayload(staging); err != nil {
		return fmt.Errorf("failed to expand rpm payload: %w", err)
	}

	return filepath.Walk(staging, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := x.checkCancelled(); err != nil {
			return err
		}

		rel, err := filepath.Rel(staging, path)
		if err != nil || rel == "." {
			return err
		}

		switch {
		case info.IsDir():
			return x.mkdir(rel)
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return x.symlink(rel, link)
		case info.Mode().IsRegular():
			return x.move(rel, path)
		default:
			logrus.Debugf("Skipping rpm entry %s with mode %s", rel, info.Mode())
			return nil
		}
	})
}

func (x *extractor) move(name, src string) error {
	path, err := x.target(name)
	if err != nil {
		return err
	}
	if err := x.prepare(path); err != nil {
		return err
	}
	if err := os.Rename(src, path); err != nil {
		return err
	}

	x.files = append(x.files, path)
	return nil
}
