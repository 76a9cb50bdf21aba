package archive

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Format represents an archive container format
type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	FormatTar
	FormatTarGz
	FormatTarXz
	FormatTarZst
	FormatDeb
	FormatRpm
)

// String returns the string representation of Format
func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatTar:
		return "tar"
	case FormatTarGz:
		return "tar.gz"
	case FormatTarXz:
		return "tar.xz"
	case FormatTarZst:
		return "tar.zst"
	case FormatDeb:
		return "deb"
	case FormatRpm:
		return "rpm"
	default:
		return "unknown"
	}
}

// Magic bytes for archive detection
var (
	// Zip local file header, also the empty-archive end record
	zipMagic      = []byte{0x50, 0x4B, 0x03, 0x04}
	zipEmptyMagic = []byte{0x50, 0x4B, 0x05, 0x06}

	// Debian packages start with "!<arch>\ndebian"
	debMagic = []byte("!<arch>\ndebian")

	// RPM lead
	rpmMagic = []byte{0xED, 0xAB, 0xEE, 0xDB}

	gzipMagic = []byte{0x1F, 0x8B}
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	xzMagic   = []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}

	// POSIX tar magic at offset 257
	tarMagic = []byte("ustar")
)

const tarMagicOffset = 257

// DetectFormat determines the archive format based on magic bytes,
// using the file extension as a tiebreaker
func DetectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()

	// Read first 512 bytes for magic byte detection
	header := make([]byte, 512)
	n, err := io.ReadFull(f, header)
	if err != nil && n == 0 && err != io.EOF {
		return FormatUnknown, err
	}
	header = header[:n]

	name := strings.ToLower(filepath.Base(path))

	switch {
	case bytes.HasPrefix(header, zipMagic), bytes.HasPrefix(header, zipEmptyMagic):
		return FormatZip, nil
	case bytes.HasPrefix(header, debMagic):
		return FormatDeb, nil
	case bytes.HasPrefix(header, rpmMagic):
		return FormatRpm, nil
	case isTarHeader(header):
		return FormatTar, nil
	}

	// Compressed streams only count as archives when they wrap a tar
	if bytes.HasPrefix(header, gzipMagic) {
		if wrapsTar(path, FormatTarGz) || hasTarExt(name, ".gz", ".tgz") {
			return FormatTarGz, nil
		}
		return FormatUnknown, nil
	}
	if bytes.HasPrefix(header, xzMagic) {
		if wrapsTar(path, FormatTarXz) || hasTarExt(name, ".xz", ".txz") {
			return FormatTarXz, nil
		}
		return FormatUnknown, nil
	}
	if bytes.HasPrefix(header, zstdMagic) {
		if wrapsTar(path, FormatTarZst) || hasTarExt(name, ".zst", ".tzst") {
			return FormatTarZst, nil
		}
		return FormatUnknown, nil
	}

	// Old-style tar headers carry no magic
	if strings.HasSuffix(name, ".tar") && len(header) >= 512 {
		return FormatTar, nil
	}

	return FormatUnknown, nil
}

// IsSupportedArchive reports whether path is an archive Extract can open
func IsSupportedArchive(path string) bool {
	format, err := DetectFormat(path)
	return err == nil && format != FormatUnknown
}

func isTarHeader(header []byte) bool {
	if len(header) < tarMagicOffset+len(tarMagic) {
		return false
	}
	return bytes.Equal(header[tarMagicOffset:tarMagicOffset+len(tarMagic)], tarMagic)
}

func hasTarExt(name, compressedExt, shortExt string) bool {
	return strings.HasSuffix(name, ".tar"+compressedExt) || strings.HasSuffix(name, shortExt)
}

// wrapsTar decompresses the first block of path and looks for a tar header
func wrapsTar(path string, format Format) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	r, closer, err := decompressor(f, format)
	if err != nil {
		return false
	}
	defer closer()

	block := make([]byte, 512)
	n, _ := io.ReadFull(r, block)
	return isTarHeader(block[:n])
}

// decompressor wraps r with the stream decoder matching format
func decompressor(r io.Reader, format Format) (io.Reader, func(), error) {
	switch format {
	case FormatTarGz:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gr, func() { gr.Close() }, nil
	case FormatTarXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return xr, func() {}, nil
	case FormatTarZst:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	default:
		return r, func() {}, nil
	}
}
