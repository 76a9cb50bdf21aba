package utils

import (
	"bytes"
	"crypto/sha512"
	"encoding/hex"
	"io"
	"os"
)

// Checksum is the SHA-512 digest and byte size of some content
type Checksum struct {
	SHA512 string
	Size   int64
}

// CalculateChecksum hashes a file in a single pass
func CalculateChecksum(path string) (*Checksum, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return HashReader(f)
}

// ChecksumBytes hashes an in-memory payload
func ChecksumBytes(data []byte) *Checksum {
	sum, _ := HashReader(bytes.NewReader(data))
	return sum
}

// HashReader streams r through SHA-512, counting bytes as it goes
func HashReader(r io.Reader) (*Checksum, error) {
	h := sha512.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return nil, err
	}

	return &Checksum{
		SHA512: hex.EncodeToString(h.Sum(nil)),
		Size:   n,
	}, nil
}
