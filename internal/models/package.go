package models

import (
	"fmt"
	"net/url"
	"strings"
)

// ContentType describes how a release asset is deployed
type ContentType int

const (
	ContentUnknown ContentType = iota
	ContentSingleFile
	ContentArchive
)

// String returns the string representation of ContentType
func (c ContentType) String() string {
	switch c {
	case ContentSingleFile:
		return "single_file"
	case ContentArchive:
		return "archive"
	default:
		return "unknown"
	}
}

// ParseContentType maps a catalog value to a ContentType
func ParseContentType(s string) (ContentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown":
		return ContentUnknown, nil
	case "single_file", "singlefile", "file":
		return ContentSingleFile, nil
	case "archive":
		return ContentArchive, nil
	default:
		return ContentUnknown, fmt.Errorf("unknown content type %q", s)
	}
}

// Dependency references another catalog package, optionally pinned
type Dependency struct {
	Id      string
	Version string
}

// Package represents a catalog entry backed by a GitHub repository
type Package struct {
	Url        string
	Identifier string

	// Asset selection
	AssetIndex       *int
	AssetNamePattern string

	ContentType  ContentType
	InstallPath  string
	Dependencies []Dependency
	Tags         []string
	Topics       []string

	// Armored OpenPGP public key used to check detached asset signatures
	SigningKey string
}

// Owner returns the repository owner taken from Url
func (p Package) Owner() string {
	owner, _ := p.repoSegments()
	return owner
}

// Name returns the repository name taken from Url
func (p Package) Name() string {
	_, name := p.repoSegments()
	return name
}

// Id returns owner/repo or owner/repo/identifier, lower-cased
func (p Package) Id() string {
	owner, name := p.repoSegments()
	id := owner + "/" + name
	if p.Identifier != "" {
		id += "/" + p.Identifier
	}
	return strings.ToLower(id)
}

// Validate checks that the package can be addressed
func (p Package) Validate() error {
	if p.Url == "" {
		return fmt.Errorf("url is required")
	}
	owner, name := p.repoSegments()
	if owner == "" || name == "" {
		return fmt.Errorf("url %q does not end in owner/name", p.Url)
	}
	if p.AssetIndex != nil && *p.AssetIndex < 0 {
		return fmt.Errorf("asset index must not be negative")
	}
	return nil
}

func (p Package) repoSegments() (string, string) {
	path := p.Url
	if u, err := url.Parse(p.Url); err == nil && u.Host != "" {
		path = u.Path
	}
	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")

	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return "", ""
	}
	return parts[len(parts)-2], parts[len(parts)-1]
}

// NormalizeURL strips scheme noise so repository URLs compare equal
func NormalizeURL(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	s = strings.TrimSuffix(strings.TrimRight(s, "/"), ".git")
	return s
}
