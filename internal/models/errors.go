package models

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType int

const (
	ErrUserInput ErrorType = iota
	ErrTransient
	ErrIntegrity
	ErrPartial
	ErrInvalidConfig
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrUserInput:
		return "UserInput"
	case ErrTransient:
		return "Transient"
	case ErrIntegrity:
		return "Integrity"
	case ErrPartial:
		return "Partial"
	case ErrInvalidConfig:
		return "InvalidConfig"
	default:
		return "Unknown"
	}
}

var (
	ErrAlreadyInstalled = errors.New("package is already installed at this location, use update instead")
	ErrNotInstalled     = errors.New("nothing installed in that slot")
	ErrUnknownPackage   = errors.New("unknown package")
	ErrAmbiguousPackage = errors.New("ambiguous package name")
	ErrVersionNotFound  = errors.New("version not found")
	ErrNoReleases       = errors.New("no releases found")
	ErrNoAsset          = errors.New("no matching release asset found")
	ErrUpToDate         = errors.New("already up to date")
	ErrConflictingFlags = errors.New("conflicting addressing options")
	ErrCacheMissing     = errors.New("cache entry missing")
	ErrSignature        = errors.New("signature verification failed")
)

// PackageError represents an error raised while operating on a package
type PackageError struct {
	Type    ErrorType
	Package string
	Err     error
}

// Error implements the error interface
func (e *PackageError) Error() string {
	if e.Package != "" {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Package, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Type, e.Err)
}

// Unwrap returns the wrapped error
func (e *PackageError) Unwrap() error {
	return e.Err
}

// NewError wraps err in a PackageError of the given type
func NewError(t ErrorType, pkg string, err error) error {
	return &PackageError{Type: t, Package: pkg, Err: err}
}

// IsType reports whether err carries a PackageError of type t
func IsType(err error, t ErrorType) bool {
	var pe *PackageError
	if errors.As(err, &pe) {
		return pe.Type == t
	}
	return false
}
