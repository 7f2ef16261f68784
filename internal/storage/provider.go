// Package storage reads Markdown sources from a directory tree.
package storage

import "github.com/starford/mdimport/internal/models"

// Provider is the interface for source file operations. Paths are relative
// to the provider root and use forward slashes.
type Provider interface {
	// Scan returns every .md file under dir as a RawDocument.
	Scan(dir string) ([]models.RawDocument, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Move renames oldPath to newPath, creating parent directories.
	Move(oldPath, newPath string) error
}
