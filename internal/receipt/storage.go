package receipt

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage archives the original image of each receipt, one PNG per receipt
// ID. The persisted header references the archived copy by the returned ref.
type Storage interface {
	// Archive stores a receipt's original image and returns its ref
	Archive(receiptID string, png []byte) (string, error)

	// Get retrieves an archived image by ref
	Get(ref string) ([]byte, error)

	// Delete removes an archived image by ref
	Delete(ref string) error
}

// LocalStorage implements the Storage interface using the local filesystem,
// keeping the archive directory alongside the database.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Archive writes the receipt's image as <receiptID>.png in the archive
// directory. Extraction always hands over PNG, so the extension is fixed.
func (l *LocalStorage) Archive(receiptID string, png []byte) (string, error) {
	ref := receiptID + ".png"
	if err := os.WriteFile(filepath.Join(l.basePath, ref), png, 0644); err != nil {
		return "", fmt.Errorf("archiving image: %w", err)
	}
	return ref, nil
}

// Get retrieves an archived image from local storage.
func (l *LocalStorage) Get(ref string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.basePath, ref))
	if err != nil {
		return nil, fmt.Errorf("reading archived image: %w", err)
	}
	return data, nil
}

// Delete removes an archived image from local storage.
func (l *LocalStorage) Delete(ref string) error {
	if err := os.Remove(filepath.Join(l.basePath, ref)); err != nil {
		return fmt.Errorf("deleting archived image: %w", err)
	}
	return nil
}

var _ Storage = (*LocalStorage)(nil)
