package dictionary

import (
	"fmt"
	"path/filepath"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/morphdict/pkg/errors"
)

// ValidateName checks that name can be used as a file name directly inside
// a data directory.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("dictionary name %q: %w", name, apperrors.ErrInvalidInput)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("dictionary name %q is hidden: %w", name, apperrors.ErrInvalidInput)
	case strings.ContainsAny(name, `/\`) || filepath.Base(name) != name:
		return fmt.Errorf("dictionary name %q contains a path separator: %w", name, apperrors.ErrInvalidInput)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("dictionary name contains NUL: %w", apperrors.ErrInvalidInput)
	}
	return nil
}

// Resolve joins a validated name onto dir.
func Resolve(dir, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
