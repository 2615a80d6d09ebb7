// internal/security/permissions.go
// Permission checks for the directory holding anonymized-name mappings.
// The mappings reverse the anonymization, so they are as sensitive as the
// names themselves.
package security

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// ErrUnsafePermissions is wrapped by every check that finds a directory or
// file open to other users.
var ErrUnsafePermissions = errors.New("unsafe permissions")

// EnsureSecretsDir creates dir with mode 0700 if it is missing and then
// validates its permissions.
func EnsureSecretsDir(dir string) error {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating secrets directory: %w", err)
		}
	}
	return ValidateDirectoryPermissions(dir)
}

// ValidateDirectoryPermissions checks that a directory is not writable by
// group or others.
func ValidateDirectoryPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("checking directory permissions: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}

	mode := info.Mode().Perm()
	if mode&0022 != 0 {
		return fmt.Errorf("%w: directory %s is writable by group or others (mode %04o), expected 0700 or 0750", ErrUnsafePermissions, path, mode)
	}
	return nil
}

// ValidateSecretFile checks that an existing mappings file is readable only
// by its owner. A missing file is fine: it will be created with mode 0600.
func ValidateSecretFile(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking file permissions: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("%w: file %s is accessible by group or others (mode %04o), expected 0600", ErrUnsafePermissions, path, mode)
	}
	return nil
}
