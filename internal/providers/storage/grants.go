package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-yaml"

	"github.com/GriffinCanCode/scriptgate/internal/domain/scripts"
)

// grantFileConfig holds configuration for the GrantFile.
type grantFileConfig struct {
	dirPerm  os.FileMode
	filePerm os.FileMode
}

// GrantFileOption configures a GrantFile.
type GrantFileOption func(*grantFileConfig)

// WithFilePermissions sets the mode of the grants file. Default 0o600.
func WithFilePermissions(perm os.FileMode) GrantFileOption {
	return func(c *grantFileConfig) {
		c.filePerm = perm
	}
}

// GrantFile persists user permissions as YAML.
type GrantFile struct {
	path   string
	config grantFileConfig
}

type grantDocument struct {
	Permissions []scripts.UserPermission `yaml:"permissions"`
}

// NewGrantFile creates a GrantFile at path.
func NewGrantFile(path string, opts ...GrantFileOption) *GrantFile {
	cfg := grantFileConfig{dirPerm: 0o755, filePerm: 0o600}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &GrantFile{path: path, config: cfg}
}

// Path returns the backing file.
func (f *GrantFile) Path() string {
	return f.path
}

// Load reads every permission. A missing file holds none.
func (f *GrantFile) Load() ([]scripts.UserPermission, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read grant file: %w", err)
	}

	var doc grantDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse grant file: %w", err)
	}
	return doc.Permissions, nil
}

// Save replaces the file content with perms.
func (f *GrantFile) Save(perms []scripts.UserPermission) error {
	sorted := append([]scripts.UserPermission(nil), perms...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ScriptID != sorted[j].ScriptID {
			return sorted[i].ScriptID < sorted[j].ScriptID
		}
		return sorted[i].Domain < sorted[j].Domain
	})

	data, err := yaml.Marshal(grantDocument{Permissions: sorted})
	if err != nil {
		return fmt.Errorf("failed to marshal grants: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), f.config.dirPerm); err != nil {
		return fmt.Errorf("failed to create grant file directory: %w", err)
	}

	// Write then rename so a crash never leaves a truncated file.
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, f.config.filePerm); err != nil {
		return fmt.Errorf("failed to write grant file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace grant file: %w", err)
	}
	return nil
}
