package scripts

import (
	"time"

	"github.com/GriffinCanCode/scriptgate/internal/domain/integrity"
	"github.com/GriffinCanCode/scriptgate/internal/domain/metadata"
)

// Dependency is a cached @require or @resource body.
type Dependency struct {
	URL         string    `json:"url" yaml:"url"`
	ContentType string    `json:"contentType,omitempty" yaml:"content_type,omitempty"`
	Size        int       `json:"size" yaml:"size"`
	Data        []byte    `json:"-" yaml:"data"` // zstd compressed
	FetchedAt   time.Time `json:"fetchedAt" yaml:"fetched_at"`
	ExpiresAt   time.Time `json:"expiresAt" yaml:"expires_at"`
}

// Expired reports whether d should be fetched again at now.
func (d Dependency) Expired(now time.Time) bool {
	return !d.ExpiresAt.IsZero() && !now.Before(d.ExpiresAt)
}

// DependencyCache maps dependency URL to its cached body.
type DependencyCache map[string]Dependency

// UserScript is the persisted unit.
type UserScript struct {
	ID              string                  `json:"id"`
	Enabled         bool                    `json:"enabled"`
	Code            string                  `json:"code"`
	Metadata        metadata.ScriptMetadata `json:"metadata"`
	Hash            string                  `json:"hash"`
	InstalledAt     time.Time               `json:"installedAt"`
	LastModified    time.Time               `json:"lastModified"`
	DependencyCache DependencyCache         `json:"dependencyCache,omitempty"`
}

// Clone returns a copy that shares no maps with s.
func (s *UserScript) Clone() *UserScript {
	c := *s
	if s.DependencyCache != nil {
		c.DependencyCache = make(DependencyCache, len(s.DependencyCache))
		for k, v := range s.DependencyCache {
			c.DependencyCache[k] = v
		}
	}
	return &c
}

// UserPermission is a user's decision about one host for one script.
type UserPermission struct {
	ScriptID  string    `json:"scriptId" yaml:"script_id"`
	Domain    string    `json:"domain" yaml:"domain"`
	Allow     bool      `json:"allow" yaml:"allow"`
	GrantedAt time.Time `json:"grantedAt" yaml:"granted_at"`
}

// SaveResult is returned by Install and Update.
type SaveResult struct {
	Script   *UserScript        `json:"script"`
	Warnings []metadata.Warning `json:"warnings,omitempty"`
	Report   integrity.Report   `json:"integrity"`
	Changed  bool               `json:"changed"`
}
