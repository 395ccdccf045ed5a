package scripts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GriffinCanCode/scriptgate/internal/domain/metadata"
)

func TestScope(t *testing.T) {
	tests := []struct {
		name  string
		meta  metadata.ScriptMetadata
		url   string
		match bool
	}{
		{"no patterns runs everywhere", metadata.ScriptMetadata{}, "https://x.com/", true},
		{"match", metadata.ScriptMetadata{Matches: []string{"https://a.com/*"}}, "https://a.com/p", true},
		{"no match", metadata.ScriptMetadata{Matches: []string{"https://a.com/*"}}, "https://b.com/p", false},
		{"include glob", metadata.ScriptMetadata{Includes: []string{"*b.com*"}}, "https://www.b.com/", true},
		{"include regex", metadata.ScriptMetadata{Includes: []string{`/^https:\/\/c\.com/`}}, "https://c.com/x", true},
		{"exclude wins", metadata.ScriptMetadata{Matches: []string{"https://a.com/*"}, Excludes: []string{"https://a.com/admin*"}}, "https://a.com/admin/x", false},
		{"exclude only", metadata.ScriptMetadata{Excludes: []string{"*://*/*.pdf"}}, "https://a.com/doc.pdf", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, NewScope(&tt.meta).Covers(tt.url))
		})
	}
}

func TestNewRegistration(t *testing.T) {
	s := &UserScript{
		ID: "scr_1",
		Metadata: metadata.ScriptMetadata{
			Matches:  []string{"https://a.com/*"},
			Includes: []string{"https://b.com/*", `/^https:\/\/c\.com/`},
			Excludes: []string{"https://a.com/admin/*", "*logout*", `/private/`},
			Requires: []string{"https://cdn.com/lib.js"},
			RunAt:    metadata.RunAtDocumentStart,
			NoFrames: true,
		},
	}

	reg := NewRegistration(s)
	assert.Equal(t, "scr_1", reg.ScriptID)
	assert.Equal(t, []string{"https://a.com/*"}, reg.Matches)
	assert.Equal(t, []string{"https://b.com/*"}, reg.IncludeGlobs)
	assert.Equal(t, []string{"https://a.com/admin/*"}, reg.ExcludeMatches)
	assert.Equal(t, []string{"*logout*"}, reg.ExcludeGlobs)
	assert.True(t, reg.NeedsPageCheck)
	assert.Equal(t, metadata.RunAtDocumentStart, reg.RunAt)
	assert.Equal(t, WorldUserScript, reg.World)
	assert.False(t, reg.AllFrames)
	assert.Equal(t, []string{"https://cdn.com/lib.js"}, reg.Requires)
}

func TestNewRegistrationDefaultsToAllURLs(t *testing.T) {
	reg := NewRegistration(&UserScript{ID: "a", Metadata: metadata.ScriptMetadata{RunAt: metadata.RunAtDocumentIdle}})
	assert.Equal(t, []string{"<all_urls>"}, reg.Matches)
	assert.False(t, reg.NeedsPageCheck)
	assert.True(t, reg.AllFrames)

	reg = NewRegistration(&UserScript{ID: "b", Metadata: metadata.ScriptMetadata{Includes: []string{"*a.com*"}}})
	assert.Equal(t, []string{"<all_urls>"}, reg.Matches)
	assert.True(t, reg.NeedsPageCheck)
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0", 0},
		{"1.0", "1.0.0", 0},
		{"1.10", "1.9", 1},
		{"2", "10", -1},
		{"1.0.1", "1.0", 1},
		{"1.2beta", "1.2", 0},
		{"1.3beta", "1.2", 1},
		{"", "0.0.0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareVersions(tt.a, tt.b))
		})
	}
}
