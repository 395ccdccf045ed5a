package metadata

// RunAt is the document lifecycle point a script is injected at.
type RunAt string

const (
	RunAtDocumentStart RunAt = "document_start"
	RunAtDocumentEnd   RunAt = "document_end"
	RunAtDocumentIdle  RunAt = "document_idle"
)

// Valid reports whether r is a known injection point.
func (r RunAt) Valid() bool {
	switch r {
	case RunAtDocumentStart, RunAtDocumentEnd, RunAtDocumentIdle:
		return true
	}
	return false
}

// DefaultVersion is used when a script declares no @version.
const DefaultVersion = "0.0.0"

// GrantNone is the explicit "no special capabilities" grant.
const GrantNone = "none"

// Resource is a named asset declared with @resource.
type Resource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ScriptMetadata is the parsed capability declaration of a script. It is
// treated as immutable once returned by the parser.
type ScriptMetadata struct {
	Name        string `json:"name"`
	Namespace   string `json:"namespace,omitempty"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`

	UpdateURL   string `json:"updateURL,omitempty"`
	DownloadURL string `json:"downloadURL,omitempty"`
	HomepageURL string `json:"homepageURL,omitempty"`
	Icon        string `json:"icon,omitempty"`

	Matches  []string `json:"matches"`
	Excludes []string `json:"excludes"`
	Includes []string `json:"includes"`

	Grants    []string   `json:"grants"`
	Connects  []string   `json:"connects"`
	Requires  []string   `json:"requires"`
	Resources []Resource `json:"resources"`

	RunAt    RunAt `json:"runAt"`
	NoFrames bool  `json:"noframes"`
}

// HasGrant reports whether name was declared with @grant.
func (m *ScriptMetadata) HasGrant(name string) bool {
	for _, g := range m.Grants {
		if g == name {
			return true
		}
	}
	return false
}

// MinimalGrants reports whether the script asked for no capabilities at all.
func (m *ScriptMetadata) MinimalGrants() bool {
	return len(m.Grants) == 0 || (len(m.Grants) == 1 && m.Grants[0] == GrantNone)
}

// Result is the outcome of a successful parse.
type Result struct {
	Metadata ScriptMetadata `json:"metadata"`
	Warnings []Warning      `json:"warnings,omitempty"`
}

func newMetadata() ScriptMetadata {
	return ScriptMetadata{
		Version:   DefaultVersion,
		Matches:   []string{},
		Excludes:  []string{},
		Includes:  []string{},
		Grants:    []string{},
		Connects:  []string{},
		Requires:  []string{},
		Resources: []Resource{},
		RunAt:     RunAtDocumentIdle,
	}
}
