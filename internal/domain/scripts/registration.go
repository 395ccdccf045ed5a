package scripts

import (
	"context"
	"strings"
	"sync"

	"github.com/GriffinCanCode/scriptgate/internal/domain/matcher"
	"github.com/GriffinCanCode/scriptgate/internal/domain/metadata"
)

// WorldUserScript is the isolated world scripts are registered into.
const WorldUserScript = "USER_SCRIPT"

// Registration is what the page-injection facility needs to schedule a
// script. The injected code itself is assembled elsewhere.
type Registration struct {
	ScriptID       string         `json:"id"`
	Matches        []string       `json:"matches"`
	ExcludeMatches []string       `json:"excludeMatches,omitempty"`
	IncludeGlobs   []string       `json:"includeGlobs,omitempty"`
	ExcludeGlobs   []string       `json:"excludeGlobs,omitempty"`
	RunAt          metadata.RunAt `json:"runAt"`
	World          string         `json:"world"`
	AllFrames      bool           `json:"allFrames"`
	// NeedsPageCheck is set when the injected code must test the page URL
	// itself because some patterns cannot be expressed as matches or globs.
	NeedsPageCheck bool     `json:"needsPageCheck"`
	Requires       []string `json:"requires,omitempty"`
}

// Registrar pushes registrations to the page-injection facility. Register
// replaces every previous registration.
type Registrar interface {
	Register(ctx context.Context, regs []Registration) error
}

func isRegexPattern(p string) bool {
	return len(p) >= 2 && strings.HasPrefix(p, "/") && strings.HasSuffix(p, "/")
}

// NewRegistration builds the registration of s.
func NewRegistration(s *UserScript) Registration {
	meta := &s.Metadata
	reg := Registration{
		ScriptID:  s.ID,
		RunAt:     meta.RunAt,
		World:     WorldUserScript,
		AllFrames: !meta.NoFrames,
		Requires:  append([]string(nil), meta.Requires...),
	}

	reg.Matches = append(reg.Matches, meta.Matches...)

	for _, inc := range meta.Includes {
		if isRegexPattern(inc) {
			reg.NeedsPageCheck = true
			continue
		}
		reg.IncludeGlobs = append(reg.IncludeGlobs, inc)
	}

	for _, exc := range meta.Excludes {
		switch {
		case isRegexPattern(exc):
			reg.NeedsPageCheck = true
		case matcher.Validate(exc) == nil:
			reg.ExcludeMatches = append(reg.ExcludeMatches, exc)
		default:
			reg.ExcludeGlobs = append(reg.ExcludeGlobs, exc)
		}
	}

	// The facility requires at least one match; includes and the page check
	// narrow it down.
	if len(reg.Matches) == 0 {
		reg.Matches = []string{"<all_urls>"}
		if len(meta.Includes) > 0 {
			reg.NeedsPageCheck = true
		}
	}

	return reg
}

// MemoryRegistrar keeps the last registered set. It stands in for a real
// page-injection facility.
type MemoryRegistrar struct {
	mu    sync.RWMutex
	regs  []Registration
	calls int
}

// NewMemoryRegistrar creates an empty registrar.
func NewMemoryRegistrar() *MemoryRegistrar {
	return &MemoryRegistrar{}
}

// Register implements Registrar.
func (r *MemoryRegistrar) Register(_ context.Context, regs []Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regs = append([]Registration(nil), regs...)
	r.calls++
	return nil
}

// Registrations returns the current registrations.
func (r *MemoryRegistrar) Registrations() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Registration(nil), r.regs...)
}

// Calls returns how many times Register was called.
func (r *MemoryRegistrar) Calls() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.calls
}
