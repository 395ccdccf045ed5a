package scripts

import (
	"github.com/GriffinCanCode/scriptgate/internal/domain/matcher"
	"github.com/GriffinCanCode/scriptgate/internal/domain/metadata"
)

// Scope is the compiled page predicate of a script.
type Scope struct {
	matches    matcher.Set
	includes   matcher.Set
	excludes   matcher.Set
	everywhere bool
}

// NewScope compiles the page patterns of meta.
func NewScope(meta *metadata.ScriptMetadata) *Scope {
	return &Scope{
		matches:    matcher.CompileAll(meta.Matches),
		includes:   matcher.CompileAll(meta.Includes),
		excludes:   matcher.CompileAll(meta.Excludes),
		everywhere: len(meta.Matches) == 0 && len(meta.Includes) == 0,
	}
}

// Covers reports whether the script runs on url.
func (s *Scope) Covers(url string) bool {
	if s.excludes.Test(url) {
		return false
	}
	if s.everywhere {
		return true
	}
	return s.matches.Test(url) || s.includes.Test(url)
}
