// Package id generates the identifiers scriptgate hands out.
//
// Every ID is a ULID behind a short kind prefix ("scr_01J...", "chan_01J...").
// ULIDs sort by creation time, so scripts list in install order and log
// lines for one channel group together.
//
// Correlation IDs are not generated here: the page side of a channel picks
// them and they only need to be unique among that channel's in-flight
// operations.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind is the prefix naming what an ID identifies.
type Kind string

const (
	KindScript  Kind = "scr"
	KindChannel Kind = "chan"
	KindTrace   Kind = "trc"
	KindSpan    Kind = "spn"
)

// Prefixes as plain strings.
const (
	ScriptPrefix  = string(KindScript)
	ChannelPrefix = string(KindChannel)
)

// ScriptID identifies an installed userscript.
type ScriptID string

// ChannelID identifies one connected script context.
type ChannelID string

func (id ScriptID) String() string  { return string(id) }
func (id ChannelID) String() string { return string(id) }

// Generator produces monotonic ULIDs. Safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

var defaultGenerator = sync.OnceValue(NewGenerator)

// Default returns the process-wide generator.
func Default() *Generator { return defaultGenerator() }

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(ulid.Monotonic(rand.Reader, 0))
}

// NewGeneratorWithEntropy creates a generator reading randomness from
// entropy, for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy, now: time.Now}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
}

// GenerateString creates a new ULID as a string.
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates "prefix_ULID".
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return prefix + "_" + g.GenerateString()
}

// New creates an ID of the given kind with the default generator.
func New(kind Kind) string {
	return Default().GenerateWithPrefix(string(kind))
}

// NewScriptID generates a new script ID.
func NewScriptID() ScriptID { return ScriptID(New(KindScript)) }

// NewChannelID generates a new channel ID.
func NewChannelID() ChannelID { return ChannelID(New(KindChannel)) }

// Parse splits a prefixed ID into its kind and ULID. An unprefixed ULID
// parses with an empty kind.
func Parse(s string) (Kind, ulid.ULID, error) {
	var kind Kind
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		kind, s = Kind(s[:i]), s[i+1:]
	}
	u, err := ulid.Parse(s)
	if err != nil {
		return "", ulid.ULID{}, fmt.Errorf("invalid id: %w", err)
	}
	return kind, u, nil
}

// IsValid reports whether s is a bare ULID.
func IsValid(s string) bool {
	kind, _, err := Parse(s)
	return err == nil && kind == ""
}

// IsValidPrefixed reports whether s is "prefix_ULID".
func IsValidPrefixed(s, prefix string) bool {
	kind, _, err := Parse(s)
	return err == nil && string(kind) == prefix
}

// Timestamp extracts the creation time of a plain or prefixed ID.
func Timestamp(s string) (time.Time, error) {
	_, u, err := Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
