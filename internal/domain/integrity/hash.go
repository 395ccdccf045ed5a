package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// HashAlgorithm represents the hashing algorithm to use
type HashAlgorithm string

const (
	SHA256 HashAlgorithm = "sha256"
)

// Hasher computes content hashes.
type Hasher struct {
	algorithm HashAlgorithm
}

// NewHasher creates a new hasher with the specified algorithm
func NewHasher(algorithm HashAlgorithm) *Hasher {
	return &Hasher{algorithm: algorithm}
}

// DefaultHasher returns a SHA-256 hasher.
func DefaultHasher() *Hasher {
	return NewHasher(SHA256)
}

// Hash returns the lowercase hex digest of data.
func (h *Hasher) Hash(data []byte) string {
	switch h.algorithm {
	case SHA256:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	default:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	}
}

// HashString hashes s.
func (h *Hasher) HashString(s string) string {
	return h.Hash([]byte(s))
}

// HashJSON hashes the JSON encoding of v. Struct fields encode in
// declaration order, so equal values hash equally.
func (h *Hasher) HashJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return h.Hash(data), nil
}

// Hash returns the SHA-256 hex digest of script code.
func Hash(code string) string {
	return DefaultHasher().HashString(code)
}

var (
	declaredHash     = regexp.MustCompile(`(?im)^\s*//\s*@hash\s+(\S+)`)
	declaredHashLine = regexp.MustCompile(`(?im)^[ \t]*//[ \t]*@hash[ \t]+\S+[ \t]*\r?\n?`)
)

// DeclaredHash returns the value of an @hash directive. An optional
// "sha256:" or "sha256=" prefix is stripped.
func DeclaredHash(code string) (string, bool) {
	m := declaredHash.FindStringSubmatch(code)
	if m == nil {
		return "", false
	}
	v := strings.ToLower(m[1])
	for _, prefix := range []string{"sha256:", "sha256=", "sha256-"} {
		v = strings.TrimPrefix(v, prefix)
	}
	return v, true
}

// StripHashDirective removes @hash lines so a script can carry its own hash.
func StripHashDirective(code string) string {
	return declaredHashLine.ReplaceAllString(code, "")
}

// Verify reports whether code hashes to expected.
func Verify(code, expected string) bool {
	if expected == "" {
		return false
	}
	return Hash(code) == strings.ToLower(expected)
}
