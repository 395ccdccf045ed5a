package integrity

// Report is the outcome of Check.
type Report struct {
	Valid             bool     `json:"valid"`
	Hash              string   `json:"hash"`
	SecurityWarnings  []string `json:"securityWarnings,omitempty"`
	IntegrityWarnings []string `json:"integrityWarnings,omitempty"`
	SyntaxError       string   `json:"syntaxError,omitempty"`
}

// Check runs every check on newCode. oldHash is the hash of the version
// being replaced and expectedHash a hash the code must have; either may be
// empty. When expectedHash is empty an @hash directive is checked instead,
// against the code with the directive line removed.
func Check(newCode, oldHash, expectedHash string) Report {
	r := Report{
		Hash:             Hash(newCode),
		SecurityWarnings: CheckSecurity(newCode),
	}

	switch declared, ok := DeclaredHash(newCode); {
	case expectedHash != "":
		if !Verify(newCode, expectedHash) {
			r.IntegrityWarnings = append(r.IntegrityWarnings, "expected hash does not match actual hash")
		}
	case ok:
		if !Verify(StripHashDirective(newCode), declared) {
			r.IntegrityWarnings = append(r.IntegrityWarnings, "@hash does not match the script content")
		}
	}
	if oldHash != "" && oldHash == r.Hash {
		r.IntegrityWarnings = append(r.IntegrityWarnings, "script content is identical to previous version")
	}

	if err := CheckSyntax("script.user.js", newCode); err != nil {
		r.SyntaxError = err.Error()
	}

	r.Valid = len(r.SecurityWarnings) == 0 && len(r.IntegrityWarnings) == 0 && r.SyntaxError == ""
	return r
}
