package integrity

import (
	"fmt"

	"github.com/dop251/goja/parser"
)

// CheckSyntax parses code as JavaScript without running it.
func CheckSyntax(name, code string) error {
	if _, err := parser.ParseFile(nil, name, code, 0); err != nil {
		return fmt.Errorf("syntax error: %w", err)
	}
	return nil
}
