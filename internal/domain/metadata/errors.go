package metadata

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingBlock means no ==UserScript== ... ==/UserScript== block was found.
	ErrMissingBlock = errors.New("no ==UserScript== metadata block found")

	// ErrMissingName means the block has no usable @name.
	ErrMissingName = errors.New("metadata block is missing the required @name")
)

// WarningKind classifies a dropped directive.
type WarningKind string

const (
	WarningInvalidPattern       WarningKind = "invalid_pattern"
	WarningInvalidDependencyURL WarningKind = "invalid_dependency_url"
)

// Warning reports a directive that was dropped without failing the parse.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Key     string      `json:"key"`
	Value   string      `json:"value"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("@%s %s: %s", w.Key, w.Value, w.Message)
}
