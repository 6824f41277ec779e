// Package types defines the core domain types for buildout: the closed
// artifact type registry, output discriminators and build identity.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"strings"
)

// BuildMeta identifies one build invocation within one scope.
// A scope is the unit owning one producer graph, e.g. one build variant.
type BuildMeta struct {
	// InvocationID identifies the build invocation. Must be non-empty.
	InvocationID string
	// Scope is the scope identifier, used as a path segment.
	Scope string
	// Project is the optional owning project name.
	Project *string
}

// Validate checks that the identity is usable for path allocation.
func (b *BuildMeta) Validate() error {
	if b.InvocationID == "" {
		return errors.New("invocation_id must be non-empty")
	}
	if b.Scope == "" {
		return errors.New("scope must be non-empty")
	}
	if strings.ContainsAny(b.Scope, `/\`) || b.Scope == "." || b.Scope == ".." {
		return errors.New("scope must be a single path segment")
	}
	return nil
}
