package ruletree

import "errors"

// Error kinds returned by the engine and its collaborators. Callers should
// test with errors.Is; the engine wraps these with context about the
// attribute, owner or source involved.
var (
	// ErrMetadata indicates an attribute could not be resolved in the
	// Catalog, or the catalog itself is inconsistent.
	ErrMetadata = errors.New("metadata error")

	// ErrInput indicates the incoming Product lacks a required key value.
	ErrInput = errors.New("input error")

	// ErrPermission indicates the transaction gate is not confirmed, or an
	// owner operation referenced an unknown or empty owner id.
	ErrPermission = errors.New("permission error")

	// ErrSource indicates a caller-supplied retrieval or custom-operator
	// callout failed.
	ErrSource = errors.New("source error")
)
