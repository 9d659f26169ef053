package models

import "strings"

// BackendKind enumerates the two families of generation backends
type BackendKind string

const (
	// BackendHosted routes generation to a hosted provider API
	BackendHosted BackendKind = "hosted"
	// BackendLocal routes generation to a llama-server process on this machine
	BackendLocal BackendKind = "local"
)

// LocalBackendPrefix marks wire identifiers that address a local backend
const LocalBackendPrefix = "local-"

// DefaultBackendIdentifier is the wire identifier for the default hosted backend
const DefaultBackendIdentifier = "hosted"

// BackendRef identifies a generation backend. The kind is decided once at
// request parsing; nothing downstream re-inspects identifier strings.
type BackendRef struct {
	Kind BackendKind
	// Name is the hosted model name for hosted backends (empty selects the
	// configured default provider model) and the full identifier for local
	// backends, e.g. "local-gpt2".
	Name string
}

// ParseBackendRef converts a wire-format backend identifier into a typed
// reference. Identifiers beginning with "local-" address local llama-server
// backends; "hosted" or an empty identifier selects the default hosted
// provider; anything else names a hosted model directly.
func ParseBackendRef(identifier string) BackendRef {
	identifier = strings.TrimSpace(identifier)
	if strings.HasPrefix(identifier, LocalBackendPrefix) {
		return BackendRef{Kind: BackendLocal, Name: identifier}
	}
	if identifier == "" || identifier == DefaultBackendIdentifier {
		return BackendRef{Kind: BackendHosted, Name: ""}
	}
	return BackendRef{Kind: BackendHosted, Name: identifier}
}

// String returns the wire-format identifier for the reference
func (r BackendRef) String() string {
	if r.Kind == BackendHosted && r.Name == "" {
		return DefaultBackendIdentifier
	}
	return r.Name
}

// BackendInfo describes one addressable backend for the models catalog
type BackendInfo struct {
	ID    string `json:"id"`    // Wire identifier, e.g. "hosted" or "local-gpt2"
	Kind  string `json:"kind"`  // "hosted" or "local"
	Model string `json:"model"` // Provider model or GGUF file backing the identifier
	Ready bool   `json:"ready"` // True once the backend has been constructed
}
