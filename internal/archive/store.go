// Package archive persists finished document artifacts. The presence of an
// artifact at its path is the pipeline's only cache signal, so the Store
// contract is deliberately tiny: ask whether a path exists, or write it
// whole.
package archive

import "context"

// Store is the artifact namespace. Paths are slash-separated and relative
// to the store root. Write replaces the whole object in one call; no
// partial artifact is ever observable at a path.
type Store interface {
	Exists(ctx context.Context, path string) (bool, error)
	Write(ctx context.Context, path string, data []byte) error
}

// Backend names for selecting a Store implementation.
const (
	BackendFS  = "fs"
	BackendGCS = "gcs"
)
