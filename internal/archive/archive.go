// Package archive stores page bodies that failed to parse so adapter
// regressions can be diagnosed against the real markup.
package archive

import "context"

// Provider persists a raw page body and returns a URI for the stored
// object.
type Provider interface {
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Noop discards everything. Used when archiving is disabled.
type Noop struct{}

// Put does nothing and returns an empty URI.
func (Noop) Put(_ context.Context, _ string, _ string, _ []byte) (string, error) {
	return "", nil
}
