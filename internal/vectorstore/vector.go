// Package vectorstore defines the client contract the bridge drives and a
// registry of backends that implement it. Backends register themselves from
// init, the same way database/sql drivers do, so a backend that was not
// linked into the binary is simply absent.
package vectorstore

import "context"

// Client is one scoped connection to a vector store. Callers must Close it.
type Client interface {
	// HasCollection reports whether the named collection exists.
	HasCollection(ctx context.Context, name string) (bool, error)

	// CreateCollection creates a collection holding vectors of the given
	// dimension. Creating a collection that already exists is not an error.
	CreateCollection(ctx context.Context, name string, dimension int) error

	// Upsert inserts or replaces a single vector by identifier.
	Upsert(ctx context.Context, collection string, id any, vector []float32, payload any) error

	// Search returns up to topK nearest vectors, best match first.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)

	Close() error
}

// Result is a single search hit as reported by the store.
type Result struct {
	ID      any     `json:"id"`
	Score   float32 `json:"score"`
	Payload any     `json:"payload"`
}

// Driver opens clients for one backend.
type Driver interface {
	Open(ctx context.Context, addr string) (Client, error)
}

// DriverFunc adapts a function to the Driver interface.
type DriverFunc func(ctx context.Context, addr string) (Client, error)

// Open calls f.
func (f DriverFunc) Open(ctx context.Context, addr string) (Client, error) {
	return f(ctx, addr)
}
