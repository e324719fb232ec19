package sqlite

import (
	"context"

	_ "modernc.org/sqlite"

	"github.com/RM-RAMASAMY/GreenLoop/internal/vectorstore"
)

// BackendName is the pure-Go SQLite backend.
const BackendName = "sqlite"

func init() {
	vectorstore.Register(BackendName, vectorstore.DriverFunc(func(ctx context.Context, addr string) (vectorstore.Client, error) {
		return Open("sqlite", dsn(addr, "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"))
	}))
}
