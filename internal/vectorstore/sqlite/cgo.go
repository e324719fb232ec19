//go:build cgo

package sqlite

import (
	"context"

	_ "github.com/mattn/go-sqlite3"

	"github.com/RM-RAMASAMY/GreenLoop/internal/vectorstore"
)

// CgoBackendName is the mattn/go-sqlite3 backend, present only in cgo builds.
const CgoBackendName = "sqlite3"

func init() {
	vectorstore.Register(CgoBackendName, vectorstore.DriverFunc(func(ctx context.Context, addr string) (vectorstore.Client, error) {
		return Open("sqlite3", dsn(addr, "_foreign_keys=1&_busy_timeout=5000"))
	}))
}
