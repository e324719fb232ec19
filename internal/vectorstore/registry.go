package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a backend available under name. It panics on a nil driver
// or a duplicate name.
func Register(name string, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if d == nil {
		panic("vectorstore: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("vectorstore: Register called twice for driver " + name)
	}
	drivers[name] = d
}

// Unregister removes a backend. Used by tests.
func Unregister(name string) {
	driversMu.Lock()
	defer driversMu.Unlock()
	delete(drivers, name)
}

// Drivers returns the sorted names of the registered backends.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(name string) (Driver, bool) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	return d, ok
}

// Availability is the outcome of probing a backend.
type Availability struct {
	Backend   string
	Available bool
	Reason    string
}

// Probe checks whether the named backend can be used without contacting it.
func Probe(name string) Availability {
	if _, ok := lookup(name); ok {
		return Availability{Backend: name, Available: true}
	}
	reason := fmt.Sprintf("%s client library not installed (backend %q is not compiled into this binary)", name, name)
	if name == "" {
		reason = "no vector store backend configured"
	}
	return Availability{Backend: name, Reason: reason}
}

// Open acquires a client for the named backend at addr.
func Open(ctx context.Context, name, addr string) (Client, error) {
	d, ok := lookup(name)
	if !ok {
		return nil, fmt.Errorf("open %q: %w", name, ErrUnavailable)
	}
	c, err := d.Open(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s at %s: %w", name, addr, err)
	}
	return c, nil
}
