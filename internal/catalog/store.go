package catalog

import (
	"sync/atomic"

	"github.com/star/aperture/internal/metrics"
)

// Store provides thread-safe access to the current catalog.
type Store struct {
	catalog atomic.Pointer[Catalog]
}

// NewStore creates a new empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current catalog, or nil if none has been loaded.
func (s *Store) Get() *Catalog {
	return s.catalog.Load()
}

// Set atomically replaces the current catalog.
func (s *Store) Set(c *Catalog) {
	s.catalog.Store(c)
	if c != nil {
		metrics.SetCatalogTelescopes(c.Len())
	} else {
		metrics.SetCatalogTelescopes(0)
	}
}

// Lookup finds an instrument in the current catalog.
func (s *Store) Lookup(name string) (*Instrument, bool) {
	c := s.catalog.Load()
	if c == nil {
		return nil, false
	}
	return c.Lookup(name)
}

// Ready reports whether a catalog with at least one telescope is loaded.
func (s *Store) Ready() bool {
	c := s.catalog.Load()
	return c != nil && c.Len() > 0
}
