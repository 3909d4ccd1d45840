package metric

import (
	"sync"
	"sync/atomic"
)

var nextOrdinal atomic.Int64

// Name identifies a metric. Two Names are the same metric only if they are
// the same pointer; the ordinal is a unique tag usable as a cheap hash.
type Name struct {
	name    string
	ordinal int64
}

// NewName allocates a distinct Name. Concurrent callers never observe the
// same ordinal.
func NewName(name string) *Name {
	return &Name{name: name, ordinal: nextOrdinal.Add(1) - 1}
}

func (n *Name) String() string { return n.name }

// Ordinal is unique per Name for the life of the process.
func (n *Name) Ordinal() int64 { return n.ordinal }

// Cache interns Names by label so every advice sharing a metric label shares
// one identity.
type Cache struct {
	names sync.Map // string -> *Name
}

// Get returns the interned Name for label, creating it on first use.
func (c *Cache) Get(label string) *Name {
	if n, ok := c.names.Load(label); ok {
		return n.(*Name)
	}
	n, _ := c.names.LoadOrStore(label, NewName(label))
	return n.(*Name)
}
