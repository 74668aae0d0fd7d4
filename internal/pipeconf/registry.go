package pipeconf

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dgraph-io/ristretto"

	"github.com/flowplane/p4ctl/internal/model"
)

// Registry holds the set of loaded Pipeconfs, keyed by PipeconfID. Updating
// a pipeconf replaces the whole map behind an atomic pointer (the
// copy-on-write scheme spec.md §5 requires): callers already holding a
// *Pipeconf, or a reference to an old map via Snapshot, keep seeing the old
// value.
type Registry struct {
	log *slog.Logger

	m atomic.Pointer[map[model.PipeconfID]*Pipeconf]

	// cache is a pure performance layer: re-Load of a name whose PipeconfID
	// is already cached is served without re-parsing P4Info (the new bytes
	// are not compared with the cached ones). It never becomes
	// the source of truth; Resolve callers always go through Get, which
	// reads the copy-on-write map.
	cache *ristretto.Cache
}

// NewRegistry constructs an empty Registry. logger may be nil, in which
// case slog.Default() is used.
func NewRegistry(logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     64 << 20, // 64MB of cached P4Info/device-config blobs
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeconf: create cache: %w", err)
	}

	r := &Registry{log: logger, cache: cache}
	empty := map[model.PipeconfID]*Pipeconf{}
	r.m.Store(&empty)
	return r, nil
}

// Load parses and indexes a new pipeconf and installs it in the registry,
// returning the cached value if one with the same PipeconfID was already
// loaded.
func (r *Registry) Load(name string, p4infoBytes, deviceConfigBytes []byte) (*Pipeconf, error) {
	id := model.NewPipeconfID(name)
	if v, ok := r.cache.Get(id); ok {
		return v.(*Pipeconf), nil
	}

	pc, err := Load(name, p4infoBytes, deviceConfigBytes)
	if err != nil {
		return nil, err
	}

	cost := int64(len(p4infoBytes) + len(deviceConfigBytes))
	r.cache.Set(id, pc, cost)
	r.Update(id, pc)
	r.log.Info("pipeconf loaded", "name", name, "id", id)
	return pc, nil
}

// Get returns the currently installed Pipeconf for id, if any.
func (r *Registry) Get(id model.PipeconfID) (*Pipeconf, bool) {
	m := *r.m.Load()
	pc, ok := m[id]
	return pc, ok
}

// Update atomically replaces the map entry for id with pc, making it
// visible to subsequent Get calls without disturbing readers of the
// previous map.
func (r *Registry) Update(id model.PipeconfID, pc *Pipeconf) {
	for {
		old := r.m.Load()
		next := make(map[model.PipeconfID]*Pipeconf, len(*old)+1)
		for k, v := range *old {
			next[k] = v
		}
		next[id] = pc
		if r.m.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Remove atomically removes id from the registry.
func (r *Registry) Remove(id model.PipeconfID) {
	for {
		old := r.m.Load()
		if _, ok := (*old)[id]; !ok {
			return
		}
		next := make(map[model.PipeconfID]*Pipeconf, len(*old))
		for k, v := range *old {
			if k != id {
				next[k] = v
			}
		}
		if r.m.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Snapshot returns a point-in-time copy of every installed pipeconf, keyed
// by PipeconfID, for callers (e.g. the core service's "pipeconfs" action)
// that need to iterate the whole set.
func (r *Registry) Snapshot() map[model.PipeconfID]*Pipeconf {
	m := *r.m.Load()
	out := make(map[model.PipeconfID]*Pipeconf, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
