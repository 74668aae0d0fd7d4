// Package topology keeps the controller's view of links and hosts as an
// adjacency matrix indexed by a compact integer assigned per DeviceID on
// insertion, per spec.md §9's "arena-plus-index avoids cyclic ownership"
// design note.
package topology

import (
	"net"
	"sync"

	"github.com/flowplane/p4ctl/internal/core"
	"github.com/flowplane/p4ctl/internal/model"
)

// Store is the topology app's state: a device arena, an adjacency matrix of
// links keyed by arena index pairs, and the host table keyed by
// ConnectPoint. It implements core.AppHandler so it can be installed
// directly into a Chain.
type Store struct {
	mu sync.RWMutex

	// arena maps DeviceID -> compact index, and back. Indices are never
	// reused once removed, so a removed device's edges can still be
	// scanned out of the matrix by index before the slot is dropped.
	index   map[model.DeviceID]int
	devices []model.DeviceID // arena: index -> DeviceID, tombstoned entries are zero-valued

	// links is directed adjacency keyed by [srcIndex][dstIndex] -> the
	// Link as last observed (Src/Dst carry the real ConnectPoints); each
	// direction of a bidirectional link is its own entry.
	links map[int]map[int]model.Link

	hosts map[model.ConnectPoint]model.Host

	core *core.Core
}

// New builds an empty Store. core is used to emit synthetic events on
// device removal; it may be nil in tests that only exercise queries.
func New(c *core.Core) *Store {
	return &Store{
		index: make(map[model.DeviceID]int),
		links: make(map[int]map[int]model.Link),
		hosts: make(map[model.ConnectPoint]model.Host),
		core:  c,
	}
}

func (s *Store) Name() string { return "topology" }

// HandleEvent updates the store from DeviceAdded/DeviceLost/LinkDetected/
// HostDetected events and always propagates unchanged (topology never
// consumes or transforms).
func (s *Store) HandleEvent(ev core.Event) (core.Event, bool) {
	switch ev.Kind {
	case core.EventDeviceAdded:
		s.addDevice(ev.Device)
	case core.EventDeviceLost:
		s.RemoveDevice(ev.Device)
	case core.EventLinkDetected:
		s.addLink(ev.Link)
	case core.EventHostDetected:
		s.addHost(ev.Host)
	}
	return ev, true
}

func (s *Store) addDevice(id model.DeviceID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOfLocked(id)
}

// indexOfLocked returns id's arena index, assigning the next free slot if
// id has never been seen. Caller holds s.mu.
func (s *Store) indexOfLocked(id model.DeviceID) int {
	if idx, ok := s.index[id]; ok {
		return idx
	}
	idx := len(s.devices)
	s.devices = append(s.devices, id)
	s.index[id] = idx
	s.links[idx] = make(map[int]model.Link)
	return idx
}

func (s *Store) addLink(l model.Link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	srcIdx := s.indexOfLocked(l.Src.Device)
	dstIdx := s.indexOfLocked(l.Dst.Device)
	s.links[srcIdx][dstIdx] = l
}

func (s *Store) addHost(h model.Host) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hosts[h.Location] = h
}

// RemoveDevice drops id from the arena and scans the adjacency matrix for
// every link touching it, emitting a LinkLost event per edge (both
// directions) and a HostLost event per host attached to one of its ports,
// before forgetting the device itself.
func (s *Store) RemoveDevice(id model.DeviceID) {
	s.mu.Lock()
	idx, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return
	}

	var lostLinks []model.Link
	var lostHosts []model.Host

	for _, link := range s.links[idx] {
		lostLinks = append(lostLinks, link)
	}
	delete(s.links, idx)
	for _, row := range s.links {
		if link, ok := row[idx]; ok {
			lostLinks = append(lostLinks, link)
			delete(row, idx)
		}
	}

	for cp, host := range s.hosts {
		if cp.Device == id {
			lostHosts = append(lostHosts, host)
			delete(s.hosts, cp)
		}
	}

	delete(s.index, id)
	s.devices[idx] = model.DeviceID(0)
	s.mu.Unlock()

	if s.core == nil {
		return
	}
	for _, l := range lostLinks {
		s.core.Emit(core.Event{Kind: core.EventLinkLost, Link: l})
	}
	for _, h := range lostHosts {
		s.core.Emit(core.Event{Kind: core.EventHostLost, Host: h})
	}
}

// Devices returns the set of currently-known device ids.
func (s *Store) Devices() []model.DeviceID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.DeviceID, 0, len(s.index))
	for id := range s.index {
		out = append(out, id)
	}
	return out
}

// LinksFrom returns every link whose Src.Device is id.
func (s *Store) LinksFrom(id model.DeviceID) []model.Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.index[id]
	if !ok {
		return nil
	}
	out := make([]model.Link, 0, len(s.links[idx]))
	for _, l := range s.links[idx] {
		out = append(out, l)
	}
	return out
}

// HostAt returns the host observed at cp, if any.
func (s *Store) HostAt(cp model.ConnectPoint) (model.Host, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hosts[cp]
	return h, ok
}

// HostByIP returns the first known host with the given IP, for proxy-ARP
// lookups.
func (s *Store) HostByIP(ip net.IP) (model.Host, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.hosts {
		if h.IP.Equal(ip) {
			return h, true
		}
	}
	return model.Host{}, false
}
