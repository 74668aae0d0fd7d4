// Package model holds the language-neutral data types shared by every layer
// of the controller: device and port addressing, topology primitives, and
// the Flow representation that the wire encoder translates into P4Runtime
// table entries.
package model

import "hash/fnv"

// DeviceID is a process-wide stable identifier for a Device. It is derived
// deterministically from the device's human name unless the caller supplies
// one explicitly, so the same fleet file always produces the same IDs.
type DeviceID uint64

// NewDeviceID derives a DeviceID from a human-readable device name.
func NewDeviceID(name string) DeviceID {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return DeviceID(h.Sum64())
}

// PipeconfID is a stable identifier for a Pipeconf, derived from its name.
type PipeconfID uint64

// NewPipeconfID derives a PipeconfID from a pipeconf name.
func NewPipeconfID(name string) PipeconfID {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return PipeconfID(h.Sum64())
}
