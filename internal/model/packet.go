package model

// PacketReceived is a packet-in as handed to packet subscribers, already
// enriched (where possible) with the ingress ConnectPoint. ConnectPoint is
// the zero value with HasConnectPoint=false if no ingress-port metadata
// entry was present on the wire message, per spec.md §4.2.
type PacketReceived struct {
	Device       DeviceID
	Payload      []byte
	Metadata     []PacketMetadata
	ConnectPoint ConnectPoint
	HasConnectPoint bool
}

// PacketMetadata is one id/value pair carried alongside a packet-in or
// packet-out, mirroring P4Runtime's PacketMetadata wire message.
type PacketMetadata struct {
	ID    uint32
	Value []byte
}

// PacketOut is the controller's language-neutral representation of a
// packet to emit on a device, before wire encoding assigns the
// egress-port metadata id from the device's Pipeconf.
type PacketOut struct {
	Device DeviceID
	Port   uint32
	Payload []byte
}

// Meter is a per-entry rate limiter configuration, addressed by name
// against a Pipeconf like a table.
type Meter struct {
	Name    string
	Index   int64
	CIR, CBurst int64
	PIR, PBurst int64
}

// MulticastGroup fans a packet out to a set of (port, instance) replicas.
type MulticastGroup struct {
	GroupID uint32
	Replicas []MulticastReplica
}

// MulticastReplica is one egress replica of a MulticastGroup.
type MulticastReplica struct {
	Port     uint32
	Instance uint32
}
