package model

import "net"

// Interface describes the host-facing attachment of a Port, if any.
type Interface struct {
	Name string
	IP   net.IP
	MAC  net.HardwareAddr
}

// Port is a physical or logical attachment point on a Device, keyed by
// Number within the device's port set.
type Port struct {
	Name      string
	Number    uint32
	Interface *Interface
}

// DeviceType distinguishes how the controller should treat a Device: as a
// P4Runtime master candidate over plain P4Runtime (Bmv2Master), over
// P4Runtime+gNMI (StratumMaster), or as a topology-only placeholder with no
// connection at all (Virtual).
type DeviceType interface {
	deviceType()
}

// Bmv2Master is a device the controller should dial and seek mastership of
// over plain P4Runtime.
type Bmv2Master struct {
	Address  string
	DeviceID uint64
	Pipeconf PipeconfID
}

func (Bmv2Master) deviceType() {}

// StratumMaster is the same as Bmv2Master but additionally exposes a
// companion gNMI channel on the same host:port, per spec.md §6.
type StratumMaster struct {
	Address  string
	DeviceID uint64
	Pipeconf PipeconfID
}

func (StratumMaster) deviceType() {}

// Virtual is a topology-only device: it has ports and participates in link
// and host events, but the controller never dials it.
type Virtual struct{}

func (Virtual) deviceType() {}

// Device is the controller's view of one fleet member.
type Device struct {
	ID    DeviceID
	Name  string
	Ports map[uint32]Port
	Type  DeviceType
}

// NewDevice constructs a Device, deriving its ID from Name if id is zero.
func NewDevice(name string, id DeviceID, typ DeviceType) *Device {
	if id == 0 {
		id = NewDeviceID(name)
	}
	return &Device{
		ID:    id,
		Name:  name,
		Ports: make(map[uint32]Port),
		Type:  typ,
	}
}

// AddPort inserts or replaces a port, keyed by its Number.
func (d *Device) AddPort(p Port) {
	d.Ports[p.Number] = p
}

// PipeconfID returns the PipeconfID named by d's DeviceType, if it names
// one. Bmv2Master and StratumMaster always do; Virtual never does.
func (d *Device) PipeconfID() (PipeconfID, bool) {
	switch t := d.Type.(type) {
	case Bmv2Master:
		return t.Pipeconf, true
	case StratumMaster:
		return t.Pipeconf, true
	default:
		return 0, false
	}
}

// Address returns the dial address named by d's DeviceType, if it has
// one. Virtual devices never do.
func (d *Device) Address() (string, bool) {
	switch t := d.Type.(type) {
	case Bmv2Master:
		return t.Address, true
	case StratumMaster:
		return t.Address, true
	default:
		return "", false
	}
}

// ConnectPoint names a physical point on the fabric: a device and a port
// number on it.
type ConnectPoint struct {
	Device DeviceID
	Port   uint32
}

// Host is an end-station observed attached to a ConnectPoint.
type Host struct {
	MAC      net.HardwareAddr
	IP       net.IP
	Location ConnectPoint
}

// Equal compares hosts by (MAC, IP) as spec.md §3 requires, ignoring
// Location so that a host observed at a new attachment point is still
// recognized as the same host.
func (h Host) Equal(o Host) bool {
	if h.MAC.String() != o.MAC.String() {
		return false
	}
	if h.IP == nil || o.IP == nil {
		return h.IP == nil && o.IP == nil
	}
	return h.IP.Equal(o.IP)
}

// Link is a directed edge between two ConnectPoints, as established by the
// link-probe protocol.
type Link struct {
	Src ConnectPoint
	Dst ConnectPoint
}
