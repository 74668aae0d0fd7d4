// Package pipeconf loads and caches P4Info schemas bundled with a
// device-config blob, and resolves table/action/match-field/meter/counter
// names to the IDs and bit-widths the wire encoder needs.
package pipeconf

import (
	"fmt"

	p4cfg "github.com/p4lang/p4runtime/go/p4/config/v1"
	"google.golang.org/protobuf/encoding/prototext"

	"github.com/flowplane/p4ctl/internal/model"
)

// MatchType mirrors the P4Info match-type enum with the same four variants
// the wire encoder's model.MatchValue carries.
type MatchType int

const (
	MatchTypeUnspecified MatchType = iota
	MatchTypeExact
	MatchTypeLpm
	MatchTypeTernary
	MatchTypeRange
)

func (t MatchType) String() string {
	switch t {
	case MatchTypeExact:
		return "exact"
	case MatchTypeLpm:
		return "lpm"
	case MatchTypeTernary:
		return "ternary"
	case MatchTypeRange:
		return "range"
	default:
		return "unspecified"
	}
}

// MatchFieldInfo is a resolved match field: its wire ID, bit-width, and
// declared match type.
type MatchFieldInfo struct {
	ID        uint32
	Name      string
	BitWidth  int32
	MatchType MatchType
}

// TableInfo is a resolved table: its wire ID and its match fields by name.
type TableInfo struct {
	ID          uint32
	Name        string
	MatchFields map[string]*MatchFieldInfo
}

// ActionParamInfo is a resolved action parameter: its wire ID and bit-width.
type ActionParamInfo struct {
	ID       uint32
	Name     string
	BitWidth int32
}

// ActionInfo is a resolved action: its wire ID and its parameters by name.
type ActionInfo struct {
	ID     uint32
	Name   string
	Params map[string]*ActionParamInfo
}

// MeterInfo is a resolved meter's wire ID.
type MeterInfo struct {
	ID   uint32
	Name string
}

// CounterInfo is a resolved counter's wire ID.
type CounterInfo struct {
	ID   uint32
	Name string
}

// Pipeconf is an immutable bundle of a P4Info schema and an opaque
// device-config blob (e.g. a BMv2 JSON program), plus the two controller
// packet-metadata IDs resolved once at load time.
type Pipeconf struct {
	ID           model.PipeconfID
	Name         string
	P4Info       *p4cfg.P4Info
	DeviceConfig []byte

	// PacketInIngressID is the id of the packet_in controller-packet-metadata
	// "ingress_port" field, used to recover the ingress ConnectPoint of a
	// PacketIn. PacketOutEgressID is the id of the packet_out
	// "egress_port" field, used to address a PacketOut.
	PacketInIngressID  uint32
	PacketOutEgressID  uint32

	tables   map[string]*TableInfo
	actions  map[string]*ActionInfo
	meters   map[string]*MeterInfo
	counters map[string]*CounterInfo
}

// LoadError reports that a Pipeconf could not be built from a P4Info blob,
// naming the missing or malformed piece.
type LoadError struct {
	Name   string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pipeconf %q: %s: %v", e.Name, e.Reason, e.Err)
	}
	return fmt.Sprintf("pipeconf %q: %s", e.Name, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ErrNotFound is returned by Resolve* when the named entity is absent from
// the pipeconf's P4Info, a recoverable condition rather than a panic.
var ErrNotFound = fmt.Errorf("not found")

// Load parses p4infoBytes (text-format P4Info, the ".p4info.pb.txt" shape
// the P4Runtime toolchain emits) and binds it to the opaque deviceConfigBytes
// blob. It resolves the packet_in/packet_out controller-packet-metadata
// blocks eagerly, failing with *LoadError if either block or its required
// ingress_port/egress_port field is missing.
func Load(name string, p4infoBytes, deviceConfigBytes []byte) (*Pipeconf, error) {
	info := &p4cfg.P4Info{}
	if err := prototext.Unmarshal(p4infoBytes, info); err != nil {
		return nil, &LoadError{Name: name, Reason: "malformed P4Info", Err: err}
	}

	pc := &Pipeconf{
		ID:           model.NewPipeconfID(name),
		Name:         name,
		P4Info:       info,
		DeviceConfig: append([]byte(nil), deviceConfigBytes...),
		tables:       make(map[string]*TableInfo),
		actions:      make(map[string]*ActionInfo),
		meters:       make(map[string]*MeterInfo),
		counters:     make(map[string]*CounterInfo),
	}

	if err := pc.index(); err != nil {
		return nil, err
	}
	return pc, nil
}

func (p *Pipeconf) index() error {
	for _, t := range p.P4Info.GetTables() {
		ti := &TableInfo{
			ID:          t.GetPreamble().GetId(),
			Name:        t.GetPreamble().GetName(),
			MatchFields: make(map[string]*MatchFieldInfo),
		}
		for _, mf := range t.GetMatchFields() {
			ti.MatchFields[mf.GetName()] = &MatchFieldInfo{
				ID:        mf.GetId(),
				Name:      mf.GetName(),
				BitWidth:  mf.GetBitwidth(),
				MatchType: toMatchType(mf.GetMatchType()),
			}
		}
		p.tables[ti.Name] = ti
	}

	for _, a := range p.P4Info.GetActions() {
		ai := &ActionInfo{
			ID:     a.GetPreamble().GetId(),
			Name:   a.GetPreamble().GetName(),
			Params: make(map[string]*ActionParamInfo),
		}
		for _, param := range a.GetParams() {
			ai.Params[param.GetName()] = &ActionParamInfo{
				ID:       param.GetId(),
				Name:     param.GetName(),
				BitWidth: param.GetBitwidth(),
			}
		}
		p.actions[ai.Name] = ai
	}

	for _, m := range p.P4Info.GetMeters() {
		p.meters[m.GetPreamble().GetName()] = &MeterInfo{ID: m.GetPreamble().GetId(), Name: m.GetPreamble().GetName()}
	}
	for _, c := range p.P4Info.GetCounters() {
		p.counters[c.GetPreamble().GetName()] = &CounterInfo{ID: c.GetPreamble().GetId(), Name: c.GetPreamble().GetName()}
	}

	ingress, err := findPacketMetadataField(p.P4Info, "packet_in", "ingress_port")
	if err != nil {
		return &LoadError{Name: p.Name, Reason: err.Error()}
	}
	egress, err := findPacketMetadataField(p.P4Info, "packet_out", "egress_port")
	if err != nil {
		return &LoadError{Name: p.Name, Reason: err.Error()}
	}
	p.PacketInIngressID = ingress
	p.PacketOutEgressID = egress
	return nil
}

func findPacketMetadataField(info *p4cfg.P4Info, block, field string) (uint32, error) {
	for _, cpm := range info.GetControllerPacketMetadata() {
		if cpm.GetPreamble().GetName() != block {
			continue
		}
		for _, m := range cpm.GetMetadata() {
			if m.GetName() == field {
				return m.GetId(), nil
			}
		}
		return 0, fmt.Errorf("controller_packet_metadata %q missing required field %q", block, field)
	}
	return 0, fmt.Errorf("missing required controller_packet_metadata block %q", block)
}

func toMatchType(mt p4cfg.MatchField_MatchType) MatchType {
	switch mt {
	case p4cfg.MatchField_EXACT:
		return MatchTypeExact
	case p4cfg.MatchField_LPM:
		return MatchTypeLpm
	case p4cfg.MatchField_TERNARY:
		return MatchTypeTernary
	case p4cfg.MatchField_RANGE:
		return MatchTypeRange
	default:
		return MatchTypeUnspecified
	}
}

// ResolveTable looks up a table by its P4Info preamble name, which is
// pipe-qualified (e.g. "MyIngress.ipv4_lpm").
func (p *Pipeconf) ResolveTable(name string) (*TableInfo, error) {
	t, ok := p.tables[name]
	if !ok {
		return nil, fmt.Errorf("table %q: %w", name, ErrNotFound)
	}
	return t, nil
}

// ResolveAction looks up an action by its P4Info preamble name, which is
// pipe-qualified except for built-ins such as "NoAction".
func (p *Pipeconf) ResolveAction(name string) (*ActionInfo, error) {
	a, ok := p.actions[name]
	if !ok {
		return nil, fmt.Errorf("action %q: %w", name, ErrNotFound)
	}
	return a, nil
}

// ResolveMatchField looks up a match field on a specific table.
func (p *Pipeconf) ResolveMatchField(table, field string) (*MatchFieldInfo, error) {
	t, err := p.ResolveTable(table)
	if err != nil {
		return nil, err
	}
	f, ok := t.MatchFields[field]
	if !ok {
		return nil, fmt.Errorf("match field %q on table %q: %w", field, table, ErrNotFound)
	}
	return f, nil
}

// ResolveMeter looks up a meter by name.
func (p *Pipeconf) ResolveMeter(name string) (*MeterInfo, error) {
	m, ok := p.meters[name]
	if !ok {
		return nil, fmt.Errorf("meter %q: %w", name, ErrNotFound)
	}
	return m, nil
}

// ResolveCounter looks up a counter by name.
func (p *Pipeconf) ResolveCounter(name string) (*CounterInfo, error) {
	c, ok := p.counters[name]
	if !ok {
		return nil, fmt.Errorf("counter %q: %w", name, ErrNotFound)
	}
	return c, nil
}
