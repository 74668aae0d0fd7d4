package model

import (
	"hash/fnv"
	"sort"
)

// MatchValue is one of Exact, Lpm, Ternary, or Range, carrying the raw
// big-endian bytes the wire encoder will bit-width-adjust.
type MatchValue interface {
	matchValue()
	matchTypeName() string
}

// Exact matches a field against a single value.
type Exact struct {
	Value []byte
}

func (Exact) matchValue()          {}
func (Exact) matchTypeName() string { return "exact" }

// Lpm matches a field against a value with a longest-prefix-match prefix
// length.
type Lpm struct {
	Value      []byte
	PrefixLen  int32
}

func (Lpm) matchValue()          {}
func (Lpm) matchTypeName() string { return "lpm" }

// Ternary matches a field against a value and mask.
type Ternary struct {
	Value []byte
	Mask  []byte
}

func (Ternary) matchValue()          {}
func (Ternary) matchTypeName() string { return "ternary" }

// Range matches a field against an inclusive [Low, High] range.
type Range struct {
	Low  []byte
	High []byte
}

func (Range) matchValue()          {}
func (Range) matchTypeName() string { return "range" }

// FlowMatch pairs a field name with its match value.
type FlowMatch struct {
	Name  string
	Value MatchValue
}

// FlowTable names a table and its matches. Matches MUST be sorted by Name so
// that two FlowTables built from the same set of matches, in any
// construction order, are equal and hash identically — see spec.md §3 and
// §8 property 3.
type FlowTable struct {
	Name    string
	Matches []FlowMatch
}

// NewFlowTable builds a FlowTable, sorting matches by name as a side effect.
func NewFlowTable(name string, matches []FlowMatch) FlowTable {
	sorted := make([]FlowMatch, len(matches))
	copy(sorted, matches)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return FlowTable{Name: name, Matches: sorted}
}

// FlowActionParam is one named, byte-encoded action parameter.
type FlowActionParam struct {
	Name  string
	Value []byte
}

// FlowAction names an action and its parameters.
type FlowAction struct {
	Name   string
	Params []FlowActionParam
}

// UpdateType is the P4Runtime write verb a Flow should be applied with.
// spec.md §9's third open question calls for this to be explicit rather
// than inferred from an "is_default_action" flag.
type UpdateType int

const (
	Insert UpdateType = iota
	Modify
	Delete
)

func (u UpdateType) String() string {
	switch u {
	case Insert:
		return "INSERT"
	case Modify:
		return "MODIFY"
	case Delete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Flow is the controller's language-neutral representation of a P4Runtime
// table entry: a table, a match set, an action, a priority, and an opaque
// controller-assigned metadata value used to correlate read-backs.
type Flow struct {
	Pipe     string
	Table    FlowTable
	Action   FlowAction
	Priority int32
	Metadata uint64
	Op       UpdateType
}

// NewFlow constructs a Flow with canonicalized (sorted) matches and a
// metadata value computed as Hash() of the (table, action, priority) tuple,
// per spec.md §3.
func NewFlow(pipe, table string, matches []FlowMatch, action FlowAction, priority int32, op UpdateType) Flow {
	f := Flow{
		Pipe:     pipe,
		Table:    NewFlowTable(table, matches),
		Action:   action,
		Priority: priority,
		Op:       op,
	}
	f.Metadata = f.Hash()
	return f
}

// Hash returns a 64-bit FNV-1a hash of the flow's table name, its sorted
// matches, its action name and params, and its priority. Two flows built
// from the same set of matches in different construction order hash
// identically because FlowTable keeps matches sorted.
func (f Flow) Hash() uint64 {
	h := fnv.New64a()
	write := func(b []byte) { _, _ = h.Write(b) }
	writeStr := func(s string) { write([]byte(s)); write([]byte{0}) }

	writeStr(f.Table.Name)
	for _, m := range f.Table.Matches {
		writeStr(m.Name)
		writeStr(m.Value.matchTypeName())
		switch v := m.Value.(type) {
		case Exact:
			write(v.Value)
		case Lpm:
			write(v.Value)
			write([]byte{byte(v.PrefixLen)})
		case Ternary:
			write(v.Value)
			write(v.Mask)
		case Range:
			write(v.Low)
			write(v.High)
		}
	}
	writeStr(f.Action.Name)
	for _, p := range f.Action.Params {
		writeStr(p.Name)
		write(p.Value)
	}
	var prioBuf [4]byte
	prioBuf[0] = byte(f.Priority >> 24)
	prioBuf[1] = byte(f.Priority >> 16)
	prioBuf[2] = byte(f.Priority >> 8)
	prioBuf[3] = byte(f.Priority)
	write(prioBuf[:])

	return h.Sum64()
}

// QualifiedTableName returns the pipe-qualified table name, "" pipe means
// unqualified.
func (f Flow) QualifiedTableName() string {
	if f.Pipe == "" {
		return f.Table.Name
	}
	return f.Pipe + "." + f.Table.Name
}

// NoActionName is the one reserved action name that is never pipe-qualified
// on the wire, per spec.md §4.2.
const NoActionName = "NoAction"

// QualifiedActionName returns the pipe-qualified action name, except for
// NoAction which is always emitted unqualified.
func (f Flow) QualifiedActionName() string {
	if f.Action.Name == NoActionName {
		return NoActionName
	}
	if f.Pipe == "" {
		return f.Action.Name
	}
	return f.Pipe + "." + f.Action.Name
}
