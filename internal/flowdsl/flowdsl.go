// Package flowdsl is a fluent builder for model.Flow literals, matching the
// builder-chain shape used across the pack for request construction.
package flowdsl

import "github.com/flowplane/p4ctl/internal/model"

// Builder accumulates a Flow's fields; Build produces the canonicalized
// model.Flow (matches sorted by field name, per model.NewFlowTable).
type Builder struct {
	pipe     string
	table    string
	matches  []model.FlowMatch
	action   model.FlowAction
	priority int32
	metadata uint64
	op       model.UpdateType
}

// Flow starts a builder for a table entry in the given table.
func Flow(table string) *Builder {
	return &Builder{table: table, op: model.Insert}
}

// Pipe sets the pipeline scope (relevant to multi-pipe targets).
func (b *Builder) Pipe(pipe string) *Builder {
	b.pipe = pipe
	return b
}

// Match appends one field match.
func (b *Builder) Match(field string, value model.MatchValue) *Builder {
	b.matches = append(b.matches, model.FlowMatch{Name: field, Value: value})
	return b
}

// Exact is shorthand for Match(field, model.Exact{Value: value}).
func (b *Builder) Exact(field string, value []byte) *Builder {
	return b.Match(field, model.Exact{Value: value})
}

// Lpm is shorthand for Match(field, model.Lpm{Value: value, PrefixLen: prefixLen}).
func (b *Builder) Lpm(field string, value []byte, prefixLen int32) *Builder {
	return b.Match(field, model.Lpm{Value: value, PrefixLen: prefixLen})
}

// Ternary is shorthand for Match(field, model.Ternary{Value: value, Mask: mask}).
func (b *Builder) Ternary(field string, value, mask []byte) *Builder {
	return b.Match(field, model.Ternary{Value: value, Mask: mask})
}

// Range is shorthand for Match(field, model.Range{Low: low, High: high}).
func (b *Builder) Range(field string, low, high []byte) *Builder {
	return b.Match(field, model.Range{Low: low, High: high})
}

// Action sets the action name; subsequent Param calls append its
// parameters.
func (b *Builder) Action(name string) *Builder {
	b.action = model.FlowAction{Name: name}
	return b
}

// Param appends a parameter to the action set by the last Action call.
func (b *Builder) Param(name string, value []byte) *Builder {
	b.action.Params = append(b.action.Params, model.FlowActionParam{Name: name, Value: value})
	return b
}

// Priority sets the entry's priority (meaningful for ternary/range tables).
func (b *Builder) Priority(p int32) *Builder {
	b.priority = p
	return b
}

// Metadata sets the controller-assigned correlation value.
func (b *Builder) Metadata(m uint64) *Builder {
	b.metadata = m
	return b
}

// AsInsert, AsModify, AsDelete set the write verb; Insert is the default.
func (b *Builder) AsInsert() *Builder { b.op = model.Insert; return b }
func (b *Builder) AsModify() *Builder { b.op = model.Modify; return b }
func (b *Builder) AsDelete() *Builder { b.op = model.Delete; return b }

// Build produces the canonicalized Flow.
func (b *Builder) Build() model.Flow {
	return model.Flow{
		Pipe:     b.pipe,
		Table:    model.NewFlowTable(b.table, b.matches),
		Action:   b.action,
		Priority: b.priority,
		Metadata: b.metadata,
		Op:       b.op,
	}
}
