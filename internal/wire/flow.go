package wire

import (
	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"

	"github.com/flowplane/p4ctl/internal/model"
	"github.com/flowplane/p4ctl/internal/pipeconf"
)

// EncodeFlow translates a model.Flow into a P4Runtime TableEntry against
// pc, resolving the table/action/match-field IDs and bit-width-adjusting
// every value along the way. The pipe-qualified names (spec.md §4.2) are
// what get resolved, so the Flow's Pipe field must match how the Pipeconf
// was compiled.
func EncodeFlow(pc *pipeconf.Pipeconf, f model.Flow) (*p4v1.TableEntry, error) {
	tableName := f.QualifiedTableName()
	table, err := pc.ResolveTable(tableName)
	if err != nil {
		return nil, resolveFailed("table "+tableName, err)
	}

	matches := make([]*p4v1.FieldMatch, 0, len(f.Table.Matches))
	for _, m := range f.Table.Matches {
		field, err := pc.ResolveMatchField(tableName, m.Name)
		if err != nil {
			return nil, resolveFailed("match field "+m.Name, err)
		}

		fm, err := encodeMatch(field, m)
		if err != nil {
			return nil, err
		}
		matches = append(matches, fm)
	}

	actionName := f.QualifiedActionName()
	actionInfo, err := pc.ResolveAction(actionName)
	if err != nil {
		return nil, resolveFailed("action "+actionName, err)
	}

	params := make([]*p4v1.Action_Param, 0, len(f.Action.Params))
	for _, p := range f.Action.Params {
		paramInfo, ok := actionInfo.Params[p.Name]
		if !ok {
			return nil, resolveFailed("action param "+p.Name, pipeconf.ErrNotFound)
		}
		params = append(params, &p4v1.Action_Param{
			ParamId: paramInfo.ID,
			Value:   Adjust(p.Value, int(paramInfo.BitWidth)),
		})
	}

	return &p4v1.TableEntry{
		TableId: table.ID,
		Match:   matches,
		Action: &p4v1.TableAction{
			Type: &p4v1.TableAction_Action{
				Action: &p4v1.Action{
					ActionId: actionInfo.ID,
					Params:   params,
				},
			},
		},
		Priority:           f.Priority,
		ControllerMetadata: f.Metadata,
	}, nil
}

func encodeMatch(field *pipeconf.MatchFieldInfo, m model.FlowMatch) (*p4v1.FieldMatch, error) {
	width := int(field.BitWidth)
	fm := &p4v1.FieldMatch{FieldId: field.ID}

	switch v := m.Value.(type) {
	case model.Exact:
		if field.MatchType != pipeconf.MatchTypeExact {
			return nil, matchTypeMismatch(m.Name, field.MatchType.String(), "exact")
		}
		fm.FieldMatchType = &p4v1.FieldMatch_Exact_{
			Exact: &p4v1.FieldMatch_Exact{Value: Adjust(v.Value, width)},
		}
	case model.Lpm:
		if field.MatchType != pipeconf.MatchTypeLpm {
			return nil, matchTypeMismatch(m.Name, field.MatchType.String(), "lpm")
		}
		fm.FieldMatchType = &p4v1.FieldMatch_Lpm_{
			Lpm: &p4v1.FieldMatch_LPM{Value: Adjust(v.Value, width), PrefixLen: v.PrefixLen},
		}
	case model.Ternary:
		if field.MatchType != pipeconf.MatchTypeTernary {
			return nil, matchTypeMismatch(m.Name, field.MatchType.String(), "ternary")
		}
		// Mask bits above the field width are cleared so the emitted mask
		// never selects bits outside the field.
		mask := Adjust(v.Mask, width)
		if rem := width % 8; rem != 0 && len(mask) > 0 {
			mask[0] &= byte(1)<<rem - 1
		}
		fm.FieldMatchType = &p4v1.FieldMatch_Ternary_{
			Ternary: &p4v1.FieldMatch_Ternary{Value: Adjust(v.Value, width), Mask: mask},
		}
	case model.Range:
		if field.MatchType != pipeconf.MatchTypeRange {
			return nil, matchTypeMismatch(m.Name, field.MatchType.String(), "range")
		}
		fm.FieldMatchType = &p4v1.FieldMatch_Range_{
			Range: &p4v1.FieldMatch_Range{Low: Adjust(v.Low, width), High: Adjust(v.High, width)},
		}
	default:
		return nil, &EncodingError{Kind: "UnknownMatchValue", Detail: m.Name}
	}

	return fm, nil
}

// UpdateType maps a model.UpdateType to the P4Runtime wire enum.
func UpdateType(op model.UpdateType) p4v1.Update_Type {
	switch op {
	case model.Insert:
		return p4v1.Update_INSERT
	case model.Modify:
		return p4v1.Update_MODIFY
	case model.Delete:
		return p4v1.Update_DELETE
	default:
		return p4v1.Update_UNSPECIFIED
	}
}

// EncodeUpdate wraps an encoded TableEntry as a full Update with the verb
// from f.Op, per spec.md §9's third open question (explicit Insert/Modify/
// Delete rather than inferring from "is default action").
func EncodeUpdate(pc *pipeconf.Pipeconf, f model.Flow) (*p4v1.Update, error) {
	entry, err := EncodeFlow(pc, f)
	if err != nil {
		return nil, err
	}
	return &p4v1.Update{
		Type: UpdateType(f.Op),
		Entity: &p4v1.Entity{
			Entity: &p4v1.Entity_TableEntry{TableEntry: entry},
		},
	}, nil
}
