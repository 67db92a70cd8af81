package qm

import (
	"encoding/json"
	"fmt"

	"github.com/opensafely-core/ehrql-go/schema"
	"github.com/opensafely-core/ehrql-go/types"
)

// wireNode is the stable JSON shape of a serialized node: a node-kind
// tag plus named fields, literals encoded with ISO dates and sets as
// arrays. Every node kind populates only the fields relevant to it;
// child nodes nest as further wireNode values so the whole graph is
// one JSON document.
type wireNode struct {
	Kind   string      `json:"kind"`
	Table  string      `json:"table,omitempty"`
	Column string      `json:"column,omitempty"`
	Schema *wireSchema `json:"schema,omitempty"`

	Source    *wireNode `json:"source,omitempty"`
	Condition *wireNode `json:"condition,omitempty"`
	By        *wireNode `json:"by,omitempty"`
	Position  string    `json:"position,omitempty"`
	Selected  []string  `json:"selectedColumns,omitempty"`
	SelectedT []wireType `json:"selectedColumnTypes,omitempty"`

	AggOp string `json:"aggOp,omitempty"`

	Op   string      `json:"op,omitempty"`
	Args []*wireNode `json:"args,omitempty"`

	Branches []wireBranch `json:"branches,omitempty"`
	Default  *wireNode    `json:"default,omitempty"`

	Scalar any      `json:"scalar,omitempty"`
	Set    []any    `json:"set,omitempty"`
	Type   wireType `json:"type,omitempty"`

	Rows [][]any `json:"rows,omitempty"`
}

type wireBranch struct {
	Condition *wireNode `json:"condition"`
	Value     *wireNode `json:"value"`
}

type wireType struct {
	Kind   string `json:"kind,omitempty"`
	System string `json:"system,omitempty"`
}

type wireSchema struct {
	Name          string       `json:"name"`
	PatientDomain bool         `json:"patientDomain,omitempty"`
	Columns       []wireColumn `json:"columns"`
}

type wireColumn struct {
	Name string   `json:"name"`
	Type wireType `json:"type"`
}

func toWireType(t types.Type) wireType {
	w := wireType{Kind: t.Kind.String()}
	if t.Kind == types.KindCode {
		w.System = string(t.System)
	}
	return w
}

func fromWireType(w wireType) types.Type {
	kinds := map[string]types.Kind{
		"bool": types.KindBool, "int": types.KindInt, "float": types.KindFloat,
		"str": types.KindStr, "date": types.KindDate, "datetime": types.KindDatetime,
		"code": types.KindCode, "any": types.KindAny,
	}
	k := kinds[w.Kind]
	if k == types.KindCode {
		return types.Code(types.CodeSystem(w.System))
	}
	return types.Type{Kind: k}
}

func toWireSchema(s schema.TableSchema) *wireSchema {
	w := &wireSchema{Name: s.Name, PatientDomain: s.PatientDomain}
	for _, c := range s.Columns {
		w.Columns = append(w.Columns, wireColumn{Name: c.Name, Type: toWireType(c.Type)})
	}
	return w
}

func fromWireSchema(w *wireSchema) schema.TableSchema {
	s := schema.TableSchema{Name: w.Name, PatientDomain: w.PatientDomain}
	for _, c := range w.Columns {
		s.Columns = append(s.Columns, schema.Column{Name: c.Name, Type: fromWireType(c.Type)})
	}
	return s
}

// Serialize encodes n to its stable JSON wire shape.
func Serialize(n Node) ([]byte, error) {
	w := toWire(n)
	return json.Marshal(w)
}

// Deserialize reconstructs a Node graph from Serialize's output.
// deserialize(serialize(G)) == G under structural equality (Hash).
func Deserialize(data []byte) (Node, error) {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return fromWire(&w)
}

// toWireLiteral converts a Value node's Go-typed literal into the
// stable wire encoding: dates as ISO ("YYYY-MM-DD") strings and codes
// as "system:value" strings.
func toWireLiteral(v any) any {
	switch lit := v.(type) {
	case types.DateValue:
		return lit.String()
	case types.CodedValue:
		return string(lit.System) + ":" + lit.Value
	default:
		return v
	}
}

// normalizeWireLiteral reverses toWireLiteral, additionally repairing
// encoding/json's float64-for-every-number decoding so int literals
// round-trip as int64, not float64.
func normalizeWireLiteral(v any, wt wireType) any {
	switch wt.Kind {
	case "int":
		if f, ok := v.(float64); ok {
			return int64(f)
		}
	case "float":
		if f, ok := v.(float64); ok {
			return f
		}
	case "date", "datetime":
		if s, ok := v.(string); ok {
			var y, m, d int
			fmt.Sscanf(s, "%d-%d-%d", &y, &m, &d)
			return types.NewDate(y, m, d)
		}
	case "code":
		if s, ok := v.(string); ok {
			for i := 0; i < len(s); i++ {
				if s[i] == ':' {
					return types.CodedValue{System: types.CodeSystem(wt.System), Value: s[i+1:]}
				}
			}
		}
	}
	return v
}

func toWire(n Node) *wireNode {
	switch v := n.(type) {
	case *SelectTable:
		return &wireNode{Kind: "SelectTable", Table: v.TableName, Schema: toWireSchema(v.Schema)}
	case *SelectPatientTable:
		return &wireNode{Kind: "SelectPatientTable", Table: v.TableName, Schema: toWireSchema(v.Schema)}
	case *InlinePatientTable:
		return &wireNode{Kind: "InlinePatientTable", Rows: v.Rows, Schema: toWireSchema(v.Schema)}
	case *SelectColumn:
		return &wireNode{Kind: "SelectColumn", Source: toWire(v.Source), Column: v.Name, Type: toWireType(v.typ)}
	case *Filter:
		return &wireNode{Kind: "Filter", Source: toWire(v.Source), Condition: toWire(v.Condition)}
	case *Sort:
		return &wireNode{Kind: "Sort", Source: toWire(v.Source), By: toWire(v.By)}
	case *PickOneRowPerPatient:
		w := &wireNode{Kind: "PickOneRowPerPatient", Source: toWire(v.Source), Position: v.Position.String()}
		for _, c := range v.SelectedColumns {
			w.Selected = append(w.Selected, c.Name)
			w.SelectedT = append(w.SelectedT, toWireType(c.typ))
		}
		return w
	case *AggregateExists:
		return &wireNode{Kind: "AggregateExists", Source: toWire(v.Source)}
	case *AggregateCount:
		return &wireNode{Kind: "AggregateCount", Source: toWire(v.Source)}
	case *AggregateValue:
		return &wireNode{Kind: "AggregateValue", AggOp: v.Op.String(), Source: toWire(v.Source)}
	case *Function:
		args := make([]*wireNode, len(v.Args))
		for i, a := range v.Args {
			args[i] = toWire(a)
		}
		return &wireNode{Kind: "Function", Op: v.Op.String(), Args: args}
	case *Case:
		w := &wireNode{Kind: "Case"}
		for _, b := range v.Cases {
			w.Branches = append(w.Branches, wireBranch{Condition: toWire(b.Condition), Value: toWire(b.Value)})
		}
		if v.Default != nil {
			w.Default = toWire(v.Default)
		}
		return w
	case *Value:
		w := &wireNode{Kind: "Value", Type: toWireType(v.typ)}
		if v.IsSet() {
			set := make([]any, len(v.Set))
			for i, e := range v.Set {
				set[i] = toWireLiteral(e)
			}
			w.Set = set
		} else {
			w.Scalar = toWireLiteral(v.Scalar)
		}
		return w
	default:
		panic(fmt.Sprintf("qm: Serialize: unhandled node kind %T", n))
	}
}

var aggValueOps = map[string]ValueAggregateOp{
	"Min": AggMin, "Max": AggMax, "Sum": AggSum, "Mean": AggMean, "CombineAsSet": AggCombineAsSet,
}

var functionOpByName = func() map[string]FunctionOp {
	m := map[string]FunctionOp{}
	for i, name := range functionOpNames {
		m[name] = FunctionOp(i)
	}
	return m
}()

func fromWire(w *wireNode) (Node, error) {
	switch w.Kind {
	case "SelectTable":
		return &SelectTable{TableName: w.Table, Schema: fromWireSchema(w.Schema)}, nil
	case "SelectPatientTable":
		return &SelectPatientTable{TableName: w.Table, Schema: fromWireSchema(w.Schema)}, nil
	case "InlinePatientTable":
		return &InlinePatientTable{Rows: w.Rows, Schema: fromWireSchema(w.Schema)}, nil
	case "SelectColumn":
		src, err := fromWireFrame(w.Source)
		if err != nil {
			return nil, err
		}
		return &SelectColumn{Source: src, Name: w.Column, typ: fromWireType(w.Type)}, nil
	case "Filter":
		src, err := fromWireFrame(w.Source)
		if err != nil {
			return nil, err
		}
		cond, err := fromWireSeries(w.Condition)
		if err != nil {
			return nil, err
		}
		return &Filter{Source: src, Condition: cond}, nil
	case "Sort":
		src, err := fromWireFrame(w.Source)
		if err != nil {
			return nil, err
		}
		by, err := fromWireSeries(w.By)
		if err != nil {
			return nil, err
		}
		return &Sort{Source: src, By: by}, nil
	case "PickOneRowPerPatient":
		src, err := fromWire(w.Source)
		if err != nil {
			return nil, err
		}
		sortNode, ok := src.(*Sort)
		if !ok {
			return nil, fmt.Errorf("qm: Deserialize: PickOneRowPerPatient source must be Sort")
		}
		var pos PickPosition
		if w.Position == "LAST" {
			pos = LAST
		}
		n := &PickOneRowPerPatient{Source: sortNode, Position: pos}
		for i, name := range w.Selected {
			colType := types.Type{}
			if i < len(w.SelectedT) {
				colType = fromWireType(w.SelectedT[i])
			}
			col, err := NewSelectColumn(sortNode, name, colType)
			if err != nil {
				return nil, err
			}
			n.SelectedColumns = append(n.SelectedColumns, col)
		}
		return n, nil
	case "AggregateExists":
		src, err := fromWireFrame(w.Source)
		if err != nil {
			return nil, err
		}
		return &AggregateExists{Source: src}, nil
	case "AggregateCount":
		src, err := fromWireFrame(w.Source)
		if err != nil {
			return nil, err
		}
		return &AggregateCount{Source: src}, nil
	case "AggregateValue":
		src, err := fromWireSeries(w.Source)
		if err != nil {
			return nil, err
		}
		op, ok := aggValueOps[w.AggOp]
		if !ok {
			return nil, fmt.Errorf("qm: Deserialize: unknown aggregate op %q", w.AggOp)
		}
		return NewAggregateValue(op, src)
	case "Function":
		op, ok := functionOpByName[w.Op]
		if !ok {
			return nil, fmt.Errorf("qm: Deserialize: unknown function op %q", w.Op)
		}
		args := make([]SeriesNode, len(w.Args))
		for i, a := range w.Args {
			s, err := fromWireSeries(a)
			if err != nil {
				return nil, err
			}
			args[i] = s
		}
		return NewFunction(op, args...)
	case "Case":
		branches := make([]CaseBranch, len(w.Branches))
		for i, b := range w.Branches {
			cond, err := fromWireSeries(b.Condition)
			if err != nil {
				return nil, err
			}
			val, err := fromWireSeries(b.Value)
			if err != nil {
				return nil, err
			}
			branches[i] = CaseBranch{Condition: cond, Value: val}
		}
		var def SeriesNode
		if w.Default != nil {
			var err error
			def, err = fromWireSeries(w.Default)
			if err != nil {
				return nil, err
			}
		}
		return NewCase(branches, def)
	case "Value":
		if w.Set != nil {
			normalized := make([]any, len(w.Set))
			for i, v := range w.Set {
				normalized[i] = normalizeWireLiteral(v, w.Type)
			}
			return NewSetValue(normalized)
		}
		return NewScalarValue(normalizeWireLiteral(w.Scalar, w.Type))
	default:
		return nil, fmt.Errorf("qm: Deserialize: unknown node kind %q", w.Kind)
	}
}

func fromWireFrame(w *wireNode) (FrameNode, error) {
	n, err := fromWire(w)
	if err != nil {
		return nil, err
	}
	f, ok := n.(FrameNode)
	if !ok {
		return nil, fmt.Errorf("qm: Deserialize: expected a frame node, got %T", n)
	}
	return f, nil
}

func fromWireSeries(w *wireNode) (SeriesNode, error) {
	n, err := fromWire(w)
	if err != nil {
		return nil, err
	}
	s, ok := n.(SeriesNode)
	if !ok {
		return nil, fmt.Errorf("qm: Deserialize: expected a series node, got %T", n)
	}
	return s, nil
}
