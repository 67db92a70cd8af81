// Package transform implements the QM-graph-wide passes that run
// between dataset construction and SQL lowering: attaching the
// selected-column set a PickOneRowPerPatient needs to expose its
// winning row's other columns, and stabilizing each pick's Sort chain
// so ties are broken deterministically.
//
// Both passes rebuild rather than mutate, per the "pure rebuild"
// alternative described in qm's package doc: a Rebuilder walks a
// graph bottom-up, memoizing old-node-to-new-node by pointer identity,
// so every other reference to a changed node — wherever it occurs in
// the graph, including nodes the pass never visited directly — picks
// up the replacement automatically once the memo entry exists.
package transform

import (
	"fmt"

	"github.com/opensafely-core/ehrql-go/qm"
)

// Rebuilder reconstructs a QM graph node-by-node, substituting
// whatever onPick produces for each PickOneRowPerPatient it meets.
// Every other node kind is rebuilt generically from its (already
// rebuilt) children, by pointer identity.
type Rebuilder struct {
	memo   map[qm.Node]qm.Node
	onPick func(r *Rebuilder, v *qm.PickOneRowPerPatient) (qm.Node, error)
}

func NewRebuilder(onPick func(r *Rebuilder, v *qm.PickOneRowPerPatient) (qm.Node, error)) *Rebuilder {
	return &Rebuilder{memo: make(map[qm.Node]qm.Node), onPick: onPick}
}

// Rebuild returns the rebuilt form of n, reusing a prior result for
// the same pointer identity if one has already been computed.
func (r *Rebuilder) Rebuild(n qm.Node) (qm.Node, error) {
	if n == nil {
		return nil, nil
	}
	if cached, ok := r.memo[n]; ok {
		return cached, nil
	}
	result, err := r.rebuildOnce(n)
	if err != nil {
		return nil, err
	}
	r.memo[n] = result
	return result, nil
}

func (r *Rebuilder) rebuildFrame(n qm.FrameNode) (qm.FrameNode, error) {
	rebuilt, err := r.Rebuild(n)
	if err != nil {
		return nil, err
	}
	f, ok := rebuilt.(qm.FrameNode)
	if !ok {
		return nil, fmt.Errorf("transform: rebuilt node is not a FrameNode: %T", rebuilt)
	}
	return f, nil
}

func (r *Rebuilder) rebuildSeries(n qm.SeriesNode) (qm.SeriesNode, error) {
	rebuilt, err := r.Rebuild(n)
	if err != nil {
		return nil, err
	}
	s, ok := rebuilt.(qm.SeriesNode)
	if !ok {
		return nil, fmt.Errorf("transform: rebuilt node is not a SeriesNode: %T", rebuilt)
	}
	return s, nil
}

func (r *Rebuilder) rebuildOnce(n qm.Node) (qm.Node, error) {
	switch v := n.(type) {
	case *qm.SelectTable, *qm.SelectPatientTable, *qm.InlinePatientTable:
		return n, nil

	case *qm.SelectColumn:
		src, err := r.rebuildFrame(v.Source)
		if err != nil {
			return nil, err
		}
		if src == v.Source {
			return v, nil
		}
		return qm.NewSelectColumn(src, v.Name, v.ElementType())

	case *qm.Filter:
		src, err := r.rebuildFrame(v.Source)
		if err != nil {
			return nil, err
		}
		cond, err := r.rebuildSeries(v.Condition)
		if err != nil {
			return nil, err
		}
		if src == v.Source && cond == v.Condition {
			return v, nil
		}
		return qm.NewFilter(src, cond)

	case *qm.Sort:
		src, err := r.rebuildFrame(v.Source)
		if err != nil {
			return nil, err
		}
		by, err := r.rebuildSeries(v.By)
		if err != nil {
			return nil, err
		}
		if src == v.Source && by == v.By {
			return v, nil
		}
		return qm.NewSort(src, by)

	case *qm.PickOneRowPerPatient:
		return r.onPick(r, v)

	case *qm.AggregateExists:
		src, err := r.rebuildFrame(v.Source)
		if err != nil {
			return nil, err
		}
		if src == v.Source {
			return v, nil
		}
		return qm.NewAggregateExists(src)

	case *qm.AggregateCount:
		src, err := r.rebuildFrame(v.Source)
		if err != nil {
			return nil, err
		}
		if src == v.Source {
			return v, nil
		}
		return qm.NewAggregateCount(src)

	case *qm.AggregateValue:
		src, err := r.rebuildSeries(v.Source)
		if err != nil {
			return nil, err
		}
		if src == v.Source {
			return v, nil
		}
		return qm.NewAggregateValue(v.Op, src)

	case *qm.Function:
		args := make([]qm.SeriesNode, len(v.Args))
		changed := false
		for i, a := range v.Args {
			na, err := r.rebuildSeries(a)
			if err != nil {
				return nil, err
			}
			if na != a {
				changed = true
			}
			args[i] = na
		}
		if !changed {
			return v, nil
		}
		return qm.NewFunction(v.Op, args...)

	case *qm.Case:
		branches := make([]qm.CaseBranch, len(v.Cases))
		changed := false
		for i, b := range v.Cases {
			cond, err := r.rebuildSeries(b.Condition)
			if err != nil {
				return nil, err
			}
			val, err := r.rebuildSeries(b.Value)
			if err != nil {
				return nil, err
			}
			if cond != b.Condition || val != b.Value {
				changed = true
			}
			branches[i] = qm.CaseBranch{Condition: cond, Value: val}
		}
		var def qm.SeriesNode
		if v.Default != nil {
			d, err := r.rebuildSeries(v.Default)
			if err != nil {
				return nil, err
			}
			if d != v.Default {
				changed = true
			}
			def = d
		}
		if !changed {
			return v, nil
		}
		return qm.NewCase(branches, def)

	case *qm.Value:
		return n, nil

	default:
		return nil, fmt.Errorf("transform: unhandled node kind %T", n)
	}
}
