package transform

import (
	"fmt"
	"sort"

	"github.com/opensafely-core/ehrql-go/qm"
	"github.com/opensafely-core/ehrql-go/types"
)

// StabilizeSort makes every PickOneRowPerPatient deterministic by
// appending, beneath its existing Sort chain, one tie-breaking Sort
// per selected column not already a direct sort key — in ascending
// name order, so two picks selecting the same columns always break
// ties the same way. It must run after
// AttachSelectedColumns, since it stabilizes on the selected-column
// set that pass populates.
//
// A bool column can't be used as a Sort key directly in either
// principal dialect's ORDER BY the way an int or str can, so it is
// first mapped through a Case to an Int column (null -> 0, false ->
// 1, true -> 2) before being used as a tie-breaker.
func StabilizeSort(roots []qm.Node) ([]qm.Node, error) {
	r := NewRebuilder(func(r *Rebuilder, v *qm.PickOneRowPerPatient) (qm.Node, error) {
		return stabilizePick(r, v)
	})

	out := make([]qm.Node, len(roots))
	for i, root := range roots {
		rebuilt, err := r.Rebuild(root)
		if err != nil {
			return nil, err
		}
		out[i] = rebuilt
	}
	return out, nil
}

func stabilizePick(r *Rebuilder, v *qm.PickOneRowPerPatient) (qm.Node, error) {
	chain, base := unstackSortChain(v.Source)

	used := map[string]bool{}
	for _, s := range chain {
		if sc, ok := s.By.(*qm.SelectColumn); ok && qm.Equal(sc.Source, base) {
			used[sc.Name] = true
		}
	}

	newNames := []string{}
	colType := map[string]types.Type{}
	for _, c := range v.SelectedColumns {
		if !used[c.Name] {
			if _, seen := colType[c.Name]; !seen {
				newNames = append(newNames, c.Name)
			}
			colType[c.Name] = c.ElementType()
		}
	}
	sort.Strings(newNames)

	newBaseNode, err := r.Rebuild(base)
	if err != nil {
		return nil, err
	}
	newBase, ok := newBaseNode.(qm.FrameNode)
	if !ok {
		return nil, fmt.Errorf("transform: stabilize: rebuilt base is not a FrameNode: %T", newBaseNode)
	}

	cur := newBase
	for i := len(newNames) - 1; i >= 0; i-- {
		name := newNames[i]
		col, err := qm.NewSelectColumn(newBase, name, colType[name])
		if err != nil {
			return nil, err
		}
		key, err := tieBreakKey(col)
		if err != nil {
			return nil, err
		}
		s, err := qm.NewSort(cur, key)
		if err != nil {
			return nil, err
		}
		cur = s
	}

	for _, s := range chain {
		by, err := r.rebuildSeries(s.By)
		if err != nil {
			return nil, err
		}
		next, err := qm.NewSort(cur, by)
		if err != nil {
			return nil, err
		}
		cur = next
	}

	newSortSrc, ok := cur.(*qm.Sort)
	if !ok {
		return nil, fmt.Errorf("transform: stabilize: pick has no sort keys after stabilization")
	}

	newCols := make([]*qm.SelectColumn, len(v.SelectedColumns))
	for i, c := range v.SelectedColumns {
		nc, err := qm.NewSelectColumn(newSortSrc, c.Name, c.ElementType())
		if err != nil {
			return nil, err
		}
		newCols[i] = nc
	}

	return v.WithSourceAndSelected(newSortSrc, newCols), nil
}

// unstackSortChain returns the Sort nodes from outer.Source down to
// (but not including) the first non-Sort frame, ordered innermost
// first (closest to base), plus that base frame.
func unstackSortChain(outer *qm.Sort) ([]*qm.Sort, qm.FrameNode) {
	var descending []*qm.Sort
	var cur qm.FrameNode = outer
	for {
		s, ok := cur.(*qm.Sort)
		if !ok {
			return reverseSorts(descending), cur
		}
		descending = append(descending, s)
		cur = s.Source
	}
}

func reverseSorts(s []*qm.Sort) []*qm.Sort {
	out := make([]*qm.Sort, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

// tieBreakKey returns col itself if it is already an orderable sort
// key, or a Case mapping it onto Int (null -> 0, false -> 1, true ->
// 2) if it is bool.
func tieBreakKey(col *qm.SelectColumn) (qm.SeriesNode, error) {
	if col.ElementType().Kind != types.KindBool {
		return col, nil
	}
	isNull, err := qm.NewFunction(qm.OpIsNull, col)
	if err != nil {
		return nil, err
	}
	zero, err := qm.NewScalarValue(0)
	if err != nil {
		return nil, err
	}
	one, err := qm.NewScalarValue(1)
	if err != nil {
		return nil, err
	}
	two, err := qm.NewScalarValue(2)
	if err != nil {
		return nil, err
	}
	return qm.NewCase([]qm.CaseBranch{
		{Condition: isNull, Value: zero},
		{Condition: col, Value: two},
	}, one)
}
