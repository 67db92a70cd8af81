package transform

import (
	"sort"

	"github.com/opensafely-core/ehrql-go/qm"
	"github.com/opensafely-core/ehrql-go/types"
)

// AttachSelectedColumns finds every SelectColumn whose Source is a
// PickOneRowPerPatient P — built by a caller projecting some other
// column off P's winning row — and attaches the deduplicated set to a
// rebuilt P as SelectColumn(P.Source, name), where P.Source is P's own
// immediate Sort child. It returns roots rebuilt to
// reference the new picks; roots are normally a dataset's population
// series plus its variable series, so that a column selected off one
// variable's pick is visible to every other variable sharing the same
// pick.
func AttachSelectedColumns(roots []qm.Node) ([]qm.Node, error) {
	needed := map[*qm.PickOneRowPerPatient]map[string]types.Type{}
	for _, root := range roots {
		for _, n := range qm.Find(root, func(n qm.Node) bool {
			_, ok := n.(*qm.SelectColumn)
			return ok
		}) {
			sc := n.(*qm.SelectColumn)
			pick, ok := sc.Source.(*qm.PickOneRowPerPatient)
			if !ok {
				continue
			}
			cols := needed[pick]
			if cols == nil {
				cols = map[string]types.Type{}
				needed[pick] = cols
			}
			cols[sc.Name] = sc.ElementType()
		}
	}

	r := NewRebuilder(func(r *Rebuilder, v *qm.PickOneRowPerPatient) (qm.Node, error) {
		src, err := r.rebuildFrame(v.Source)
		if err != nil {
			return nil, err
		}
		sortSrc := src.(*qm.Sort)

		names := sortedNames(needed[v])
		cols := make([]*qm.SelectColumn, 0, len(names))
		for _, name := range names {
			col, err := qm.NewSelectColumn(sortSrc, name, needed[v][name])
			if err != nil {
				return nil, err
			}
			cols = append(cols, col)
		}
		return v.WithSourceAndSelected(sortSrc, cols), nil
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

func sortedNames(m map[string]types.Type) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
