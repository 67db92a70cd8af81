// Package qm implements ehrQL's Query Model: an immutable, strongly
// typed, structurally hashable tagged-variant node graph together
// with construction-time validation of every operator's type and
// domain constraints.
//
// Every node kind is a distinct Go struct implementing Node through a
// pointer receiver, so pointer identity gives an identity-addressed
// container without needing an explicit identity-wrapper type: a
// map[Node]X keyed on these pointer-typed interface values is already
// identity-keyed. Node construction itself is pure; nothing is ever
// mutated in place afterward (see transform.Rebuilder.Rebuild in
// package transform, which rebuilds a graph bottom-up rather than mutating
// nodes in place and re-hashing).
package qm

import (
	"fmt"

	"github.com/opensafely-core/ehrql-go/types"
)

// NodeKind tags the variant of a Node for exhaustive switches in the
// lowerer, transforms, and serializer.
type NodeKind int

const (
	KindSelectTable NodeKind = iota
	KindSelectPatientTable
	KindInlinePatientTable
	KindSelectColumn
	KindFilter
	KindSort
	KindPickOneRowPerPatient
	KindAggregateExists
	KindAggregateCount
	KindAggregateValue
	KindFunction
	KindCase
	KindValue
)

func (k NodeKind) String() string {
	names := [...]string{
		"SelectTable", "SelectPatientTable", "InlinePatientTable",
		"SelectColumn", "Filter", "Sort", "PickOneRowPerPatient",
		"AggregateExists", "AggregateCount", "AggregateValue",
		"Function", "Case", "Value",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// Node is the sealed interface implemented by every QM node kind.
// Children returns direct node references for generic traversal
// (hashing, rewriting, domain inference); it never returns nil
// entries.
type Node interface {
	Kind() NodeKind
	Children() []Node
}

// FrameNode is a Node producing a set of rows over a schema: a table
// source, a filtered/sorted event frame, or a one-row-per-patient
// pick.
type FrameNode interface {
	Node
	isFrame()
}

// SeriesNode is a Node producing one value per row of its domain.
type SeriesNode interface {
	Node
	ElementType() types.Type
	isSeries()
}

// Walk calls visit for n and every node reachable from it exactly
// once per distinct pointer identity (shared subexpressions are not
// revisited), pre-order.
func Walk(n Node, visit func(Node)) {
	seen := make(map[Node]bool)
	var walk func(Node)
	walk = func(n Node) {
		if n == nil || seen[n] {
			return
		}
		seen[n] = true
		visit(n)
		for _, c := range n.Children() {
			walk(c)
		}
	}
	walk(n)
}

// Find returns every node reachable from root for which pred returns
// true, pointer-deduplicated.
func Find(root Node, pred func(Node) bool) []Node {
	var out []Node
	Walk(root, func(n Node) {
		if pred(n) {
			out = append(out, n)
		}
	})
	return out
}
