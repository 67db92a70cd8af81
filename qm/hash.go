package qm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Hash returns a deterministic structural fingerprint of n: two nodes
// built from the same kind, the same local fields, and
// structurally-equal children hash identically, so two nodes are
// equal iff structurally identical. It is memoized per process run
// via a pointer-keyed cache since a DAG's shared subexpressions are
// hashed repeatedly otherwise.
func Hash(n Node) string {
	if n == nil {
		return "nil"
	}
	if h, ok := hashCache.get(n); ok {
		return h
	}
	sum := sha256.Sum256([]byte(canonicalize(n)))
	h := hex.EncodeToString(sum[:])
	hashCache.set(n, h)
	return h
}

// Equal reports whether a and b are structurally identical QM nodes.
func Equal(a, b Node) bool {
	return Hash(a) == Hash(b)
}

type hashMemo struct {
	m map[Node]string
}

var hashCache = &hashMemo{m: map[Node]string{}}

func (h *hashMemo) get(n Node) (string, bool) {
	v, ok := h.m[n]
	return v, ok
}

func (h *hashMemo) set(n Node, v string) {
	h.m[n] = v
}

func canonicalize(n Node) string {
	var b strings.Builder
	writeNode(&b, n)
	return b.String()
}

func writeNode(b *strings.Builder, n Node) {
	if n == nil {
		b.WriteString("<nil>")
		return
	}
	fmt.Fprintf(b, "%s(", n.Kind())
	b.WriteString(localFields(n))
	for i, c := range n.Children() {
		if i > 0 || localFields(n) != "" {
			b.WriteString(";")
		}
		writeNode(b, c)
	}
	b.WriteString(")")
}

// localFields renders the non-child, node-specific data that
// participates in structural equality (names, operators, literal
// values, schemas) but is not itself a Node.
func localFields(n Node) string {
	switch v := n.(type) {
	case *SelectTable:
		return fmt.Sprintf("table=%s", v.TableName)
	case *SelectPatientTable:
		return fmt.Sprintf("table=%s", v.TableName)
	case *InlinePatientTable:
		return fmt.Sprintf("rows=%v schema=%s", v.Rows, v.Schema.Name)
	case *SelectColumn:
		return fmt.Sprintf("col=%s", v.Name)
	case *Filter:
		return ""
	case *Sort:
		return ""
	case *PickOneRowPerPatient:
		cols := make([]string, 0, len(v.SelectedColumns))
		for _, c := range v.SelectedColumns {
			cols = append(cols, c.Name)
		}
		sort.Strings(cols)
		return fmt.Sprintf("pos=%d selected=%v", v.Position, cols)
	case *AggregateExists:
		return ""
	case *AggregateCount:
		return ""
	case *AggregateValue:
		return fmt.Sprintf("op=%d", v.Op)
	case *Function:
		return fmt.Sprintf("op=%d", v.Op)
	case *Case:
		return fmt.Sprintf("hasDefault=%v", v.Default != nil)
	case *Value:
		return fmt.Sprintf("scalar=%v set=%v type=%s", v.Scalar, v.Set, v.typ)
	default:
		return ""
	}
}
