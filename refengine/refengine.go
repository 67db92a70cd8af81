// Package refengine is a test-only, pure-Go interpreter for the Query
// Model: it evaluates a graph directly over in-memory tables instead
// of compiling to SQL, so sqlgen's output against modernc.org/sqlite
// can be checked for agreement against an independent implementation
// of the same semantics. Grounded on ehrQL's own generative test
// suite, which checks its real query engines against a from-scratch
// in-memory evaluator the same way.
package refengine

import (
	"fmt"
	"sort"

	"github.com/opensafely-core/ehrql-go/qm"
	"github.com/opensafely-core/ehrql-go/types"
)

// Row is one materialized row: a patient id plus every column of its
// originating frame, by name. Event-domain frames may have many Rows
// sharing a PatientID; patient-domain frames have at most one.
type Row struct {
	PatientID string
	Cols      map[string]any
}

// Database is the in-memory table set refengine evaluates against,
// keyed by table name exactly as qm.SelectTable/SelectPatientTable
// name them.
type Database struct {
	Tables map[string][]Row
}

// EvalFrame materializes n's rows.
func EvalFrame(n qm.FrameNode, db *Database) ([]Row, error) {
	switch v := n.(type) {
	case *qm.SelectTable:
		return db.Tables[v.TableName], nil
	case *qm.SelectPatientTable:
		return db.Tables[v.TableName], nil
	case *qm.InlinePatientTable:
		return evalInline(v), nil
	case *qm.Filter:
		return evalFilter(v, db)
	case *qm.Sort:
		// Ordering has no effect outside a pick; evaluate the source.
		return EvalFrame(v.Source, db)
	case *qm.PickOneRowPerPatient:
		return evalPick(v, db)
	default:
		return nil, fmt.Errorf("refengine: unhandled frame kind %T", n)
	}
}

func evalInline(v *qm.InlinePatientTable) []Row {
	rows := make([]Row, len(v.Rows))
	for i, r := range v.Rows {
		cols := make(map[string]any, len(v.Schema.Columns))
		for j, col := range v.Schema.Columns {
			if j < len(r) {
				cols[col.Name] = r[j]
			}
		}
		pid, _ := cols["patient_id"].(string)
		rows[i] = Row{PatientID: pid, Cols: cols}
	}
	return rows
}

func evalFilter(v *qm.Filter, db *Database) ([]Row, error) {
	src, err := EvalFrame(v.Source, db)
	if err != nil {
		return nil, err
	}
	var out []Row
	for _, row := range src {
		val, err := EvalSeries(v.Condition, row, db)
		if err != nil {
			return nil, err
		}
		if b, ok := val.(bool); ok && b {
			out = append(out, row)
		}
	}
	return out, nil
}

func evalPick(v *qm.PickOneRowPerPatient, db *Database) ([]Row, error) {
	keys, base, err := unstackSort(v.Source)
	if err != nil {
		return nil, err
	}
	rows, err := EvalFrame(base, db)
	if err != nil {
		return nil, err
	}

	groups := map[string][]Row{}
	var patientOrder []string
	for _, row := range rows {
		if _, seen := groups[row.PatientID]; !seen {
			patientOrder = append(patientOrder, row.PatientID)
		}
		groups[row.PatientID] = append(groups[row.PatientID], row)
	}
	sort.Strings(patientOrder)

	var out []Row
	for _, pid := range patientOrder {
		group := groups[pid]
		sorted, err := sortGroup(group, keys, v.Position, db)
		if err != nil {
			return nil, err
		}
		out = append(out, sorted[0])
	}
	return out, nil
}

// unstackSort descends a Sort chain, returning its keys outermost
// (highest priority) first, plus the non-Sort base frame.
func unstackSort(outer *qm.Sort) ([]qm.SeriesNode, qm.FrameNode, error) {
	var keys []qm.SeriesNode
	var cur qm.FrameNode = outer
	for {
		s, ok := cur.(*qm.Sort)
		if !ok {
			return keys, cur, nil
		}
		keys = append(keys, s.By)
		cur = s.Source
	}
}

func sortGroup(group []Row, keys []qm.SeriesNode, pos qm.PickPosition, db *Database) ([]Row, error) {
	out := append([]Row(nil), group...)
	var sortErr error
	sort.SliceStable(out, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		for _, key := range keys {
			vi, err := EvalSeries(key, out[i], db)
			if err != nil {
				sortErr = err
				return false
			}
			vj, err := EvalSeries(key, out[j], db)
			if err != nil {
				sortErr = err
				return false
			}
			cmp := compareValues(vi, vj)
			if cmp == 0 {
				continue
			}
			if pos == qm.LAST {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return out, nil
}

// compareValues orders nil before any non-nil value, matching
// SQLite's ASC ordering of NULL.
func compareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	switch av := a.(type) {
	case int64:
		bv := toInt64(b)
		return cmpOrdered(av, bv)
	case int:
		return cmpOrdered(int64(av), toInt64(b))
	case float64:
		return cmpOrdered(av, toFloat64(b))
	case string:
		bv, _ := b.(string)
		return cmpOrdered(av, bv)
	case bool:
		bv, _ := b.(bool)
		return cmpOrdered(boolToInt(av), boolToInt(bv))
	case types.DateValue:
		bv, _ := b.(types.DateValue)
		if av.Equal(bv) {
			return 0
		}
		if av.Before(bv) {
			return -1
		}
		return 1
	default:
		return 0
	}
}

func cmpOrdered[T int64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}
