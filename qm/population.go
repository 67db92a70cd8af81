package qm

import "github.com/opensafely-core/ehrql-go/types"

// ValidatePopulation checks the distinguished population series
// against the "Population invalid" error class: it must be patient
// domain, bool-typed, and not the trivial constant Value(true) — a
// dataset defined with an always-true population would silently
// include every patient ever seen by any backend table, including
// ones absent from every source the dataset actually queries, which
// is never what a study definition intends.
func ValidatePopulation(n SeriesNode) error {
	if n.ElementType().Kind != types.KindBool {
		return &PopulationError{Reason: "population must be a bool series, got " + n.ElementType().String()}
	}
	if !HasOneRowPerPatient(n) {
		return &PopulationError{Reason: "population must be patient-domain"}
	}
	if v, ok := n.(*Value); ok && !v.IsSet() {
		if b, ok := v.Scalar.(bool); ok && b {
			return &PopulationError{Reason: "population cannot be the constant true"}
		}
	}
	return nil
}
