// Package tempsched schedules staging ("temp") table builds into
// dependency-ordered batches, so cmd/ehrql's materializeStaging can
// create each step's staging table in layer order, every dependency
// before the steps that read it. It generalizes sqldef's schema/tsort.go
// topological sort (there, ordering ALTER statements so a referenced
// table exists before the statement that references it) from a
// single linear order to BFS depth layers, since unrelated staging
// tables at the same depth can be created in one batch rather than
// forced into an arbitrary total order.
package tempsched

import (
	"sort"
)

// Step is one staging table to be materialized, named and depending
// on zero or more other staging tables by name.
type Step struct {
	Name      string
	DependsOn []string
}

// Break records a dependency edge tempsched had to drop to make
// progress, because following it would have required a step already
// scheduled (a cycle). This only arises from a self-referencing setup
// query (e.g. a PickOneRowPerPatient whose own staged result feeds a
// later stage of building itself); Schedule always terminates by
// dropping the offending edge rather than rejecting the whole plan.
type Break struct {
	Step string
	On   string
}

// Schedule orders steps into depth layers: every step in layer i
// depends only on steps in layers < i. Within a layer, names are
// sorted for deterministic output. Returns any edges it had to break
// to resolve a cycle.
func Schedule(steps []Step) (layers [][]string, breaks []Break) {
	dependsOn := make(map[string][]string, len(steps))
	order := make([]string, 0, len(steps))
	for _, s := range steps {
		dependsOn[s.Name] = append([]string(nil), s.DependsOn...)
		order = append(order, s.Name)
	}

	scheduled := make(map[string]bool, len(steps))
	remaining := len(steps)

	for remaining > 0 {
		var layer []string
		for _, name := range order {
			if scheduled[name] {
				continue
			}
			if allScheduled(dependsOn[name], scheduled) {
				layer = append(layer, name)
			}
		}
		if len(layer) == 0 {
			// Cycle: nothing is unblocked. Break the cycle by forcing
			// forward the step with the fewest unresolved
			// dependencies, dropping whichever of its dependencies is
			// itself unscheduled.
			name, dropped := pickBreak(order, dependsOn, scheduled)
			breaks = append(breaks, dropped...)
			layer = []string{name}
		}
		sort.Strings(layer)
		for _, name := range layer {
			scheduled[name] = true
			remaining--
		}
		layers = append(layers, layer)
	}
	return layers, breaks
}

func allScheduled(deps []string, scheduled map[string]bool) bool {
	for _, d := range deps {
		if !scheduled[d] {
			return false
		}
	}
	return true
}

// pickBreak selects the unscheduled step with the fewest unresolved
// dependencies and drops all of them, recording a Break per dropped
// edge.
func pickBreak(order []string, dependsOn map[string][]string, scheduled map[string]bool) (string, []Break) {
	best := ""
	bestCount := -1
	for _, name := range order {
		if scheduled[name] {
			continue
		}
		count := 0
		for _, d := range dependsOn[name] {
			if !scheduled[d] {
				count++
			}
		}
		if bestCount == -1 || count < bestCount {
			best = name
			bestCount = count
		}
	}
	var breaks []Break
	for _, d := range dependsOn[best] {
		if !scheduled[d] {
			breaks = append(breaks, Break{Step: best, On: d})
		}
	}
	return best, breaks
}
