package builder

import (
	"fmt"
	"sort"

	"github.com/opensafely-core/ehrql-go/qm"
	"github.com/opensafely-core/ehrql-go/transform"
)

// Dataset is a study definition under construction: a population
// condition plus the named variables extracted for every patient
// satisfying it.
type Dataset struct {
	population qm.SeriesNode
	variables  map[string]qm.SeriesNode
	err        error
}

func NewDataset() *Dataset {
	return &Dataset{variables: map[string]qm.SeriesNode{}}
}

// DefinePopulation sets the dataset's population, validated against
// the "Population invalid" error class.
func (d *Dataset) DefinePopulation(pop Series) *Dataset {
	if d.err != nil {
		return d
	}
	if pop.err != nil {
		d.err = pop.err
		return d
	}
	if err := qm.ValidatePopulation(pop.node); err != nil {
		d.err = err
		return d
	}
	d.population = pop.node
	return d
}

// AddVariable attaches a named output column. A variable name cannot
// be reused.
func (d *Dataset) AddVariable(name string, s Series) *Dataset {
	if d.err != nil {
		return d
	}
	if s.err != nil {
		d.err = s.err
		return d
	}
	if _, exists := d.variables[name]; exists {
		d.err = fmt.Errorf("builder: variable %q already defined", name)
		return d
	}
	d.variables[name] = s.node
	return d
}

// Build validates the dataset is complete, runs the AttachSelectedColumns
// and StabilizeSort passes across the population plus every variable,
// and returns the finished graph ready for sqlgen.
func (d *Dataset) Build() (population qm.SeriesNode, variables map[string]qm.SeriesNode, err error) {
	if d.err != nil {
		return nil, nil, d.err
	}
	if d.population == nil {
		return nil, nil, fmt.Errorf("builder: dataset has no population")
	}

	names := make([]string, 0, len(d.variables))
	for name := range d.variables {
		names = append(names, name)
	}
	sort.Strings(names)

	roots := make([]qm.Node, 0, len(names)+1)
	roots = append(roots, d.population)
	for _, name := range names {
		roots = append(roots, d.variables[name])
	}

	roots, err = transform.AttachSelectedColumns(roots)
	if err != nil {
		return nil, nil, fmt.Errorf("builder: attaching selected columns: %w", err)
	}
	roots, err = transform.StabilizeSort(roots)
	if err != nil {
		return nil, nil, fmt.Errorf("builder: stabilizing sort: %w", err)
	}

	population = roots[0].(qm.SeriesNode)
	variables = make(map[string]qm.SeriesNode, len(names))
	for i, name := range names {
		variables[name] = roots[i+1].(qm.SeriesNode)
	}
	return population, variables, nil
}
