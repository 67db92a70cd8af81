package tempsched

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScheduleOrdersIntoDependencyLayers(t *testing.T) {
	steps := []Step{
		{Name: "c", DependsOn: []string{"a", "b"}},
		{Name: "a"},
		{Name: "b", DependsOn: []string{"a"}},
	}
	layers, breaks := Schedule(steps)
	assert.Empty(t, breaks)
	assert.Equal(t, [][]string{{"a"}, {"b"}, {"c"}}, layers)
}

func TestScheduleGroupsIndependentStepsInOneLayer(t *testing.T) {
	steps := []Step{
		{Name: "x"},
		{Name: "y"},
		{Name: "z", DependsOn: []string{"x", "y"}},
	}
	layers, breaks := Schedule(steps)
	assert.Empty(t, breaks)
	assert.Equal(t, [][]string{{"x", "y"}, {"z"}}, layers)
}

func TestScheduleBreaksCycles(t *testing.T) {
	steps := []Step{
		{Name: "a", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"a"}},
	}
	layers, breaks := Schedule(steps)
	// every step still appears exactly once, across all layers
	seen := map[string]bool{}
	for _, layer := range layers {
		for _, name := range layer {
			seen[name] = true
		}
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true}, seen)
	assert.NotEmpty(t, breaks)
}

func TestScheduleEmptyInput(t *testing.T) {
	layers, breaks := Schedule(nil)
	assert.Empty(t, layers)
	assert.Empty(t, breaks)
}
