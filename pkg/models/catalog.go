package models

import (
	"errors"
	"fmt"
	"slices"
)

// MaxGridSize caps the number of combinations a single method may declare.
const MaxGridSize = 64

// Axis is one tunable hyperparameter and its ordered candidate values.
type Axis struct {
	Name   string
	Values []float64
}

// Grid is an ordered set of axes. The order of axes and values defines the
// enumeration order used to break grid search ties.
type Grid []Axis

// Size returns the number of combinations in the grid (1 for an empty grid).
func (g Grid) Size() int {
	n := 1
	for _, a := range g {
		n *= len(a.Values)
	}
	return n
}

// Combinations enumerates the Cartesian product of the grid. Each combination
// starts from a copy of base, so parameters without an axis keep their
// default. The last axis varies fastest.
func (g Grid) Combinations(base Params) []Params {
	out := []Params{base.Clone()}
	for _, axis := range g {
		next := make([]Params, 0, len(out)*len(axis.Values))
		for _, p := range out {
			for _, v := range axis.Values {
				c := p.Clone()
				c[axis.Name] = v
				next = append(next, c)
			}
		}
		out = next
	}
	return out
}

// Spec binds a method to its default parameters and search grid.
type Spec struct {
	Method   Method
	Defaults Params
	Grid     Grid
}

// Name returns the method's name.
func (s Spec) Name() string {
	return s.Method.Name()
}

// Catalog is the ordered, read-only list of methods available to the engine.
// Order matters: earlier entries win exact ties during model selection.
type Catalog struct {
	specs []Spec
}

// NewCatalog validates specs and builds a catalog.
//
// Grids must not exceed MaxGridSize combinations, and every default value must
// be one of its axis' candidates so grid search always evaluates the defaults.
func NewCatalog(specs ...Spec) (*Catalog, error) {
	if len(specs) == 0 {
		return nil, errors.New("catalog must contain at least one method")
	}

	seen := make(map[string]bool, len(specs))
	for i, s := range specs {
		if s.Method == nil {
			return nil, fmt.Errorf("catalog[%d]: method cannot be nil", i)
		}
		name := s.Name()
		if name == "" {
			return nil, fmt.Errorf("catalog[%d]: method name cannot be empty", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("catalog[%d]: duplicate method %q", i, name)
		}
		seen[name] = true

		if size := s.Grid.Size(); size > MaxGridSize {
			return nil, fmt.Errorf("method %q: grid has %d combinations, max is %d", name, size, MaxGridSize)
		}
		for _, axis := range s.Grid {
			if len(axis.Values) == 0 {
				return nil, fmt.Errorf("method %q: axis %q has no values", name, axis.Name)
			}
			def, ok := s.Defaults[axis.Name]
			if !ok {
				return nil, fmt.Errorf("method %q: axis %q has no default", name, axis.Name)
			}
			if !slices.Contains(axis.Values, def) {
				return nil, fmt.Errorf("method %q: default %s=%v is not in the grid", name, axis.Name, def)
			}
		}
	}

	return &Catalog{specs: slices.Clone(specs)}, nil
}

// DefaultCatalog returns the standard method catalog.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(
		Spec{Method: Naive{}},
		Spec{
			Method:   SeasonalNaive{},
			Defaults: Params{"season_length": 7},
			Grid:     Grid{{Name: "season_length", Values: []float64{4, 7, 12, 30}}},
		},
		Spec{
			Method:   MovingAverage{},
			Defaults: Params{"window": 7},
			Grid:     Grid{{Name: "window", Values: []float64{3, 5, 7, 14, 30}}},
		},
		Spec{Method: LinearTrend{}},
		Spec{
			Method:   SimpleExponentialSmoothing{},
			Defaults: Params{"alpha": 0.3},
			Grid:     Grid{{Name: "alpha", Values: []float64{0.1, 0.2, 0.3, 0.5, 0.7, 0.9}}},
		},
		Spec{
			Method:   Holt{},
			Defaults: Params{"alpha": 0.8, "beta": 0.2},
			Grid: Grid{
				{Name: "alpha", Values: []float64{0.2, 0.4, 0.6, 0.8}},
				{Name: "beta", Values: []float64{0.1, 0.2, 0.3, 0.5}},
			},
		},
		Spec{
			Method:   HoltWinters{},
			Defaults: Params{"alpha": 0.5, "beta": 0.1, "gamma": 0.1, "season_length": 7},
			Grid: Grid{
				{Name: "alpha", Values: []float64{0.2, 0.5, 0.8}},
				{Name: "beta", Values: []float64{0.1, 0.3}},
				{Name: "gamma", Values: []float64{0.1, 0.3}},
				{Name: "season_length", Values: []float64{7, 12}},
			},
		},
		Spec{
			Method:   ARIMA{},
			Defaults: Params{"p": 1, "d": 1, "q": 1},
			Grid: Grid{
				{Name: "p", Values: []float64{0, 1, 2}},
				{Name: "d", Values: []float64{0, 1, 2}},
				{Name: "q", Values: []float64{0, 1}},
			},
		},
	)
	if err != nil {
		panic(fmt.Sprintf("default catalog: %v", err))
	}
	return c
}

// Specs returns the catalog entries in order.
func (c *Catalog) Specs() []Spec {
	return slices.Clone(c.specs)
}

// Len returns the number of methods.
func (c *Catalog) Len() int {
	return len(c.specs)
}

// Lookup returns the spec with the given name.
func (c *Catalog) Lookup(name string) (Spec, bool) {
	for _, s := range c.specs {
		if s.Name() == name {
			return s, true
		}
	}
	return Spec{}, false
}

// LargestGrid returns the combination count of the largest grid in the catalog.
func (c *Catalog) LargestGrid() int {
	n := 0
	for _, s := range c.specs {
		n = max(n, s.Grid.Size())
	}
	return n
}
