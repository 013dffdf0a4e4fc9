package field

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// ErrSchemaMismatch reports arrays with the same name but a different
// element type or component count
var ErrSchemaMismatch = errors.New("field: schema mismatch")

// Array is a named block of fixed-width tuples, one tuple per node or cell
type Array struct {
	Name          string
	NumComponents int
	Values        Values
}

// NewArray wraps v as a field array with nc components per tuple
func NewArray(name string, nc int, v Values) *Array {
	if nc < 1 {
		panic(fmt.Sprintf("array %q: component count must be positive, got %d", name, nc))
	}
	if v.Len()%nc != 0 {
		panic(fmt.Sprintf("array %q: %d values do not divide into %d components", name, v.Len(), nc))
	}
	return &Array{Name: name, NumComponents: nc, Values: v}
}

// NewFloat64Array builds a float64 array
func NewFloat64Array(name string, nc int, v []float64) *Array {
	return NewArray(name, nc, Float64Values(v))
}

// NewInt32Array builds an int32 array
func NewInt32Array(name string, nc int, v []int32) *Array {
	return NewArray(name, nc, Int32Values(v))
}

// DataType returns the element type of the array
func (a *Array) DataType() DataType {
	return a.Values.DataType()
}

// NumberOfTuples returns the number of tuples held
func (a *Array) NumberOfTuples() int {
	return a.Values.Len() / a.NumComponents
}

// Tuple returns tuple t converted to float64
func (a *Array) Tuple(t int) []float64 {
	out := make([]float64, a.NumComponents)
	for c := range out {
		out[c] = a.Values.At(t*a.NumComponents + c)
	}
	return out
}

// Clone returns a deep copy of the array
func (a *Array) Clone() *Array {
	c := a.NewLike(a.NumberOfTuples())
	for t := 0; t < a.NumberOfTuples(); t++ {
		copyTuple(c.Values, a.Values, t, t, a.NumComponents)
	}
	return c
}

// NewLike allocates a zeroed array with the same schema and n tuples
func (a *Array) NewLike(n int) *Array {
	return &Array{
		Name:          a.Name,
		NumComponents: a.NumComponents,
		Values:        MakeValues(a.DataType(), n*a.NumComponents),
	}
}

// Compatible checks that src can be copied into a
func (a *Array) Compatible(src *Array) error {
	if a.DataType() != src.DataType() {
		return fmt.Errorf("%w: array %q is %v, source is %v", ErrSchemaMismatch, a.Name, a.DataType(), src.DataType())
	}
	if a.NumComponents != src.NumComponents {
		return fmt.Errorf("%w: array %q has %d components, source has %d",
			ErrSchemaMismatch, a.Name, a.NumComponents, src.NumComponents)
	}
	return nil
}

// CopyTuple overwrites tuple d with tuple s of src. The arrays must be
// Compatible.
func (a *Array) CopyTuple(d int, src *Array, s int) {
	copyTuple(a.Values, src.Values, d, s, a.NumComponents)
}

// AverageTuples writes the component-wise mean of the listed src tuples into
// tuple d. An empty list leaves tuple d untouched.
func (a *Array) AverageTuples(d int, src *Array, tuples []int) {
	if len(tuples) == 0 {
		return
	}
	nc := a.NumComponents
	buf := make([]float64, len(tuples))
	for c := 0; c < nc; c++ {
		for n, s := range tuples {
			buf[n] = src.Values.At(s*nc + c)
		}
		a.Values.Set(d*nc+c, floats.Sum(buf)/float64(len(tuples)))
	}
}
