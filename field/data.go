package field

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Data is an ordered collection of arrays with unique names, all sharing the
// same tuple count. A nil *Data reads as an empty collection and the zero
// Data is ready to use.
type Data struct {
	arrays []*Array
	index  map[string]int
}

// NewData builds a collection from arrays, panicking on duplicate names
func NewData(arrays ...*Array) *Data {
	fd := &Data{}
	for _, a := range arrays {
		fd.Add(a)
	}
	return fd
}

// Add appends an array
func (fd *Data) Add(a *Array) {
	if _, ok := fd.index[a.Name]; ok {
		panic(fmt.Sprintf("duplicate field array %q", a.Name))
	}
	if fd.index == nil {
		fd.index = make(map[string]int)
	}
	fd.index[a.Name] = len(fd.arrays)
	fd.arrays = append(fd.arrays, a)
}

// Get returns the array called name, or nil
func (fd *Data) Get(name string) *Array {
	if fd == nil {
		return nil
	}
	if i, ok := fd.index[name]; ok {
		return fd.arrays[i]
	}
	return nil
}

// Arrays returns the arrays in insertion order
func (fd *Data) Arrays() []*Array {
	if fd == nil {
		return nil
	}
	return fd.arrays
}

// Len returns the number of arrays
func (fd *Data) Len() int {
	if fd == nil {
		return 0
	}
	return len(fd.arrays)
}

// Names returns the sorted array names
func (fd *Data) Names() []string {
	names := make([]string, 0, fd.Len())
	for _, a := range fd.Arrays() {
		names = append(names, a.Name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every array holds n tuples
func (fd *Data) Validate(n int) error {
	var errs []error
	for _, a := range fd.Arrays() {
		if a.NumberOfTuples() != n {
			errs = append(errs, fmt.Errorf("array %q has %d tuples, expected %d", a.Name, a.NumberOfTuples(), n))
		}
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy
func (fd *Data) Clone() *Data {
	c := NewData()
	for _, a := range fd.Arrays() {
		c.Add(a.Clone())
	}
	return c
}

// NewLike allocates zeroed arrays with the same schemas and n tuples each
func (fd *Data) NewLike(n int) *Data {
	c := NewData()
	for _, a := range fd.Arrays() {
		c.Add(a.NewLike(n))
	}
	return c
}

// Pair couples a destination array with its same-named source
type Pair struct {
	Dst, Src *Array
}

// Match pairs the arrays of dst and src by name. Arrays present on one side
// only are skipped. Incompatible pairs are left out and reported together.
func Match(dst, src *Data) ([]Pair, error) {
	var (
		pairs []Pair
		errs  []error
	)
	for _, d := range dst.Arrays() {
		s := src.Get(d.Name)
		if s == nil {
			continue
		}
		if err := d.Compatible(s); err != nil {
			errs = append(errs, err)
			continue
		}
		pairs = append(pairs, Pair{Dst: d, Src: s})
	}
	return pairs, errors.Join(errs...)
}

// Transfer copies tuple pick[n] of every src array into tuple place[n] of the
// matching dst array. Compatible arrays are copied even when others fail.
func Transfer(dst, src *Data, place, pick []int) error {
	if len(place) != len(pick) {
		panic(fmt.Sprintf("transfer: %d place indices for %d pick indices", len(place), len(pick)))
	}
	pairs, err := Match(dst, src)
	for _, p := range pairs {
		for n := range place {
			p.Dst.CopyTuple(place[n], p.Src, pick[n])
		}
	}
	return err
}

// Gather builds a collection holding the listed tuples of fd in order
func (fd *Data) Gather(pick []int) *Data {
	out := fd.NewLike(len(pick))
	for _, a := range out.Arrays() {
		src := fd.Get(a.Name)
		for n, s := range pick {
			a.CopyTuple(n, src, s)
		}
	}
	return out
}

func (fd *Data) String() string {
	var sb strings.Builder
	for i, a := range fd.Arrays() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s(%v x%d, %d tuples)", a.Name, a.DataType(), a.NumComponents, a.NumberOfTuples())
	}
	return sb.String()
}
