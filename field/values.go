package field

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// DataType tags the element type of a field array
type DataType int32

const (
	Uint8 DataType = iota + 1
	Int32
	Int64
	Float32
	Float64
)

var ErrUnknownDataType = errors.New("field: unknown data type")

func (dt DataType) String() string {
	switch dt {
	case Uint8:
		return "uint8"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	}
	return fmt.Sprintf("DataType(%d)", int32(dt))
}

// Valid reports whether dt names a known element type
func (dt DataType) Valid() bool {
	return dt >= Uint8 && dt <= Float64
}

// Size returns the encoded byte width of one element
func (dt DataType) Size() int {
	switch dt {
	case Uint8:
		return 1
	case Int32, Float32:
		return 4
	case Int64, Float64:
		return 8
	}
	panic(fmt.Sprintf("field: no size for %v", dt))
}

// ParseDataType maps a configuration name to its DataType
func ParseDataType(s string) (DataType, error) {
	for _, dt := range []DataType{Uint8, Int32, Int64, Float32, Float64} {
		if dt.String() == s {
			return dt, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDataType, s)
}

// Values is the typed storage behind an Array. The concrete types are
// Uint8Values, Int32Values, Int64Values, Float32Values and Float64Values.
type Values interface {
	DataType() DataType
	Len() int
	At(i int) float64
	Set(i int, v float64)

	sealed()
}

type (
	Uint8Values   []uint8
	Int32Values   []int32
	Int64Values   []int64
	Float32Values []float32
	Float64Values []float64
)

func (Uint8Values) DataType() DataType   { return Uint8 }
func (Int32Values) DataType() DataType   { return Int32 }
func (Int64Values) DataType() DataType   { return Int64 }
func (Float32Values) DataType() DataType { return Float32 }
func (Float64Values) DataType() DataType { return Float64 }

func (v Uint8Values) Len() int   { return len(v) }
func (v Int32Values) Len() int   { return len(v) }
func (v Int64Values) Len() int   { return len(v) }
func (v Float32Values) Len() int { return len(v) }
func (v Float64Values) Len() int { return len(v) }

func (v Uint8Values) At(i int) float64   { return float64(v[i]) }
func (v Int32Values) At(i int) float64   { return float64(v[i]) }
func (v Int64Values) At(i int) float64   { return float64(v[i]) }
func (v Float32Values) At(i int) float64 { return float64(v[i]) }
func (v Float64Values) At(i int) float64 { return v[i] }

func (v Uint8Values) Set(i int, x float64)   { v[i] = uint8(x) }
func (v Int32Values) Set(i int, x float64)   { v[i] = int32(x) }
func (v Int64Values) Set(i int, x float64)   { v[i] = int64(x) }
func (v Float32Values) Set(i int, x float64) { v[i] = float32(x) }
func (v Float64Values) Set(i int, x float64) { v[i] = x }

func (Uint8Values) sealed()   {}
func (Int32Values) sealed()   {}
func (Int64Values) sealed()   {}
func (Float32Values) sealed() {}
func (Float64Values) sealed() {}

// MakeValues allocates n zeroed elements of type dt
func MakeValues(dt DataType, n int) Values {
	switch dt {
	case Uint8:
		return make(Uint8Values, n)
	case Int32:
		return make(Int32Values, n)
	case Int64:
		return make(Int64Values, n)
	case Float32:
		return make(Float32Values, n)
	case Float64:
		return make(Float64Values, n)
	}
	panic(fmt.Sprintf("field: cannot allocate %v", dt))
}

// copyTuple copies tuple s of src over tuple d of dst. Both must hold the
// same concrete type.
func copyTuple(dst, src Values, d, s, nc int) {
	switch dv := dst.(type) {
	case Uint8Values:
		copy(dv[d*nc:(d+1)*nc], src.(Uint8Values)[s*nc:(s+1)*nc])
	case Int32Values:
		copy(dv[d*nc:(d+1)*nc], src.(Int32Values)[s*nc:(s+1)*nc])
	case Int64Values:
		copy(dv[d*nc:(d+1)*nc], src.(Int64Values)[s*nc:(s+1)*nc])
	case Float32Values:
		copy(dv[d*nc:(d+1)*nc], src.(Float32Values)[s*nc:(s+1)*nc])
	case Float64Values:
		copy(dv[d*nc:(d+1)*nc], src.(Float64Values)[s*nc:(s+1)*nc])
	default:
		panic(fmt.Sprintf("field: unhandled values %T", dst))
	}
}

// AppendValues appends the little-endian encoding of v to dst
func AppendValues(dst []byte, v Values) []byte {
	le := binary.LittleEndian
	switch vv := v.(type) {
	case Uint8Values:
		dst = append(dst, vv...)
	case Int32Values:
		for _, x := range vv {
			dst = le.AppendUint32(dst, uint32(x))
		}
	case Int64Values:
		for _, x := range vv {
			dst = le.AppendUint64(dst, uint64(x))
		}
	case Float32Values:
		for _, x := range vv {
			dst = le.AppendUint32(dst, math.Float32bits(x))
		}
	case Float64Values:
		for _, x := range vv {
			dst = le.AppendUint64(dst, math.Float64bits(x))
		}
	default:
		panic(fmt.Sprintf("field: unhandled values %T", v))
	}
	return dst
}

// DecodeValues reads n elements of type dt from src
func DecodeValues(dt DataType, n int, src []byte) (Values, error) {
	switch dt {
	case Uint8, Int32, Int64, Float32, Float64:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownDataType, int32(dt))
	}
	if need := n * dt.Size(); len(src) < need {
		return nil, fmt.Errorf("field: need %d bytes for %d %v values, have %d", need, n, dt, len(src))
	}

	le := binary.LittleEndian
	switch dt {
	case Uint8:
		v := make(Uint8Values, n)
		copy(v, src)
		return v, nil
	case Int32:
		v := make(Int32Values, n)
		for i := range v {
			v[i] = int32(le.Uint32(src[4*i:]))
		}
		return v, nil
	case Int64:
		v := make(Int64Values, n)
		for i := range v {
			v[i] = int64(le.Uint64(src[8*i:]))
		}
		return v, nil
	case Float32:
		v := make(Float32Values, n)
		for i := range v {
			v[i] = math.Float32frombits(le.Uint32(src[4*i:]))
		}
		return v, nil
	default:
		v := make(Float64Values, n)
		for i := range v {
			v[i] = math.Float64frombits(le.Uint64(src[8*i:]))
		}
		return v, nil
	}
}
