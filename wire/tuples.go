package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/notargets/GhostGrid/extent"
)

// SizeTripleLen is the encoded size of a SizeTriple
const SizeTripleLen = 4 + 4 + 8

// SizeTriple announces the byte size of one message
type SizeTriple struct {
	Sender   int32
	Receiver int32
	Size     int64
}

// EncodeSizes serializes a rank's outgoing size triples
func EncodeSizes(ts []SizeTriple) []byte {
	buf := make([]byte, 0, len(ts)*SizeTripleLen)
	for _, t := range ts {
		buf = appendInt32(buf, int(t.Sender))
		buf = appendInt32(buf, int(t.Receiver))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(t.Size))
	}
	return buf
}

// DecodeSizes parses the output of EncodeSizes
func DecodeSizes(b []byte) ([]SizeTriple, error) {
	if len(b)%SizeTripleLen != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of size triples", ErrShortBuffer, len(b))
	}
	r := reader{buf: b}
	out := make([]SizeTriple, 0, len(b)/SizeTripleLen)
	for len(r.buf) > 0 {
		t := SizeTriple{Sender: int32(r.i32()), Receiver: int32(r.i32())}
		t.Size = int64(binary.LittleEndian.Uint64(r.take(8)))
		if t.Size < 0 {
			return nil, fmt.Errorf("%w: message size %d", ErrBadCount, t.Size)
		}
		out = append(out, t)
	}
	return out, r.err
}

// GridTupleLen is the encoded size of a GridTuple
const GridTupleLen = 3*4 + 6*4

// GridTuple describes one registered grid to the other ranks. Ratio is the
// refinement ratio from the grid's level to the next, zero when unknown.
type GridTuple struct {
	ID     int32
	Level  int32
	Ratio  int32
	Extent extent.Extent
}

// EncodeGrids serializes a rank's local grid tuples
func EncodeGrids(gs []GridTuple) []byte {
	buf := make([]byte, 0, len(gs)*GridTupleLen)
	for _, g := range gs {
		buf = appendInt32(buf, int(g.ID))
		buf = appendInt32(buf, int(g.Level))
		buf = appendInt32(buf, int(g.Ratio))
		for _, v := range g.Extent {
			buf = appendInt32(buf, v)
		}
	}
	return buf
}

// DecodeGrids parses the output of EncodeGrids
func DecodeGrids(b []byte) ([]GridTuple, error) {
	if len(b)%GridTupleLen != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of grid tuples", ErrShortBuffer, len(b))
	}
	r := reader{buf: b}
	out := make([]GridTuple, 0, len(b)/GridTupleLen)
	for len(r.buf) > 0 {
		g := GridTuple{ID: int32(r.i32()), Level: int32(r.i32()), Ratio: int32(r.i32())}
		for d := range g.Extent {
			g.Extent[d] = r.i32()
		}
		out = append(out, g)
	}
	return out, r.err
}
