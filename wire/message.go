// Package wire encodes the ghost data messages exchanged between ranks.
// All integers and floats are little endian.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/notargets/GhostGrid/extent"
	"github.com/notargets/GhostGrid/field"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrShortBuffer   = errors.New("wire: short buffer")
	ErrTrailingBytes = errors.New("wire: trailing bytes after message")
	ErrBadCount      = errors.New("wire: negative count")
)

// HeaderLen is the encoded size of a Header
const HeaderLen = 4 + 4 + 6*4

// Header addresses a message and carries the node extent its blocks cover
type Header struct {
	Sender   int32
	Receiver int32
	Extent   extent.Extent
}

// Message is one grid's ghost payload for one neighbor. Node blocks are laid
// out over Header.Extent; cell blocks over the cells the sender holds inside
// it.
type Message struct {
	Header
	Points   *mat.Dense // Optional, one row per node
	NodeData *field.Data
	CellData *field.Data
}

// Size returns the encoded length of m in bytes
func (m Message) Size() int {
	n := HeaderLen + 1
	if m.Points != nil {
		r, _ := m.Points.Dims()
		n += 4 + 3*8*r
	}
	return n + blockSize(m.NodeData) + blockSize(m.CellData)
}

func blockSize(fd *field.Data) int {
	n := 4
	for _, a := range fd.Arrays() {
		n += 4*4 + len(a.Name) + a.Values.Len()*a.DataType().Size()
	}
	return n
}

// Encode serializes m
func Encode(m Message) []byte {
	buf := make([]byte, 0, m.Size())
	buf = appendHeader(buf, m.Header)

	if m.Points == nil {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		r, _ := m.Points.Dims()
		buf = appendInt32(buf, r)
		for i := 0; i < r; i++ {
			for _, x := range m.Points.RawRowView(i) {
				buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(x))
			}
		}
	}

	buf = appendBlock(buf, m.NodeData)
	return appendBlock(buf, m.CellData)
}

func appendHeader(buf []byte, h Header) []byte {
	buf = appendInt32(buf, int(h.Sender))
	buf = appendInt32(buf, int(h.Receiver))
	for _, v := range h.Extent {
		buf = appendInt32(buf, v)
	}
	return buf
}

func appendBlock(buf []byte, fd *field.Data) []byte {
	arrays := fd.Arrays()
	buf = appendInt32(buf, len(arrays))
	for _, a := range arrays {
		buf = appendInt32(buf, int(a.DataType()))
		buf = appendInt32(buf, a.NumberOfTuples())
		buf = appendInt32(buf, a.NumComponents)
		buf = appendInt32(buf, len(a.Name))
		buf = append(buf, a.Name...)
		buf = field.AppendValues(buf, a.Values)
	}
	return buf
}

func appendInt32(buf []byte, v int) []byte {
	return binary.LittleEndian.AppendUint32(buf, uint32(int32(v)))
}

// Decode parses a message produced by Encode
func Decode(b []byte) (Message, error) {
	r := reader{buf: b}
	var m Message
	m.Header = r.header()

	switch r.u8() {
	case 0:
	case 1:
		n := r.count()
		if r.err == nil {
			raw := r.take(3 * 8 * n)
			if r.err == nil && n > 0 {
				pts := make([]float64, 3*n)
				for i := range pts {
					pts[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
				}
				m.Points = mat.NewDense(n, 3, pts)
			}
		}
	default:
		if r.err == nil {
			r.err = fmt.Errorf("wire: bad points flag")
		}
	}

	m.NodeData = r.block("node")
	m.CellData = r.block("cell")
	if r.err != nil {
		return Message{}, r.err
	}
	if len(r.buf) != 0 {
		return Message{}, fmt.Errorf("%w: %d", ErrTrailingBytes, len(r.buf))
	}
	return m, nil
}

// DecodeHeader reads only the header of an encoded message
func DecodeHeader(b []byte) (Header, error) {
	r := reader{buf: b}
	h := r.header()
	return h, r.err
}

// reader consumes a buffer and keeps the first error
type reader struct {
	buf []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n > len(r.buf) {
		r.err = fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, n, len(r.buf))
		return nil
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out
}

func (r *reader) u8() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) i32() int {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int(int32(binary.LittleEndian.Uint32(b)))
}

func (r *reader) count() int {
	n := r.i32()
	if n < 0 && r.err == nil {
		r.err = fmt.Errorf("%w: %d", ErrBadCount, n)
		return 0
	}
	return n
}

func (r *reader) header() Header {
	h := Header{Sender: int32(r.i32()), Receiver: int32(r.i32())}
	for d := range h.Extent {
		h.Extent[d] = r.i32()
	}
	return h
}

func (r *reader) block(kind string) *field.Data {
	fd := field.NewData()
	n := r.count()
	for a := 0; a < n && r.err == nil; a++ {
		dt := field.DataType(r.i32())
		tuples := r.count()
		nc := r.count()
		name := string(r.take(r.count()))
		if r.err != nil {
			break
		}
		if !dt.Valid() {
			r.err = fmt.Errorf("wire: %s array %q: %w: %d", kind, name, field.ErrUnknownDataType, int32(dt))
			break
		}
		if nc < 1 {
			r.err = fmt.Errorf("wire: %s array %q: %d components", kind, name, nc)
			break
		}
		if tuples > len(r.buf)/dt.Size()/nc {
			r.err = fmt.Errorf("%w: %s array %q needs %d tuples of %d components, have %d bytes",
				ErrShortBuffer, kind, name, tuples, nc, len(r.buf))
			break
		}
		raw := r.take(tuples * nc * dt.Size())
		if r.err != nil {
			break
		}
		vals, err := field.DecodeValues(dt, tuples*nc, raw)
		if err != nil {
			r.err = fmt.Errorf("wire: %s array %q: %w", kind, name, err)
			break
		}
		if fd.Get(name) != nil {
			r.err = fmt.Errorf("wire: duplicate %s array %q", kind, name)
			break
		}
		fd.Add(field.NewArray(name, nc, vals))
	}
	return fd
}
