package sealcrypto

import (
	"encoding/binary"
	"fmt"
)

func u32le(x uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, x)
	return b
}

func concatBytes(chunks ...[]byte) []byte {
	var n int
	for _, c := range chunks {
		n += len(c)
	}
	out := make([]byte, 0, n)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

type reader struct {
	bytes []byte
	off   int
}

func newReader(b []byte) *reader {
	return &reader{bytes: b}
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("reader.take: invalid n")
	}
	if r.off+n > len(r.bytes) {
		return nil, fmt.Errorf("reader: out of bounds")
	}
	out := r.bytes[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *reader) takeU8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) takePoint() (Point, error) {
	b, err := r.take(PointBytes)
	if err != nil {
		return Point{}, err
	}
	return PointFromBytesCanonical(b)
}

func (r *reader) takeScalar() (Scalar, error) {
	b, err := r.take(ScalarBytes)
	if err != nil {
		return Scalar{}, err
	}
	return ScalarFromBytesCanonical(b)
}

func (r *reader) done() bool {
	return r.off == len(r.bytes)
}
