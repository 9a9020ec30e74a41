package sealcrypto

import (
	"crypto/rand"
	"fmt"
	"io"
)

// ScalarSource supplies proof nonces and encryption randomness.
type ScalarSource interface {
	NextScalar() (Scalar, error)
}

// RandSource draws uniform scalars from an io.Reader (crypto/rand by default).
type RandSource struct {
	r io.Reader
}

func NewRandSource(r io.Reader) *RandSource {
	if r == nil {
		r = rand.Reader
	}
	return &RandSource{r: r}
}

func (s *RandSource) NextScalar() (Scalar, error) {
	var buf [64]byte
	if _, err := io.ReadFull(s.r, buf[:]); err != nil {
		return Scalar{}, fmt.Errorf("rand: %w", err)
	}
	return ScalarFromUniformBytes(buf[:])
}

// DeterministicRng derives scalars from a seed. Used for reproducible keys and
// test vectors; never for production randomness.
type DeterministicRng struct {
	seed    []byte
	counter uint32
}

func NewDeterministicRng(seed []byte) (*DeterministicRng, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("DeterministicRng: empty seed")
	}
	return &DeterministicRng{seed: append([]byte(nil), seed...)}, nil
}

func (r *DeterministicRng) NextScalar() (Scalar, error) {
	c := u32le(r.counter)
	r.counter++
	return HashToScalar("rps/v1/rng", r.seed, c)
}

// nonZeroScalar retries until src yields a non-zero scalar.
func nonZeroScalar(src ScalarSource) (Scalar, error) {
	for i := 0; i < 8; i++ {
		s, err := src.NextScalar()
		if err != nil {
			return Scalar{}, err
		}
		if !s.IsZero() {
			return s, nil
		}
	}
	return Scalar{}, fmt.Errorf("rng: repeated zero scalar")
}
