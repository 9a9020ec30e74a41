package sealcrypto

import "fmt"

type ChaumPedersenProof struct {
	// a = w*G
	A Point
	// b = w*c1
	B Point
	// s = w + e*x
	S Scalar
}

const (
	ChaumPedersenProofBytes = 96

	chaumPedersenDomain = "rps/v1/chaum-pedersen-eqdl"
)

// ChaumPedersenProve shows log_G(y) == log_c1(d) == x.
func ChaumPedersenProve(y Point, c1 Point, d Point, x Scalar, w Scalar) (ChaumPedersenProof, error) {
	if w.IsZero() {
		return ChaumPedersenProof{}, fmt.Errorf("chaum-pedersen: w must be non-zero")
	}

	a := MulBase(w)
	b := MulPoint(c1, w)

	e, err := chaumPedersenChallenge(y, c1, d, a, b)
	if err != nil {
		return ChaumPedersenProof{}, err
	}

	s := ScalarAdd(w, ScalarMul(e, x))
	return ChaumPedersenProof{A: a, B: b, S: s}, nil
}

func ChaumPedersenVerify(y Point, c1 Point, d Point, proof ChaumPedersenProof) (bool, error) {
	e, err := chaumPedersenChallenge(y, c1, d, proof.A, proof.B)
	if err != nil {
		return false, err
	}

	// s*G == a + e*y
	if !PointEq(MulBase(proof.S), PointAdd(proof.A, MulPoint(y, e))) {
		return false, nil
	}
	// s*c1 == b + e*d
	if !PointEq(MulPoint(c1, proof.S), PointAdd(proof.B, MulPoint(d, e))) {
		return false, nil
	}
	return true, nil
}

func chaumPedersenChallenge(y, c1, d, a, b Point) (Scalar, error) {
	tr := NewTranscript(chaumPedersenDomain)
	_ = tr.AppendMessage("y", y.Bytes())
	_ = tr.AppendMessage("c1", c1.Bytes())
	_ = tr.AppendMessage("d", d.Bytes())
	_ = tr.AppendMessage("a", a.Bytes())
	_ = tr.AppendMessage("b", b.Bytes())
	return tr.ChallengeScalar("e")
}

// Encoding: A(32) || B(32) || s(32 le)
func EncodeChaumPedersenProof(p ChaumPedersenProof) []byte {
	return concatBytes(p.A.Bytes(), p.B.Bytes(), p.S.Bytes())
}

func DecodeChaumPedersenProof(b []byte) (ChaumPedersenProof, error) {
	if len(b) != ChaumPedersenProofBytes {
		return ChaumPedersenProof{}, fmt.Errorf("chaum-pedersen: expected %d bytes", ChaumPedersenProofBytes)
	}
	r := newReader(b)
	a, err := r.takePoint()
	if err != nil {
		return ChaumPedersenProof{}, err
	}
	bl, err := r.takePoint()
	if err != nil {
		return ChaumPedersenProof{}, err
	}
	s, err := r.takeScalar()
	if err != nil {
		return ChaumPedersenProof{}, err
	}
	return ChaumPedersenProof{A: a, B: bl, S: s}, nil
}
