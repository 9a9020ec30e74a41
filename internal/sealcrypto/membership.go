package sealcrypto

import (
	"fmt"
	"strconv"
)

const (
	domainMembership = "rps/v1/input/membership-or"

	// MaxMembershipBound caps the domain size an input proof may cover.
	MaxMembershipBound = 16

	membershipBranchBytes = 4 * 32
)

// ProofBinding ties an input proof to the ledger instance and the account
// submitting it, so it cannot be replayed elsewhere.
type ProofBinding struct {
	Contract string
	User     string
}

// MembershipProof shows that an exponential ElGamal ciphertext encrypts some
// m in [0, bound) without revealing which. Branch i proves knowledge of r with
// c1 = r*G and c2 - i*G = r*Y; all but the true branch are simulated and the
// branch challenges sum to the transcript challenge.
type MembershipProof struct {
	E  []Scalar
	T1 []Point
	T2 []Point
	Z  []Scalar
}

func membershipChallenge(bind ProofBinding, pk Point, ct Ciphertext, t1 []Point, t2 []Point) (Scalar, error) {
	tr := NewTranscript(domainMembership)
	_ = tr.AppendMessage("contract", []byte(bind.Contract))
	_ = tr.AppendMessage("user", []byte(bind.User))
	_ = tr.AppendMessage("pk", pk.Bytes())
	_ = tr.AppendMessage("c1", ct.C1.Bytes())
	_ = tr.AppendMessage("c2", ct.C2.Bytes())
	_ = tr.AppendMessage("bound", []byte{byte(len(t1))})
	for i := range t1 {
		idx := strconv.Itoa(i)
		_ = tr.AppendMessage("t1."+idx, t1[i].Bytes())
		_ = tr.AppendMessage("t2."+idx, t2[i].Bytes())
	}
	return tr.ChallengeScalar("e")
}

// branchTarget returns c2 - i*G.
func branchTarget(ct Ciphertext, i int) Point {
	return PointSub(ct.C2, MulBase(ScalarFromUint64(uint64(i))))
}

func ProveMembership(bind ProofBinding, pk Point, ct Ciphertext, m uint64, r Scalar, bound uint8, src ScalarSource) (MembershipProof, error) {
	n := int(bound)
	if n < 2 || n > MaxMembershipBound {
		return MembershipProof{}, fmt.Errorf("membership: bound %d out of range", bound)
	}
	if m >= uint64(n) {
		return MembershipProof{}, fmt.Errorf("membership: value %d not below bound %d", m, bound)
	}
	g := PointBase()
	p := MembershipProof{
		E:  make([]Scalar, n),
		T1: make([]Point, n),
		T2: make([]Point, n),
		Z:  make([]Scalar, n),
	}

	sumSim := ScalarZero()
	for i := 0; i < n; i++ {
		if uint64(i) == m {
			continue
		}
		e, err := src.NextScalar()
		if err != nil {
			return MembershipProof{}, err
		}
		z, err := src.NextScalar()
		if err != nil {
			return MembershipProof{}, err
		}
		p.E[i], p.Z[i] = e, z
		p.T1[i], p.T2[i] = simulateEqDlogCommitments(g, pk, ct.C1, branchTarget(ct, i), e, z)
		sumSim = ScalarAdd(sumSim, e)
	}

	w, err := nonZeroScalar(src)
	if err != nil {
		return MembershipProof{}, err
	}
	p.T1[m] = MulBase(w)
	p.T2[m] = MulPoint(pk, w)

	e, err := membershipChallenge(bind, pk, ct, p.T1, p.T2)
	if err != nil {
		return MembershipProof{}, err
	}
	p.E[m] = ScalarSub(e, sumSim)
	p.Z[m] = ScalarAdd(w, ScalarMul(p.E[m], r))
	return p, nil
}

func VerifyMembership(bind ProofBinding, pk Point, ct Ciphertext, bound uint8, p MembershipProof) error {
	n := int(bound)
	if len(p.E) != n || len(p.T1) != n || len(p.T2) != n || len(p.Z) != n {
		return fmt.Errorf("membership: proof covers %d branches, want %d", len(p.E), n)
	}
	e, err := membershipChallenge(bind, pk, ct, p.T1, p.T2)
	if err != nil {
		return err
	}
	sum := ScalarZero()
	g := PointBase()
	for i := 0; i < n; i++ {
		sum = ScalarAdd(sum, p.E[i])
		if !verifyEqDlogRelation(g, pk, ct.C1, branchTarget(ct, i), p.T1[i], p.T2[i], p.E[i], p.Z[i]) {
			return fmt.Errorf("membership: branch %d does not verify", i)
		}
	}
	if !ScalarEq(sum, e) {
		return fmt.Errorf("membership: challenge split mismatch")
	}
	return nil
}

// simulateEqDlogCommitments picks commitments that satisfy the verification
// equations for a chosen (e, z).
func simulateEqDlogCommitments(a, b, x, y Point, e, z Scalar) (Point, Point) {
	t1 := PointSub(MulPoint(a, z), MulPoint(x, e))
	t2 := PointSub(MulPoint(b, z), MulPoint(y, e))
	return t1, t2
}

// verifyEqDlogRelation checks z*A == t1 + e*X and z*B == t2 + e*Y.
func verifyEqDlogRelation(a, b, x, y, t1, t2 Point, e, z Scalar) bool {
	if !PointEq(MulPoint(a, z), PointAdd(t1, MulPoint(x, e))) {
		return false
	}
	return PointEq(MulPoint(b, z), PointAdd(t2, MulPoint(y, e)))
}

// Encoding: u8 bound || bound * (e || t1 || t2 || z)
func EncodeMembershipProof(p MembershipProof) []byte {
	out := make([]byte, 0, 1+len(p.E)*membershipBranchBytes)
	out = append(out, byte(len(p.E)))
	for i := range p.E {
		out = append(out, p.E[i].Bytes()...)
		out = append(out, p.T1[i].Bytes()...)
		out = append(out, p.T2[i].Bytes()...)
		out = append(out, p.Z[i].Bytes()...)
	}
	return out
}

func decodeMembershipProofFromReader(r *reader) (MembershipProof, error) {
	n, err := r.takeU8()
	if err != nil {
		return MembershipProof{}, err
	}
	if n < 2 || n > MaxMembershipBound {
		return MembershipProof{}, fmt.Errorf("membership: bound %d out of range", n)
	}
	p := MembershipProof{
		E:  make([]Scalar, n),
		T1: make([]Point, n),
		T2: make([]Point, n),
		Z:  make([]Scalar, n),
	}
	for i := 0; i < int(n); i++ {
		if p.E[i], err = r.takeScalar(); err != nil {
			return MembershipProof{}, err
		}
		if p.T1[i], err = r.takePoint(); err != nil {
			return MembershipProof{}, err
		}
		if p.T2[i], err = r.takePoint(); err != nil {
			return MembershipProof{}, err
		}
		if p.Z[i], err = r.takeScalar(); err != nil {
			return MembershipProof{}, err
		}
	}
	return p, nil
}

// InputProof is what a client submits alongside a handle: the ciphertext the
// handle names and the membership proof over it.
type InputProof struct {
	Ciphertext Ciphertext
	Membership MembershipProof
}

// Encoding: c1(32) || c2(32) || membership proof
func (p InputProof) Bytes() []byte {
	return concatBytes(p.Ciphertext.Bytes(), EncodeMembershipProof(p.Membership))
}

func DecodeInputProof(b []byte) (InputProof, error) {
	r := newReader(b)
	ctb, err := r.take(CiphertextBytes)
	if err != nil {
		return InputProof{}, fmt.Errorf("input proof: %w", err)
	}
	ct, err := DecodeCiphertext(ctb)
	if err != nil {
		return InputProof{}, fmt.Errorf("input proof: %w", err)
	}
	mp, err := decodeMembershipProofFromReader(r)
	if err != nil {
		return InputProof{}, fmt.Errorf("input proof: %w", err)
	}
	if !r.done() {
		return InputProof{}, fmt.Errorf("input proof: trailing bytes")
	}
	return InputProof{Ciphertext: ct, Membership: mp}, nil
}

// SealInput encrypts m under pk and proves m < bound for bind.
func SealInput(bind ProofBinding, pk Point, m uint64, bound uint8, src ScalarSource) (InputProof, error) {
	r, err := nonZeroScalar(src)
	if err != nil {
		return InputProof{}, err
	}
	ct, err := Encrypt(pk, m, r)
	if err != nil {
		return InputProof{}, err
	}
	mp, err := ProveMembership(bind, pk, ct, m, r, bound, src)
	if err != nil {
		return InputProof{}, err
	}
	return InputProof{Ciphertext: ct, Membership: mp}, nil
}
