package proof

import (
	"fmt"

	"github.com/petal-labs/proofkit/symbolic"
)

// DefaultTheorem names the identity proved for a linear transform.
const DefaultTheorem = "Reversibility Theorem"

// Proof is a verified reversibility result for one transform.
type Proof struct {
	Theorem   string
	Transform LinearTransform

	// Forward is f in canonical form.
	Forward symbolic.Expr
	// Inverse is the derived g in canonical form.
	Inverse symbolic.Expr
	// Composition is g applied to the unsimplified f, as written.
	Composition symbolic.Expr
	// Residual is simplify(g(f(x)) - x).
	Residual symbolic.Expr

	// Hash is the hex SHA-256 of Srepr(Forward).
	Hash string
}

// Holds reports whether the residual is zero.
func (p *Proof) Holds() bool {
	return p != nil && p.Residual != nil && symbolic.IsZero(p.Residual)
}

// Prove derives the inverse of t and verifies it. The returned Proof is
// populated even when verification fails, so the residual can be reported;
// in that case the error wraps ErrNotReversible.
func Prove(theorem string, t LinearTransform) (*Proof, error) {
	if theorem == "" {
		theorem = DefaultTheorem
	}
	if t.Scale == nil || t.Scale.Sign() == 0 {
		return nil, ErrZeroScale
	}

	f, err := t.Forward()
	if err != nil {
		return nil, fmt.Errorf("proof: forward: %w", err)
	}
	g, err := Invert(f, t.Variable)
	if err != nil {
		return nil, err
	}

	p := &Proof{
		Theorem:     theorem,
		Transform:   t,
		Forward:     f,
		Inverse:     g,
		Composition: symbolic.Substitute(g, t.Variable, t.Expr()),
		Hash:        Hash(f),
	}
	p.Residual, err = Residual(f, g, t.Variable)
	if err != nil {
		return nil, err
	}
	if !p.Holds() {
		return p, fmt.Errorf("%w: residual %s", ErrNotReversible, p.Residual)
	}
	return p, nil
}
