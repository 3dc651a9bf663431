// Package proof derives and verifies the inverse of a linear transform and
// builds the documentation records that describe the result.
package proof

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/petal-labs/proofkit/symbolic"
)

var (
	// ErrZeroScale is returned when a transform divides by zero.
	ErrZeroScale = errors.New("proof: scale must be non-zero")

	// ErrNotLinear is returned when an expression is not of degree 1 in the
	// transform variable.
	ErrNotLinear = errors.New("proof: expression is not linear")

	// ErrNotReversible is returned when g(f(x)) - x does not simplify to zero.
	ErrNotReversible = errors.New("proof: inverse does not restore the input")
)

// DefaultVariable is the symbol a transform acts on when none is given.
const DefaultVariable = "x"

// LinearTransform is f(x) = (x - Shift) / Scale.
type LinearTransform struct {
	Variable string
	Shift    *big.Rat
	Scale    *big.Rat
}

// NewLinearTransform validates and returns a transform.
func NewLinearTransform(variable string, shift, scale *big.Rat) (LinearTransform, error) {
	if variable == "" {
		variable = DefaultVariable
	}
	if shift == nil {
		shift = new(big.Rat)
	}
	if scale == nil || scale.Sign() == 0 {
		return LinearTransform{}, ErrZeroScale
	}
	return LinearTransform{
		Variable: variable,
		Shift:    new(big.Rat).Set(shift),
		Scale:    new(big.Rat).Set(scale),
	}, nil
}

// ParseLinearTransform reads shift and scale as decimals or fractions
// ("5", "2.5", "1/3").
func ParseLinearTransform(variable, shift, scale string) (LinearTransform, error) {
	k, ok := new(big.Rat).SetString(shift)
	if !ok {
		return LinearTransform{}, fmt.Errorf("proof: invalid shift %q", shift)
	}
	c, ok := new(big.Rat).SetString(scale)
	if !ok {
		return LinearTransform{}, fmt.Errorf("proof: invalid scale %q", scale)
	}
	return NewLinearTransform(variable, k, c)
}

func (t LinearTransform) symbol() symbolic.Expr {
	return symbolic.NewSymbol(t.Variable)
}

// Expr builds (x - k)/c without simplifying it.
func (t LinearTransform) Expr() symbolic.Expr {
	return symbolic.Div(
		symbolic.Sub(t.symbol(), symbolic.NewNumber(t.Shift)),
		symbolic.NewNumber(t.Scale),
	)
}

// Forward returns the canonical form of f.
func (t LinearTransform) Forward() (symbolic.Expr, error) {
	return symbolic.Simplify(t.Expr())
}

// String renders the transform as written, e.g. "(x - 5)/2".
func (t LinearTransform) String() string {
	scale := ratString(t.Scale)
	if !t.Scale.IsInt() || t.Scale.Sign() < 0 {
		scale = "(" + scale + ")"
	}
	if t.Shift.Sign() < 0 {
		return fmt.Sprintf("(%s + %s)/%s", t.Variable, ratString(new(big.Rat).Neg(t.Shift)), scale)
	}
	return fmt.Sprintf("(%s - %s)/%s", t.Variable, ratString(t.Shift), scale)
}

// Invert derives the inverse of an expression that is linear in variable.
// For f = a*x + b it returns (x - b)/a in canonical form.
func Invert(f symbolic.Expr, variable string) (symbolic.Expr, error) {
	coeffs, err := symbolic.Coefficients(f, variable)
	if err != nil {
		if errors.Is(err, symbolic.ErrNotPolynomial) {
			return nil, fmt.Errorf("%w: %v", ErrNotLinear, err)
		}
		return nil, fmt.Errorf("proof: invert: %w", err)
	}
	if deg := symbolic.Degree(coeffs); deg != 1 {
		return nil, fmt.Errorf("%w: degree %d in %s", ErrNotLinear, deg, variable)
	}

	a := coeffs[1]
	b, ok := coeffs[0]
	if !ok {
		b = symbolic.NewInt(0)
	}
	x := symbolic.NewSymbol(variable)
	g, err := symbolic.Simplify(symbolic.Div(symbolic.Sub(x, b), a))
	if err != nil {
		return nil, fmt.Errorf("proof: invert: %w", err)
	}
	return g, nil
}

// Residual returns simplify(g(f(x)) - x).
func Residual(f, g symbolic.Expr, variable string) (symbolic.Expr, error) {
	x := symbolic.NewSymbol(variable)
	composed := symbolic.Substitute(g, variable, f)
	r, err := symbolic.Simplify(symbolic.Sub(composed, x))
	if err != nil {
		return nil, fmt.Errorf("proof: residual: %w", err)
	}
	return r, nil
}

// Verify reports whether g undoes f. A non-zero residual wraps
// ErrNotReversible.
func Verify(f, g symbolic.Expr, variable string) error {
	r, err := Residual(f, g, variable)
	if err != nil {
		return err
	}
	if !symbolic.IsZero(r) {
		return fmt.Errorf("%w: residual %s", ErrNotReversible, r)
	}
	return nil
}

// Hash returns the hex SHA-256 of the structural form of e.
func Hash(e symbolic.Expr) string {
	sum := sha256.Sum256([]byte(symbolic.Srepr(e)))
	return hex.EncodeToString(sum[:])
}

func ratString(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	return r.String()
}
