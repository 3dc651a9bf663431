package symbolic

import (
	"errors"
	"fmt"
)

// ErrNotPolynomial is returned when an expression is not a polynomial in the
// requested symbol.
var ErrNotPolynomial = errors.New("symbolic: not a polynomial")

// Substitute replaces every occurrence of the symbol name in e with repl.
// The result is not simplified.
func Substitute(e Expr, name string, repl Expr) Expr {
	switch n := e.(type) {
	case *Symbol:
		if n.Name == name {
			return repl
		}
		return n
	case *Add:
		terms := make([]Expr, len(n.Terms))
		for i, t := range n.Terms {
			terms[i] = Substitute(t, name, repl)
		}
		return &Add{Terms: terms}
	case *Mul:
		factors := make([]Expr, len(n.Factors))
		for i, f := range n.Factors {
			factors[i] = Substitute(f, name, repl)
		}
		return &Mul{Factors: factors}
	case *Pow:
		return &Pow{Base: Substitute(n.Base, name, repl), Exp: Substitute(n.Exp, name, repl)}
	case *Call:
		return &Call{Func: n.Func, Arg: Substitute(n.Arg, name, repl)}
	default:
		return e
	}
}

// Sub builds the unsimplified difference a - b.
func Sub(a, b Expr) Expr {
	return &Add{Terms: []Expr{a, negate(b)}}
}

// Div builds the unsimplified quotient a / b.
func Div(a, b Expr) Expr {
	return &Mul{Factors: []Expr{a, &Pow{Base: b, Exp: NewInt(-1)}}}
}

// Sum builds the unsimplified sum of terms.
func Sum(terms ...Expr) Expr {
	return &Add{Terms: terms}
}

// Product builds the unsimplified product of factors.
func Product(factors ...Expr) Expr {
	return &Mul{Factors: factors}
}

// Coefficients simplifies e and returns its coefficients as a polynomial in
// the symbol name, keyed by degree. Coefficients are simplified and free of
// name; zero coefficients are omitted.
func Coefficients(e Expr, name string) (map[int64]Expr, error) {
	s, err := Simplify(e)
	if err != nil {
		return nil, err
	}

	terms := []Expr{s}
	if a, ok := s.(*Add); ok {
		terms = a.Terms
	}

	parts := make(map[int64][]Expr)
	for _, t := range terms {
		deg, coeff, err := splitDegree(t, name)
		if err != nil {
			return nil, fmt.Errorf("%w in %s: %v", ErrNotPolynomial, name, err)
		}
		parts[deg] = append(parts[deg], coeff)
	}

	out := make(map[int64]Expr, len(parts))
	for deg, cs := range parts {
		c, err := Simplify(&Add{Terms: cs})
		if err != nil {
			return nil, err
		}
		if !IsZero(c) {
			out[deg] = c
		}
	}
	return out, nil
}

// Degree returns the highest degree present in coefficients, or -1 for the
// zero polynomial.
func Degree(coeffs map[int64]Expr) int64 {
	deg := int64(-1)
	for d := range coeffs {
		if d > deg {
			deg = d
		}
	}
	return deg
}

// splitDegree splits a simplified term into name**deg times a coefficient.
func splitDegree(t Expr, name string) (int64, Expr, error) {
	if FreeOf(t, name) {
		return 0, t, nil
	}
	factors := []Expr{t}
	if m, ok := t.(*Mul); ok {
		factors = m.Factors
	}

	var deg int64
	var rest []Expr
	for _, f := range factors {
		if FreeOf(f, name) {
			rest = append(rest, f)
			continue
		}
		d, ok := symbolPower(f, name)
		if !ok {
			return 0, nil, fmt.Errorf("term %s", f)
		}
		deg += d
	}

	switch len(rest) {
	case 0:
		return deg, one, nil
	case 1:
		return deg, rest[0], nil
	}
	return deg, &Mul{Factors: rest}, nil
}

// symbolPower reports n when f is name**n for a non-negative integer n.
func symbolPower(f Expr, name string) (int64, bool) {
	switch n := f.(type) {
	case *Symbol:
		return 1, n.Name == name
	case *Pow:
		s, ok := n.Base.(*Symbol)
		if !ok || s.Name != name {
			return 0, false
		}
		e, ok := n.Exp.(*Number)
		if !ok || !e.IsInt() || e.Sign() < 0 || !e.val.Num().IsInt64() {
			return 0, false
		}
		return e.val.Num().Int64(), true
	}
	return 0, false
}
