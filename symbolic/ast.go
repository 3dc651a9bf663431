// Package symbolic provides a small computer-algebra core: parsing textual
// formulas into expression trees, canonical simplification over exact
// rationals, and rendering to structural, infix, and LaTeX forms.
// Expression values are immutable once constructed.
package symbolic

import (
	"math/big"
)

// Expr is the interface implemented by all expression nodes.
type Expr interface {
	expr() // marker method
	String() string
}

// Number is an exact rational constant.
type Number struct {
	val *big.Rat
}

// NewInt returns the integer n as a Number.
func NewInt(n int64) *Number {
	return &Number{val: new(big.Rat).SetInt64(n)}
}

// NewRat returns p/q as a Number. It panics if q is zero.
func NewRat(p, q int64) *Number {
	return &Number{val: big.NewRat(p, q)}
}

// NewNumber copies r into a Number.
func NewNumber(r *big.Rat) *Number {
	return &Number{val: new(big.Rat).Set(r)}
}

func (n *Number) expr() {}
func (n *Number) String() string {
	return formatRat(n.val)
}

// Rat returns a copy of the underlying rational.
func (n *Number) Rat() *big.Rat {
	return new(big.Rat).Set(n.val)
}

// IsZero reports whether n == 0.
func (n *Number) IsZero() bool { return n.val.Sign() == 0 }

// IsOne reports whether n == 1.
func (n *Number) IsOne() bool { return n.val.IsInt() && n.val.Num().IsInt64() && n.val.Num().Int64() == 1 }

// IsInt reports whether n has denominator 1.
func (n *Number) IsInt() bool { return n.val.IsInt() }

// Sign returns -1, 0 or +1.
func (n *Number) Sign() int { return n.val.Sign() }

// Symbol is a free variable.
type Symbol struct {
	Name string
}

// NewSymbol returns the symbol with the given name.
func NewSymbol(name string) *Symbol {
	return &Symbol{Name: name}
}

func (s *Symbol) expr() {}
func (s *Symbol) String() string {
	return s.Name
}

// Constant is a named mathematical constant (pi, E).
type Constant struct {
	Name string
}

func (c *Constant) expr() {}
func (c *Constant) String() string {
	return c.Name
}

// SpecialKind identifies an undefined or infinite value.
type SpecialKind int

const (
	NaN             SpecialKind = iota // nan
	Infinity                           // oo
	NegInfinity                        // -oo
	ComplexInfinity                    // zoo
)

var specialNames = map[SpecialKind]string{
	NaN:             "nan",
	Infinity:        "oo",
	NegInfinity:     "-oo",
	ComplexInfinity: "zoo",
}

func (k SpecialKind) String() string {
	if name, ok := specialNames[k]; ok {
		return name
	}
	return "special(?)"
}

// Special is an undefined (nan) or infinite value.
type Special struct {
	Kind SpecialKind
}

func (s *Special) expr() {}
func (s *Special) String() string {
	return s.Kind.String()
}

// Add is a sum of terms.
type Add struct {
	Terms []Expr
}

func (e *Add) expr() {}
func (e *Add) String() string {
	return formatInfix(e)
}

// Mul is a product of factors.
type Mul struct {
	Factors []Expr
}

func (e *Mul) expr() {}
func (e *Mul) String() string {
	return formatInfix(e)
}

// Pow is Base raised to Exp.
type Pow struct {
	Base Expr
	Exp  Expr
}

func (e *Pow) expr() {}
func (e *Pow) String() string {
	return formatInfix(e)
}

// Call applies a named single-argument function.
type Call struct {
	Func string
	Arg  Expr
}

func (e *Call) expr() {}
func (e *Call) String() string {
	return e.Func + "(" + e.Arg.String() + ")"
}

var (
	zero   = NewInt(0)
	one    = NewInt(1)
	nan    = &Special{Kind: NaN}
	posInf = &Special{Kind: Infinity}
	negInf = &Special{Kind: NegInfinity}
	zoo    = &Special{Kind: ComplexInfinity}
)

// Has reports whether any node of e is a Special of one of the given kinds.
// With no kinds, any Special matches.
func Has(e Expr, kinds ...SpecialKind) bool {
	found := false
	walk(e, func(n Expr) bool {
		s, ok := n.(*Special)
		if !ok {
			return true
		}
		if len(kinds) == 0 {
			found = true
			return false
		}
		for _, k := range kinds {
			if s.Kind == k {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// FreeOf reports whether e does not mention the symbol name.
func FreeOf(e Expr, name string) bool {
	free := true
	walk(e, func(n Expr) bool {
		if s, ok := n.(*Symbol); ok && s.Name == name {
			free = false
			return false
		}
		return true
	})
	return free
}

// Symbols returns the distinct symbol names in e, in first-seen order.
func Symbols(e Expr) []string {
	seen := make(map[string]bool)
	var names []string
	walk(e, func(n Expr) bool {
		if s, ok := n.(*Symbol); ok && !seen[s.Name] {
			seen[s.Name] = true
			names = append(names, s.Name)
		}
		return true
	})
	return names
}

// Equal reports structural equality.
func Equal(a, b Expr) bool {
	return Srepr(a) == Srepr(b)
}

// IsZero reports whether e is the number zero.
func IsZero(e Expr) bool {
	n, ok := e.(*Number)
	return ok && n.IsZero()
}

// walk visits e depth-first until fn returns false.
func walk(e Expr, fn func(Expr) bool) bool {
	if !fn(e) {
		return false
	}
	switch n := e.(type) {
	case *Add:
		for _, t := range n.Terms {
			if !walk(t, fn) {
				return false
			}
		}
	case *Mul:
		for _, f := range n.Factors {
			if !walk(f, fn) {
				return false
			}
		}
	case *Pow:
		return walk(n.Base, fn) && walk(n.Exp, fn)
	case *Call:
		return walk(n.Arg, fn)
	}
	return true
}
