package symbolic

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
)

const (
	// maxExponent bounds integer powers of numbers.
	maxExponent = 1024
	// maxNumberBits bounds the numerator and denominator of a computed power.
	maxNumberBits = 1 << 16
	// maxExpandPower bounds expansion of (a + b + ...)**n.
	maxExpandPower = 32
	// maxTerms bounds the size of any distributed product.
	maxTerms = 4096
	// maxRootDegree bounds exact-root extraction for rational exponents.
	maxRootDegree = 64
)

// ErrTooComplex is returned when simplification would exceed its size limits.
var ErrTooComplex = errors.New("symbolic: expression too complex")

// Simplify returns the canonical form of e: sums and products are flattened
// and sorted, numeric parts are folded exactly, like terms and like powers
// are collected, and products are distributed over sums.
//
// Undefined and infinite results are represented by Special values rather
// than errors, so 1/0 simplifies to zoo and 0/0 to nan.
func Simplify(e Expr) (Expr, error) {
	return simplify(e)
}

// MustSimplify is like Simplify but panics on error.
func MustSimplify(e Expr) Expr {
	s, err := Simplify(e)
	if err != nil {
		panic(err)
	}
	return s
}

func simplify(e Expr) (Expr, error) {
	switch n := e.(type) {
	case *Number, *Symbol, *Constant, *Special:
		return e, nil

	case *Add:
		terms, err := simplifyAll(n.Terms)
		if err != nil {
			return nil, err
		}
		return add(terms)

	case *Mul:
		factors, err := simplifyAll(n.Factors)
		if err != nil {
			return nil, err
		}
		return mul(factors)

	case *Pow:
		base, err := simplify(n.Base)
		if err != nil {
			return nil, err
		}
		exp, err := simplify(n.Exp)
		if err != nil {
			return nil, err
		}
		return pow(base, exp)

	case *Call:
		arg, err := simplify(n.Arg)
		if err != nil {
			return nil, err
		}
		return call(n.Func, arg)

	default:
		return nil, fmt.Errorf("symbolic: unknown expression type %T", e)
	}
}

func simplifyAll(in []Expr) ([]Expr, error) {
	out := make([]Expr, len(in))
	for i, e := range in {
		s, err := simplify(e)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Sums
// ---------------------------------------------------------------------------

// add combines already-simplified terms.
func add(terms []Expr) (Expr, error) {
	flat := make([]Expr, 0, len(terms))
	for _, t := range terms {
		if inner, ok := t.(*Add); ok {
			flat = append(flat, inner.Terms...)
		} else {
			flat = append(flat, t)
		}
	}

	var inf infSet
	constant := new(big.Rat)
	coeffs := make(map[string]*big.Rat)
	rests := make(map[string]Expr)
	var keys []string

	for _, t := range flat {
		switch v := t.(type) {
		case *Number:
			constant.Add(constant, v.val)
			continue
		case *Special:
			inf.add(v.Kind)
			continue
		}
		c, rest := splitCoeff(t)
		key := Srepr(rest)
		if _, seen := coeffs[key]; !seen {
			coeffs[key] = new(big.Rat)
			rests[key] = rest
			keys = append(keys, key)
		}
		coeffs[key].Add(coeffs[key], c)
	}

	if s, ok := inf.sum(); ok {
		return s, nil
	}

	sort.Strings(keys)
	out := make([]Expr, 0, len(keys)+1)
	for _, key := range keys {
		c := coeffs[key]
		if c.Sign() == 0 {
			continue
		}
		out = append(out, withCoeff(c, rests[key]))
	}
	if constant.Sign() != 0 {
		out = append(out, &Number{val: constant})
	}

	switch len(out) {
	case 0:
		return zero, nil
	case 1:
		return out[0], nil
	}
	return &Add{Terms: out}, nil
}

// splitCoeff separates a leading numeric coefficient from a simplified term.
func splitCoeff(t Expr) (*big.Rat, Expr) {
	m, ok := t.(*Mul)
	if !ok || len(m.Factors) == 0 {
		return big.NewRat(1, 1), t
	}
	n, ok := m.Factors[0].(*Number)
	if !ok {
		return big.NewRat(1, 1), t
	}
	rest := m.Factors[1:]
	if len(rest) == 1 {
		return n.Rat(), rest[0]
	}
	return n.Rat(), &Mul{Factors: append([]Expr(nil), rest...)}
}

// withCoeff rebuilds c*rest in canonical Mul shape.
func withCoeff(c *big.Rat, rest Expr) Expr {
	if c.Cmp(big.NewRat(1, 1)) == 0 {
		return rest
	}
	coeff := &Number{val: new(big.Rat).Set(c)}
	if m, ok := rest.(*Mul); ok {
		return &Mul{Factors: append([]Expr{coeff}, m.Factors...)}
	}
	return &Mul{Factors: []Expr{coeff, rest}}
}

// infSet tallies Special terms or factors.
type infSet struct {
	nan, pos, neg, complex int
}

func (s *infSet) add(k SpecialKind) {
	switch k {
	case NaN:
		s.nan++
	case Infinity:
		s.pos++
	case NegInfinity:
		s.neg++
	case ComplexInfinity:
		s.complex++
	}
}

func (s *infSet) any() bool {
	return s.nan+s.pos+s.neg+s.complex > 0
}

// sum resolves the special part of a sum. Infinite terms absorb all
// finite ones.
func (s *infSet) sum() (Expr, bool) {
	switch {
	case !s.any():
		return nil, false
	case s.nan > 0:
		return nan, true
	case s.pos > 0 && s.neg > 0:
		return nan, true
	case s.complex > 0 && s.pos+s.neg > 0:
		return nan, true
	case s.complex > 1:
		return nan, true
	case s.complex > 0:
		return zoo, true
	case s.pos > 0:
		return posInf, true
	default:
		return negInf, true
	}
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

// mul combines already-simplified factors.
func mul(factors []Expr) (Expr, error) {
	coeff := big.NewRat(1, 1)
	var inf infSet
	var others []Expr

	var collect func(f Expr)
	collect = func(f Expr) {
		switch v := f.(type) {
		case *Mul:
			for _, g := range v.Factors {
				collect(g)
			}
		case *Number:
			coeff.Mul(coeff, v.val)
		case *Special:
			inf.add(v.Kind)
		default:
			others = append(others, f)
		}
	}
	for _, f := range factors {
		collect(f)
	}

	if inf.any() {
		return mulSpecial(coeff, &inf, others)
	}
	if coeff.Sign() == 0 {
		return zero, nil
	}

	merged, err := mergePowers(others)
	if err != nil {
		return nil, err
	}

	// A merged power of a product splits back into factors that may
	// themselves need merging.
	for _, f := range merged {
		if _, ok := f.(*Mul); ok {
			return mul(append([]Expr{&Number{val: coeff}}, merged...))
		}
	}

	// Merging can surface numbers, specials and sums.
	others = others[:0]
	var sums []*Add
	for _, f := range merged {
		switch v := f.(type) {
		case *Number:
			coeff.Mul(coeff, v.val)
		case *Special:
			inf.add(v.Kind)
		case *Add:
			sums = append(sums, v)
		default:
			others = append(others, f)
		}
	}
	if inf.any() {
		return mulSpecial(coeff, &inf, others)
	}
	if coeff.Sign() == 0 {
		return zero, nil
	}
	if len(sums) > 0 {
		return distribute(coeff, others, sums)
	}
	return buildMul(coeff, others), nil
}

// mulSpecial resolves a product that contains nan or an infinity.
func mulSpecial(coeff *big.Rat, inf *infSet, others []Expr) (Expr, error) {
	if inf.nan > 0 || coeff.Sign() == 0 {
		return nan, nil
	}
	var head Expr
	if inf.complex > 0 {
		head = zoo
	} else {
		sign := coeff.Sign()
		if inf.neg%2 == 1 {
			sign = -sign
		}
		if sign > 0 {
			head = posInf
		} else {
			head = negInf
		}
	}
	if len(others) == 0 {
		return head, nil
	}
	sortByKey(others)
	return &Mul{Factors: append([]Expr{head}, others...)}, nil
}

// mergePowers groups factors by base and sums their exponents.
func mergePowers(factors []Expr) ([]Expr, error) {
	exps := make(map[string][]Expr)
	bases := make(map[string]Expr)
	var keys []string
	for _, f := range factors {
		base, exp := Expr(f), Expr(one)
		if p, ok := f.(*Pow); ok {
			base, exp = p.Base, p.Exp
		}
		key := Srepr(base)
		if _, seen := bases[key]; !seen {
			bases[key] = base
			keys = append(keys, key)
		}
		exps[key] = append(exps[key], exp)
	}

	out := make([]Expr, 0, len(keys))
	for _, key := range keys {
		exp := exps[key][0]
		if len(exps[key]) > 1 {
			var err error
			exp, err = add(exps[key])
			if err != nil {
				return nil, err
			}
		}
		p, err := pow(bases[key], exp)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// distribute expands coeff * others * (sum1) * (sum2) ... into a sum,
// collecting like terms after each multiplication.
func distribute(coeff *big.Rat, others []Expr, sums []*Add) (Expr, error) {
	acc := []Expr{buildMul(new(big.Rat).Set(coeff), others)}
	for _, s := range sums {
		if len(acc)*len(s.Terms) > maxTerms {
			return nil, fmt.Errorf("%w: product expands to more than %d terms", ErrTooComplex, maxTerms)
		}
		terms := make([]Expr, 0, len(acc)*len(s.Terms))
		for _, a := range acc {
			for _, t := range s.Terms {
				p, err := mul([]Expr{a, t})
				if err != nil {
					return nil, err
				}
				terms = append(terms, p)
			}
		}
		sum, err := add(terms)
		if err != nil {
			return nil, err
		}
		if a, ok := sum.(*Add); ok {
			acc = a.Terms
		} else {
			acc = []Expr{sum}
		}
	}
	return add(acc)
}

func buildMul(coeff *big.Rat, others []Expr) Expr {
	if len(others) == 0 {
		return &Number{val: coeff}
	}
	sortByKey(others)
	if coeff.Cmp(big.NewRat(1, 1)) == 0 {
		if len(others) == 1 {
			return others[0]
		}
		return &Mul{Factors: others}
	}
	return &Mul{Factors: append([]Expr{&Number{val: coeff}}, others...)}
}

func sortByKey(es []Expr) {
	keys := make(map[Expr]string, len(es))
	for _, e := range es {
		keys[e] = Srepr(e)
	}
	sort.SliceStable(es, func(i, j int) bool { return keys[es[i]] < keys[es[j]] })
}

// ---------------------------------------------------------------------------
// Powers
// ---------------------------------------------------------------------------

// pow combines an already-simplified base and exponent.
func pow(base, exp Expr) (Expr, error) {
	if en, ok := exp.(*Number); ok {
		if en.IsZero() {
			return one, nil
		}
		if en.IsOne() {
			return base, nil
		}
	}
	if isNaN(base) || isNaN(exp) {
		return nan, nil
	}

	bn, baseNum := base.(*Number)
	en, expNum := exp.(*Number)

	switch {
	case baseNum && expNum:
		return powNumbers(bn, en)
	case baseNum && bn.IsOne():
		if _, ok := exp.(*Special); ok {
			return nan, nil
		}
		return one, nil
	}

	if bs, ok := base.(*Special); ok && expNum {
		return powSpecialBase(bs, en), nil
	}
	if es, ok := exp.(*Special); ok && baseNum {
		return powSpecialExp(bn, es), nil
	}

	if expNum && en.IsInt() {
		switch b := base.(type) {
		case *Pow:
			// (a**b)**n == a**(b*n) for integer n.
			inner, err := mul([]Expr{b.Exp, en})
			if err != nil {
				return nil, err
			}
			return pow(b.Base, inner)

		case *Mul:
			factors := make([]Expr, len(b.Factors))
			for i, f := range b.Factors {
				p, err := pow(f, en)
				if err != nil {
					return nil, err
				}
				factors[i] = p
			}
			return mul(factors)

		case *Add:
			n := en.val.Num()
			if n.Sign() > 0 && n.IsInt64() && n.Int64() <= maxExpandPower {
				copies := make([]*Add, n.Int64())
				for i := range copies {
					copies[i] = b
				}
				return distribute(big.NewRat(1, 1), nil, copies)
			}
		}
	}

	return &Pow{Base: base, Exp: exp}, nil
}

func powNumbers(b, e *Number) (Expr, error) {
	if e.IsInt() {
		n := e.val.Num()
		if !n.IsInt64() || n.Int64() > maxExponent || n.Int64() < -maxExponent {
			return nil, fmt.Errorf("%w: exponent %s exceeds %d", ErrTooComplex, n, maxExponent)
		}
		k := n.Int64()
		if b.IsZero() {
			if k < 0 {
				return zoo, nil
			}
			return zero, nil
		}
		if bits := powBits(b.val, k); bits > maxNumberBits {
			return nil, fmt.Errorf("%w: power needs about %d bits, limit is %d", ErrTooComplex, bits, maxNumberBits)
		}
		return &Number{val: ratPow(b.val, k)}, nil
	}

	// Rational, non-integer exponent p/q.
	switch {
	case b.IsZero() && e.Sign() > 0:
		return zero, nil
	case b.IsZero():
		return zoo, nil
	case b.IsOne():
		return one, nil
	case b.Sign() < 0:
		return &Pow{Base: b, Exp: e}, nil
	}

	p, q := e.val.Num(), e.val.Denom()
	if q.IsInt64() && q.Int64() <= maxRootDegree && ratBits(b.val) <= maxNumberBits {
		deg := int(q.Int64())
		num, okNum := intRoot(b.val.Num(), deg)
		den, okDen := intRoot(b.val.Denom(), deg)
		if okNum && okDen {
			root := &Number{val: new(big.Rat).SetFrac(num, den)}
			return powNumbers(root, &Number{val: new(big.Rat).SetInt(p)})
		}
	}
	return &Pow{Base: b, Exp: e}, nil
}

func powSpecialBase(b *Special, e *Number) Expr {
	switch b.Kind {
	case Infinity:
		if e.Sign() > 0 {
			return posInf
		}
		return zero
	case NegInfinity:
		if e.Sign() < 0 {
			return zero
		}
		if e.IsInt() {
			if e.val.Num().Bit(0) == 1 {
				return negInf
			}
			return posInf
		}
	case ComplexInfinity:
		if e.Sign() > 0 {
			return zoo
		}
		return zero
	}
	return &Pow{Base: b, Exp: e}
}

func powSpecialExp(b *Number, e *Special) Expr {
	if e.Kind == ComplexInfinity {
		return nan
	}
	abs := new(big.Rat).Abs(b.val)
	cmp := abs.Cmp(big.NewRat(1, 1))
	switch {
	case b.IsZero() && e.Kind == Infinity:
		return zero
	case b.IsZero() && e.Kind == NegInfinity:
		return zoo
	case b.Sign() > 0 && cmp > 0 && e.Kind == Infinity:
		return posInf
	case b.Sign() > 0 && cmp > 0 && e.Kind == NegInfinity:
		return zero
	case b.Sign() > 0 && cmp < 0 && e.Kind == Infinity:
		return zero
	case b.Sign() > 0 && cmp < 0 && e.Kind == NegInfinity:
		return posInf
	}
	return &Pow{Base: b, Exp: e}
}

// ratBits is the bit length of the larger of r's numerator and denominator.
func ratBits(r *big.Rat) int64 {
	return int64(max(r.Num().BitLen(), r.Denom().BitLen()))
}

// powBits estimates the bit length of r**k before computing it.
func powBits(r *big.Rat, k int64) int64 {
	if k < 0 {
		k = -k
	}
	abs := new(big.Rat).Abs(r)
	if abs.Cmp(big.NewRat(1, 1)) == 0 {
		return 1
	}
	return ratBits(r) * k
}

func ratPow(r *big.Rat, k int64) *big.Rat {
	neg := k < 0
	if neg {
		k = -k
	}
	e := big.NewInt(k)
	num := new(big.Int).Exp(r.Num(), e, nil)
	den := new(big.Int).Exp(r.Denom(), e, nil)
	if neg {
		num, den = den, num
		if den.Sign() < 0 {
			num.Neg(num)
			den.Neg(den)
		}
	}
	return new(big.Rat).SetFrac(num, den)
}

// intRoot returns the exact non-negative deg-th root of x when one exists.
func intRoot(x *big.Int, deg int) (*big.Int, bool) {
	if x.Sign() < 0 {
		return nil, false
	}
	if x.Sign() == 0 || deg == 1 {
		return new(big.Int).Set(x), true
	}
	if deg == 2 {
		r := new(big.Int).Sqrt(x)
		return r, new(big.Int).Mul(r, r).Cmp(x) == 0
	}
	d := big.NewInt(int64(deg))
	lo, hi := big.NewInt(0), new(big.Int).Lsh(big.NewInt(1), uint(x.BitLen()/deg+1))
	for lo.Cmp(hi) <= 0 {
		mid := new(big.Int).Rsh(new(big.Int).Add(lo, hi), 1)
		c := new(big.Int).Exp(mid, d, nil).Cmp(x)
		switch {
		case c == 0:
			return mid, true
		case c < 0:
			lo = mid.Add(mid, big.NewInt(1))
		default:
			hi = mid.Sub(mid, big.NewInt(1))
		}
	}
	return nil, false
}

func isNaN(e Expr) bool {
	s, ok := e.(*Special)
	return ok && s.Kind == NaN
}

// ---------------------------------------------------------------------------
// Function calls
// ---------------------------------------------------------------------------

func call(name string, arg Expr) (Expr, error) {
	if isNaN(arg) {
		return nan, nil
	}
	n, isNum := arg.(*Number)
	s, isSpecial := arg.(*Special)
	c, isConst := arg.(*Constant)

	switch name {
	case "exp":
		switch {
		case isNum && n.IsZero():
			return one, nil
		case isSpecial && s.Kind == Infinity:
			return posInf, nil
		case isSpecial && s.Kind == NegInfinity:
			return zero, nil
		case isSpecial:
			return nan, nil
		}
		if inner, ok := arg.(*Call); ok && inner.Func == "log" {
			return inner.Arg, nil
		}
		if num, ok := arg.(*Number); ok && num.IsOne() {
			return &Constant{Name: "E"}, nil
		}

	case "log":
		switch {
		case isNum && n.IsOne():
			return zero, nil
		case isNum && n.IsZero():
			return zoo, nil
		case isSpecial && (s.Kind == Infinity || s.Kind == NegInfinity):
			return posInf, nil
		case isSpecial:
			return zoo, nil
		case isConst && c.Name == "E":
			return one, nil
		}

	case "sin", "tan":
		switch {
		case isNum && n.IsZero():
			return zero, nil
		case isConst && c.Name == "pi":
			return zero, nil
		case isSpecial:
			return nan, nil
		}

	case "cos":
		switch {
		case isNum && n.IsZero():
			return one, nil
		case isConst && c.Name == "pi":
			return NewInt(-1), nil
		case isSpecial:
			return nan, nil
		}

	case "Abs":
		switch {
		case isNum:
			return &Number{val: new(big.Rat).Abs(n.val)}, nil
		case isSpecial:
			return posInf, nil
		case isConst:
			return arg, nil
		}
	}

	return &Call{Func: name, Arg: arg}, nil
}
