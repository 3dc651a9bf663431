package symbolic

import (
	"fmt"
	"math/big"
	"strings"
)

// knownFuncs are the interpreted single-argument functions.
var knownFuncs = map[string]bool{
	"exp": true,
	"log": true,
	"sin": true,
	"cos": true,
	"tan": true,
	"Abs": true,
}

// Srepr renders the structural form of e, e.g.
// Add(Mul(Rational(1, 2), Symbol('x')), Rational(-5, 2)).
// Two expressions with equal Srepr are identical trees.
func Srepr(e Expr) string {
	var sb strings.Builder
	writeSrepr(&sb, e)
	return sb.String()
}

func writeSrepr(sb *strings.Builder, e Expr) {
	switch n := e.(type) {
	case *Number:
		if n.val.IsInt() {
			fmt.Fprintf(sb, "Integer(%s)", n.val.Num())
		} else {
			fmt.Fprintf(sb, "Rational(%s, %s)", n.val.Num(), n.val.Denom())
		}
	case *Symbol:
		fmt.Fprintf(sb, "Symbol('%s')", n.Name)
	case *Constant:
		sb.WriteString(n.Name)
	case *Special:
		sb.WriteString(n.Kind.String())
	case *Add:
		writeSreprArgs(sb, "Add", n.Terms)
	case *Mul:
		writeSreprArgs(sb, "Mul", n.Factors)
	case *Pow:
		writeSreprArgs(sb, "Pow", []Expr{n.Base, n.Exp})
	case *Call:
		if knownFuncs[n.Func] {
			sb.WriteString(n.Func)
		} else {
			fmt.Fprintf(sb, "Function('%s')", n.Func)
		}
		writeSreprArgs(sb, "", []Expr{n.Arg})
	}
}

func writeSreprArgs(sb *strings.Builder, head string, args []Expr) {
	sb.WriteString(head)
	sb.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			sb.WriteString(", ")
		}
		writeSrepr(sb, a)
	}
	sb.WriteByte(')')
}

// ---------------------------------------------------------------------------
// Infix
// ---------------------------------------------------------------------------

const (
	precAdd = iota + 1
	precMul
	precPow
	precAtom
)

func precedence(e Expr) int {
	switch n := e.(type) {
	case *Add:
		return precAdd
	case *Mul:
		return precMul
	case *Pow:
		if en, ok := n.Exp.(*Number); ok {
			if en.Sign() < 0 {
				return precMul
			}
			if isHalf(en) {
				return precAtom
			}
		}
		return precPow
	case *Number:
		if n.Sign() < 0 || !n.IsInt() {
			return precMul
		}
	case *Special:
		if n.Kind == NegInfinity {
			return precMul
		}
	}
	return precAtom
}

func formatRat(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	return r.Num().String() + "/" + r.Denom().String()
}

// formatInfix renders e in the parser's own syntax, so the output reads back
// to an equal tree after simplification.
func formatInfix(e Expr) string {
	switch n := e.(type) {
	case *Add:
		var sb strings.Builder
		for i, t := range n.Terms {
			if i == 0 {
				sb.WriteString(formatInfix(t))
				continue
			}
			if isNegativeTerm(t) {
				sb.WriteString(" - ")
				sb.WriteString(parenInfix(negateTerm(t), precAdd+1))
			} else {
				sb.WriteString(" + ")
				sb.WriteString(parenInfix(t, precAdd+1))
			}
		}
		return sb.String()

	case *Mul:
		sign, num, den := splitFraction(n)
		numStr := joinFactors(num)
		if len(den) == 0 {
			return sign + numStr
		}
		denStr := joinFactors(den)
		if len(den) > 1 {
			denStr = "(" + denStr + ")"
		}
		return sign + numStr + "/" + denStr

	case *Pow:
		if en, ok := n.Exp.(*Number); ok {
			if isHalf(en) {
				return "sqrt(" + formatInfix(n.Base) + ")"
			}
			if en.Sign() < 0 {
				return formatInfix(&Mul{Factors: []Expr{n}})
			}
		}
		return parenInfix(n.Base, precAtom) + "**" + parenInfix(n.Exp, precAtom)

	default:
		return e.String()
	}
}

func parenInfix(e Expr, min int) string {
	s := formatInfix(e)
	if precedence(e) < min {
		return "(" + s + ")"
	}
	return s
}

// splitFraction separates a product into sign, numerator factors and
// denominator factors. Numeric coefficients become Number factors.
func splitFraction(m *Mul) (sign string, num, den []Expr) {
	factors := m.Factors
	if len(factors) > 0 {
		if c, ok := factors[0].(*Number); ok {
			r := c.Rat()
			if r.Sign() < 0 {
				sign = "-"
				r.Neg(r)
			}
			if r.Num().Cmp(big.NewInt(1)) != 0 {
				num = append(num, &Number{val: new(big.Rat).SetInt(r.Num())})
			}
			if !r.IsInt() {
				den = append(den, &Number{val: new(big.Rat).SetInt(r.Denom())})
			}
			factors = factors[1:]
		}
	}
	for _, f := range factors {
		if p, ok := f.(*Pow); ok {
			if en, ok := p.Exp.(*Number); ok && en.Sign() < 0 {
				pos := new(big.Rat).Neg(en.val)
				if pos.Cmp(big.NewRat(1, 1)) == 0 {
					den = append(den, p.Base)
				} else {
					den = append(den, &Pow{Base: p.Base, Exp: &Number{val: pos}})
				}
				continue
			}
		}
		num = append(num, f)
	}
	if len(num) == 0 {
		num = append(num, one)
	}
	return sign, num, den
}

func joinFactors(fs []Expr) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		if len(fs) == 1 {
			parts[i] = parenInfix(f, precAdd+1)
		} else {
			parts[i] = parenInfix(f, precMul+1)
		}
	}
	return strings.Join(parts, "*")
}

func isNegativeTerm(t Expr) bool {
	switch n := t.(type) {
	case *Number:
		return n.Sign() < 0
	case *Special:
		return n.Kind == NegInfinity
	case *Mul:
		if len(n.Factors) > 0 {
			if c, ok := n.Factors[0].(*Number); ok {
				return c.Sign() < 0
			}
			if s, ok := n.Factors[0].(*Special); ok {
				return s.Kind == NegInfinity
			}
		}
	}
	return false
}

func negateTerm(t Expr) Expr {
	switch n := t.(type) {
	case *Number:
		return &Number{val: new(big.Rat).Neg(n.val)}
	case *Special:
		return posInf
	case *Mul:
		if s, ok := n.Factors[0].(*Special); ok && s.Kind == NegInfinity {
			return &Mul{Factors: append([]Expr{posInf}, n.Factors[1:]...)}
		}
		c, rest := splitCoeff(n)
		return withCoeff(c.Neg(c), rest)
	}
	return t
}

func isHalf(n *Number) bool {
	return n.val.Cmp(big.NewRat(1, 2)) == 0
}

// ---------------------------------------------------------------------------
// LaTeX
// ---------------------------------------------------------------------------

var greekLetters = map[string]bool{
	"alpha": true, "beta": true, "gamma": true, "delta": true, "epsilon": true,
	"theta": true, "lambda": true, "mu": true, "sigma": true, "tau": true,
	"phi": true, "omega": true,
}

// LaTeX renders e for inclusion in a math environment.
func LaTeX(e Expr) string {
	switch n := e.(type) {
	case *Number:
		r := n.val
		sign := ""
		if r.Sign() < 0 {
			sign = "- "
			r = new(big.Rat).Neg(r)
		}
		if r.IsInt() {
			return strings.TrimSpace(sign) + r.Num().String()
		}
		return fmt.Sprintf("%s\\frac{%s}{%s}", sign, r.Num(), r.Denom())

	case *Symbol:
		if greekLetters[n.Name] {
			return "\\" + n.Name
		}
		return n.Name

	case *Constant:
		if n.Name == "pi" {
			return "\\pi"
		}
		return "e"

	case *Special:
		switch n.Kind {
		case NaN:
			return "\\text{NaN}"
		case Infinity:
			return "\\infty"
		case NegInfinity:
			return "-\\infty"
		default:
			return "\\tilde{\\infty}"
		}

	case *Add:
		var sb strings.Builder
		for i, t := range n.Terms {
			if i == 0 {
				sb.WriteString(LaTeX(t))
				continue
			}
			if isNegativeTerm(t) {
				sb.WriteString(" - ")
				sb.WriteString(parenLaTeX(negateTerm(t), precAdd+1))
			} else {
				sb.WriteString(" + ")
				sb.WriteString(parenLaTeX(t, precAdd+1))
			}
		}
		return sb.String()

	case *Mul:
		sign, num, den := splitFraction(n)
		if sign != "" {
			sign = "- "
		}
		if len(den) == 0 {
			return sign + latexFactors(num)
		}
		return fmt.Sprintf("%s\\frac{%s}{%s}", sign, fracPart(num), fracPart(den))

	case *Pow:
		if en, ok := n.Exp.(*Number); ok {
			if isHalf(en) {
				return "\\sqrt{" + LaTeX(n.Base) + "}"
			}
			if en.Sign() < 0 {
				return LaTeX(&Mul{Factors: []Expr{n}})
			}
		}
		return parenLaTeX(n.Base, precAtom) + "^{" + LaTeX(n.Exp) + "}"

	case *Call:
		arg := LaTeX(n.Arg)
		switch n.Func {
		case "exp":
			return "e^{" + arg + "}"
		case "Abs":
			return "\\left|{" + arg + "}\\right|"
		case "log", "sin", "cos", "tan":
			return "\\" + n.Func + "{\\left(" + arg + " \\right)}"
		default:
			return "\\operatorname{" + n.Func + "}{\\left(" + arg + " \\right)}"
		}
	}
	return e.String()
}

func parenLaTeX(e Expr, min int) string {
	s := LaTeX(e)
	if precedence(e) < min {
		return "\\left(" + s + "\\right)"
	}
	return s
}

// fracPart renders one side of a \frac, which needs no outer parentheses.
func fracPart(fs []Expr) string {
	if len(fs) == 1 {
		return LaTeX(fs[0])
	}
	return latexFactors(fs)
}

// latexFactors joins factors with a space, or \cdot between adjacent numbers.
func latexFactors(fs []Expr) string {
	var sb strings.Builder
	for i, f := range fs {
		if i > 0 {
			_, prevNum := fs[i-1].(*Number)
			_, curNum := f.(*Number)
			if prevNum && curNum {
				sb.WriteString(" \\cdot ")
			} else {
				sb.WriteByte(' ')
			}
		}
		if len(fs) == 1 {
			sb.WriteString(parenLaTeX(f, precAdd+1))
		} else {
			sb.WriteString(parenLaTeX(f, precMul+1))
		}
	}
	return sb.String()
}
