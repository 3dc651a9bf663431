package symbolic

import (
	"fmt"
)

// Classification is the outcome of validating one expression.
type Classification int

const (
	// Valid means the expression parsed and simplified to a finite form.
	Valid Classification = iota
	// InvalidSyntax means the expression could not be parsed or simplified.
	InvalidSyntax
	// IntegrityBreach means the simplified form contains nan or an infinity.
	IntegrityBreach
)

var classificationNames = map[Classification]string{
	Valid:           "valid",
	InvalidSyntax:   "invalid_syntax",
	IntegrityBreach: "integrity_breach",
}

func (c Classification) String() string {
	if name, ok := classificationNames[c]; ok {
		return name
	}
	return fmt.Sprintf("classification(%d)", int(c))
}

// MarshalText encodes the classification by name.
func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a classification name.
func (c *Classification) UnmarshalText(text []byte) error {
	for k, name := range classificationNames {
		if name == string(text) {
			*c = k
			return nil
		}
	}
	return fmt.Errorf("symbolic: unknown classification %q", text)
}

// Result is the validation outcome for one input.
type Result struct {
	Index          int
	Input          string
	Classification Classification
	// Simplified is the canonical form; nil when parsing or simplifying failed.
	Simplified Expr
	// Err is set for InvalidSyntax results.
	Err error
}

// Message is a one-line human description of the result.
func (r Result) Message() string {
	switch r.Classification {
	case Valid:
		return "symbolic expression valid"
	case IntegrityBreach:
		return "symbolic integrity breached"
	default:
		if r.Err != nil {
			return r.Err.Error()
		}
		return "invalid expression"
	}
}

// Validator classifies expression streams. It holds no state between calls,
// and the zero value is ready to use.
type Validator struct{}

// NewValidator returns a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate classifies each input independently and returns one result per
// input in input order. A failure on one entry never affects another.
func (v *Validator) Validate(inputs []string) []Result {
	results := make([]Result, len(inputs))
	for i, in := range inputs {
		results[i] = v.ValidateOne(i, in)
	}
	return results
}

// ValidateOne classifies a single input at position index.
func (v *Validator) ValidateOne(index int, input string) Result {
	res := Result{Index: index, Input: input}

	parsed := TryParse(input)
	if !parsed.Ok() {
		res.Classification = InvalidSyntax
		res.Err = parsed.Err()
		return res
	}

	simplified, err := Simplify(parsed.Expr())
	if err != nil {
		res.Classification = InvalidSyntax
		res.Err = fmt.Errorf("simplify %q: %w", input, err)
		return res
	}
	res.Simplified = simplified

	if Has(simplified, NaN, Infinity, NegInfinity, ComplexInfinity) {
		res.Classification = IntegrityBreach
		return res
	}
	res.Classification = Valid
	return res
}

// Validate classifies inputs with a fresh Validator.
func Validate(inputs []string) []Result {
	return NewValidator().Validate(inputs)
}

// Classifications projects results onto their classifications.
func Classifications(results []Result) []Classification {
	out := make([]Classification, len(results))
	for i, r := range results {
		out[i] = r.Classification
	}
	return out
}
