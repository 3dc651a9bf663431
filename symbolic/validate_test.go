package symbolic

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestValidate_Classification(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Classification
	}{
		{"linear transform", "(x - 5)/2", Valid},
		{"identity shift", "(x + 0)/2", Valid},
		{"constant", "42", Valid},
		{"polynomial", "(x + 1)**2 - x**2", Valid},
		{"unknown function", "f(x) + 1", Valid},
		{"division by zero", "1/0", IntegrityBreach},
		{"symbol over zero", "x/0", IntegrityBreach},
		{"zero over zero", "0/0", IntegrityBreach},
		{"infinity", "oo + 1", IntegrityBreach},
		{"negative infinity", "-oo", IntegrityBreach},
		{"log of zero", "log(0)", IntegrityBreach},
		{"cancelled infinity stays breach", "oo - oo", IntegrityBreach},
		{"garbage", "not an expression ++", InvalidSyntax},
		{"empty", "", InvalidSyntax},
		{"unbalanced", "(x - 5", InvalidSyntax},
		{"too complex", "2**5000", InvalidSyntax},
		{"power result too large", "((2**1024)**1024)**1024", InvalidSyntax},
		{"large power within limits", "(2**64)**1000", Valid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewValidator().ValidateOne(0, tt.input)
			if res.Classification != tt.want {
				t.Errorf("ValidateOne(%q) = %s, want %s (err: %v)", tt.input, res.Classification, tt.want, res.Err)
			}
		})
	}
}

func TestValidate_OversizedPowerIsBounded(t *testing.T) {
	res := NewValidator().ValidateOne(0, "((2**1024)**1024)**1024")
	if res.Classification != InvalidSyntax {
		t.Fatalf("Classification = %s, want %s", res.Classification, InvalidSyntax)
	}
	if !errors.Is(res.Err, ErrTooComplex) {
		t.Errorf("Err = %v, want ErrTooComplex", res.Err)
	}
}

func TestValidate_BatchContinuesAfterFailure(t *testing.T) {
	inputs := []string{"not an expression ++", "(x - 5)/2", "1/0", "x +", "(x + 0)/2"}
	results := Validate(inputs)

	if len(results) != len(inputs) {
		t.Fatalf("got %d results, want %d", len(results), len(inputs))
	}
	want := []Classification{InvalidSyntax, Valid, IntegrityBreach, InvalidSyntax, Valid}
	got := Classifications(results)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result[%d] = %s, want %s", i, got[i], want[i])
		}
		if results[i].Index != i {
			t.Errorf("result[%d].Index = %d", i, results[i].Index)
		}
		if results[i].Input != inputs[i] {
			t.Errorf("result[%d].Input = %q, want %q", i, results[i].Input, inputs[i])
		}
	}
}

func TestValidate_ResultFields(t *testing.T) {
	v := NewValidator()

	valid := v.ValidateOne(3, "(x - 5)/2")
	if valid.Err != nil {
		t.Errorf("valid result carries error: %v", valid.Err)
	}
	if valid.Simplified == nil || valid.Simplified.String() != "x/2 - 5/2" {
		t.Errorf("Simplified = %v, want x/2 - 5/2", valid.Simplified)
	}
	if valid.Index != 3 {
		t.Errorf("Index = %d, want 3", valid.Index)
	}

	breach := v.ValidateOne(0, "1/0")
	if breach.Simplified == nil || !Has(breach.Simplified, ComplexInfinity) {
		t.Errorf("breach Simplified = %v, want zoo", breach.Simplified)
	}
	if breach.Err != nil {
		t.Errorf("breach result carries error: %v", breach.Err)
	}

	bad := v.ValidateOne(0, "not an expression ++")
	if bad.Simplified != nil {
		t.Errorf("invalid result has Simplified = %v", bad.Simplified)
	}
	var pe *ParseError
	if !errors.As(bad.Err, &pe) {
		t.Fatalf("invalid result error %T is not *ParseError", bad.Err)
	}
	if pe.Pos != 4 {
		t.Errorf("ParseError.Pos = %d, want 4", pe.Pos)
	}
}

func TestValidate_TooComplexWrapsSentinel(t *testing.T) {
	res := NewValidator().ValidateOne(0, "2**5000")
	if res.Classification != InvalidSyntax {
		t.Fatalf("Classification = %s, want invalid_syntax", res.Classification)
	}
	if !errors.Is(res.Err, ErrTooComplex) {
		t.Errorf("error %v does not wrap ErrTooComplex", res.Err)
	}
	if !strings.Contains(res.Err.Error(), "2**5000") {
		t.Errorf("error %q does not name the input", res.Err)
	}
}

func TestValidate_Idempotent(t *testing.T) {
	inputs := []string{"(x - 5)/2", "1/0", "garbage ++", "(x + 1)**3"}
	v := NewValidator()
	first := v.Validate(inputs)
	second := v.Validate(inputs)
	for i := range inputs {
		if first[i].Classification != second[i].Classification {
			t.Errorf("input %q: %s then %s", inputs[i], first[i].Classification, second[i].Classification)
		}
		if first[i].Simplified != nil && !Equal(first[i].Simplified, second[i].Simplified) {
			t.Errorf("input %q: simplified forms differ", inputs[i])
		}
	}
}

func TestValidate_Empty(t *testing.T) {
	if got := Validate(nil); len(got) != 0 {
		t.Errorf("Validate(nil) returned %d results", len(got))
	}
}

func TestResult_Message(t *testing.T) {
	v := NewValidator()
	tests := []struct {
		input string
		want  string
	}{
		{"(x - 5)/2", "symbolic expression valid"},
		{"1/0", "symbolic integrity breached"},
		{"x +", "unexpected token EOF"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := v.ValidateOne(0, tt.input).Message()
			if !strings.Contains(got, tt.want) {
				t.Errorf("Message() = %q, want it to contain %q", got, tt.want)
			}
		})
	}

	if got := (Result{Classification: InvalidSyntax}).Message(); got != "invalid expression" {
		t.Errorf("Message() without error = %q", got)
	}
}

func TestClassification_Text(t *testing.T) {
	for _, c := range []Classification{Valid, InvalidSyntax, IntegrityBreach} {
		b, err := c.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%d): %v", c, err)
		}
		var back Classification
		if err := back.UnmarshalText(b); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", b, err)
		}
		if back != c {
			t.Errorf("round trip %s -> %s", c, back)
		}
	}

	var c Classification
	if err := c.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("UnmarshalText(bogus) expected error")
	}
	if got := Classification(9).String(); got != "classification(9)" {
		t.Errorf("String() = %q", got)
	}
}

func TestClassification_JSON(t *testing.T) {
	out, err := json.Marshal(map[string]Classification{"status": IntegrityBreach})
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	if string(out) != `{"status":"integrity_breach"}` {
		t.Errorf("json = %s", out)
	}
}
