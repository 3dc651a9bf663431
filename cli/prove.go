package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/petal-labs/proofkit/proof"
	"github.com/petal-labs/proofkit/symbolic"
)

// proofOutput is the JSON shape of "prove --format json".
type proofOutput struct {
	Theorem     string `json:"theorem"`
	Transform   string `json:"transform"`
	Forward     string `json:"forward"`
	Inverse     string `json:"inverse"`
	Composition string `json:"composition"`
	Residual    string `json:"residual"`
	LaTeX       string `json:"latex"`
	Hash        string `json:"proof_hash"`
	Reversible  bool   `json:"reversible"`
}

// NewProveCmd creates the "prove" subcommand.
func NewProveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prove",
		Short: "Derive and verify the inverse of f(x) = (x - shift)/scale",
		Args:  inputArgs(cobra.NoArgs),
		RunE:  runProve,
	}

	cmd.Flags().String("shift", "5", "Shift k in (x - k)/c; integers, decimals or fractions like 1/3")
	cmd.Flags().String("scale", "2", "Non-zero scale c in (x - k)/c")
	cmd.Flags().String("variable", proof.DefaultVariable, "Variable name")
	cmd.Flags().String("theorem", proof.DefaultTheorem, "Theorem title")
	cmd.Flags().String("format", "text", "Output format: text | json")

	return cmd
}

func runProve(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	if err := checkFormat(format, "text", "json"); err != nil {
		return err
	}
	shift, _ := cmd.Flags().GetString("shift")
	scale, _ := cmd.Flags().GetString("scale")
	variable, _ := cmd.Flags().GetString("variable")
	theorem, _ := cmd.Flags().GetString("theorem")

	t, err := proof.ParseLinearTransform(variable, shift, scale)
	if err != nil {
		return exitError(exitInputParse, "%v", err)
	}

	p, err := proof.Prove(theorem, t)
	if err != nil && !errors.Is(err, proof.ErrNotReversible) {
		return exitError(exitRuntime, "proving %s: %v", t, err)
	}

	out := stdout(cmd)
	if format == "json" {
		if werr := writeJSON(out, newProofOutput(p)); werr != nil {
			return exitError(exitRuntime, "encoding proof: %v", werr)
		}
	} else {
		printProofText(out, p)
	}

	if err != nil {
		return exitError(exitValidation, "%v", err)
	}
	return nil
}

func newProofOutput(p *proof.Proof) proofOutput {
	return proofOutput{
		Theorem:     p.Theorem,
		Transform:   p.Transform.String(),
		Forward:     p.Forward.String(),
		Inverse:     p.Inverse.String(),
		Composition: p.Composition.String(),
		Residual:    p.Residual.String(),
		LaTeX:       symbolic.LaTeX(p.Forward),
		Hash:        p.Hash,
		Reversible:  p.Holds(),
	}
}

func printProofText(w io.Writer, p *proof.Proof) {
	v := p.Transform.Variable
	fmt.Fprintf(w, "%s\n\n", p.Theorem)
	fmt.Fprintf(w, "  f(%s)      = %s\n", v, p.Forward)
	fmt.Fprintf(w, "  f^-1(%s)   = %s\n", v, p.Inverse)
	fmt.Fprintf(w, "  residual  = %s\n", p.Residual)
	fmt.Fprintf(w, "  hash      = %s\n\n", p.Hash)
	if p.Holds() {
		fmt.Fprintln(w, markOK.Sprint("✔ ")+"the transformation is reversible")
	} else {
		fmt.Fprintln(w, markFail.Sprint("✘ ")+"the transformation is not reversible")
	}
}
