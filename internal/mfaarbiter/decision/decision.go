// Package decision evaluates, via an embedded OPA Rego policy, whether a login with a
// given risk score and device-trust state must pass an MFA challenge. It is pluggable
// the way the teacher's device-trust policy engine is: an operator can override
// defaultRegoPolicy per deployment without touching the service layer.
package decision

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const defaultRegoPolicy = `package adaptivemfa.mfa

default mfa_required = false

mfa_required if {
	not input.device.is_trusted
	input.risk_score >= input.risk_threshold
}
`

// Input is the context a policy evaluates against.
type Input struct {
	RiskScore     int
	RiskThreshold int
	DeviceTrusted bool
}

// Evaluator decides whether an MFA challenge must be issued.
type Evaluator struct {
	policy string
}

// NewEvaluator returns an Evaluator using the built-in default policy.
func NewEvaluator() *Evaluator {
	return &Evaluator{policy: defaultRegoPolicy}
}

// NewEvaluatorWithPolicy returns an Evaluator using a caller-supplied Rego policy,
// which must define adaptivemfa.mfa.mfa_required, for operators who need a richer
// rule set than the risk-threshold default (e.g. per-organization overrides).
func NewEvaluatorWithPolicy(regoPolicy string) *Evaluator {
	return &Evaluator{policy: regoPolicy}
}

// MFARequired reports whether in's context requires an MFA challenge.
func (e *Evaluator) MFARequired(ctx context.Context, in Input) (bool, error) {
	compiler, err := ast.CompileModules(map[string]string{"policy.rego": e.policy})
	if err != nil {
		return false, fmt.Errorf("decision: compile policy: %w", err)
	}

	input := map[string]interface{}{
		"risk_score":     in.RiskScore,
		"risk_threshold": in.RiskThreshold,
		"device": map[string]interface{}{
			"is_trusted": in.DeviceTrusted,
		},
	}

	q := rego.New(
		rego.Query("data.adaptivemfa.mfa.mfa_required"),
		rego.Compiler(compiler),
		rego.Input(input),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return false, fmt.Errorf("decision: eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, fmt.Errorf("decision: policy query returned no result")
	}
	required, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("decision: mfa_required did not evaluate to a boolean")
	}
	return required, nil
}
