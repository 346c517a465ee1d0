// Package engine evaluates role authorization with an OPA Rego policy.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"

	"digicheese/backend/internal/identity/domain"
)

// Query is the rule every policy must define under package digicheese.authz.
const Query = "data.digicheese.authz.allow"

// DefaultPolicy allows a caller holding any one of the required roles.
const DefaultPolicy = `package digicheese.authz

default allow := false

allow if {
	some role in input.held
	role in input.required
}
`

// ErrNoDecision is returned when the policy leaves allow undefined or non-boolean.
var ErrNoDecision = errors.New("policy returned no decision")

// RegoDecider implements rbac.Decider on top of a prepared Rego query.
type RegoDecider struct {
	query rego.PreparedEvalQuery
}

// NewRegoDecider compiles source, or DefaultPolicy when source is empty.
func NewRegoDecider(ctx context.Context, source string) (*RegoDecider, error) {
	if source == "" {
		source = DefaultPolicy
	}
	pq, err := rego.New(
		rego.Query(Query),
		rego.Module("authz.rego", source),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile authz policy: %w", err)
	}
	return &RegoDecider{query: pq}, nil
}

// LoadPolicyFile reads a policy from path. An empty path yields DefaultPolicy.
func LoadPolicyFile(path string) (string, error) {
	if path == "" {
		return DefaultPolicy, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read authz policy: %w", err)
	}
	return string(b), nil
}

// Allow evaluates the policy with input {"held": [...], "required": [...]}.
func (d *RegoDecider) Allow(ctx context.Context, held, required domain.RoleSet) (bool, error) {
	input := map[string]interface{}{
		"held":     held.Strings(),
		"required": required.Strings(),
	}
	rs, err := d.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval authz policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, ErrNoDecision
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, ErrNoDecision
	}
	return allowed, nil
}

// HealthCheck verifies the policy evaluates an admin-for-admin request to a decision.
func (d *RegoDecider) HealthCheck(ctx context.Context) error {
	admin := domain.NewRoleSet(domain.RoleAdmin)
	if _, err := d.Allow(ctx, admin, admin); err != nil {
		return err
	}
	return nil
}
