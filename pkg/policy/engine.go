package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/vapordeck/vapordeck/pkg/lifecycle"
	"github.com/vapordeck/vapordeck/pkg/state"
)

// Engine compiles and evaluates Rego policies against lifecycle
// operations. It implements lifecycle.Guard.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

var _ lifecycle.Guard = (*Engine)(nil)

// compiledPolicy is a policy with its prepared deny query.
type compiledPolicy struct {
	policy   Policy
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	ctx := context.Background()
	for _, p := range GetBuiltinPolicies() {
		if err := e.compileAndStore(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to load built-in policy %s: %w", p.Name, err)
		}
	}
	return e, nil
}

// LoadPolicies loads site policies from files and directories. Later
// loads replace policies with the same name, built-ins included.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	for _, p := range policies {
		if err := e.compileAndStore(ctx, p); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
		}
	}

	e.logger.Info().Int("count", len(policies)).Msg("policies loaded")
	return nil
}

// Allow evaluates all policies for verb against st and denies when any
// blocking violation fires.
func (e *Engine) Allow(ctx context.Context, verb lifecycle.Verb, st *state.InstanceState) error {
	result, err := e.Evaluate(ctx, verb, st)
	if err != nil {
		return err
	}
	if result.Allowed {
		return nil
	}

	msgs := make([]string, len(result.Violations))
	for i, v := range result.Violations {
		msgs[i] = fmt.Sprintf("%s: %s", v.Policy, v.Message)
	}
	return fmt.Errorf("denied by policy: %s", strings.Join(msgs, "; "))
}

// Evaluate runs every enabled policy and partitions the deny results
// into blocking violations and warnings.
func (e *Engine) Evaluate(ctx context.Context, verb lifecycle.Verb, st *state.InstanceState) (*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	input := Input{
		Verb:     string(verb),
		Instance: st,
		Context:  Context{Timestamp: time.Now().UTC()},
	}

	result := &Result{Allowed: true, EvaluatedAt: input.Context.Timestamp}
	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}

		violations, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			return nil, fmt.Errorf("policy %s evaluation failed: %w", cp.policy.Name, err)
		}
		for _, v := range violations {
			if v.Severity.blocking() {
				result.Allowed = false
				result.Violations = append(result.Violations, v)
			} else {
				result.Warnings = append(result.Warnings, v)
			}
		}
	}

	e.logger.Debug().
		Str("verb", string(verb)).
		Str("instance", st.Name).
		Bool("allowed", result.Allowed).
		Int("violations", len(result.Violations)).
		Msg("policy evaluation completed")
	return result, nil
}

func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input Input) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, e.toViolation(cp.policy, input, d))
			}
		}
	}
	return violations, nil
}

// toViolation maps one deny result to a Violation, falling back to the
// policy's defaults for missing fields.
func (e *Engine) toViolation(p Policy, input Input, result interface{}) Violation {
	v := Violation{
		Policy:   p.Name,
		Severity: p.Severity,
		Message:  "policy violated",
	}
	if input.Instance != nil {
		v.Instance = input.Instance.Name
	}

	fields, ok := result.(map[string]interface{})
	if !ok {
		return v
	}
	if msg, ok := fields["message"].(string); ok {
		v.Message = msg
	}
	if sev, ok := fields["severity"].(string); ok {
		v.Severity = Severity(sev)
	}
	return v
}

func (e *Engine) compileAndStore(ctx context.Context, p Policy) error {
	pkg := extractPackageName(p.Rego)
	query, err := rego.New(
		rego.Query(fmt.Sprintf("data.%s.deny", pkg)),
		rego.Module(p.Name+".rego", p.Rego),
	).PrepareForEval(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[p.Name] = &compiledPolicy{policy: p, query: query, compiled: time.Now()}
	return nil
}

// extractPackageName extracts the package name from Rego code.
func extractPackageName(src string) string {
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "vapordeck.policies"
}
