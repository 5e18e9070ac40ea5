// Package policy evaluates optional per-tenant access policies written
// in rego. A tenant without a policy admits every request; evaluation
// errors deny (fail closed).
package policy

import (
	"context"

	"github.com/open-policy-agent/opa/rego"
)

// Input is what a tenant policy gets to look at.
type Input struct {
	IP     string `json:"ip"`
	Path   string `json:"path"`
	Method string `json:"method"`
}

// Allow evaluates module's data.gatehouse.allow entrypoint against in.
func Allow(ctx context.Context, module string, in Input) (bool, error) {
	if module == "" {
		return true, nil
	}
	r := rego.New(
		rego.Query("data.gatehouse.allow"),
		rego.Module("access.rego", module),
		rego.Input(map[string]any{"ip": in.IP, "path": in.Path, "method": in.Method}),
	)
	rs, err := r.Eval(ctx)
	if err != nil {
		return false, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	return ok && allowed, nil
}
