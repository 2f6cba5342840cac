package auth

import (
	"context"
	"errors"
	"strings"

	"clinicore.org/internal/obs"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Evaluator decides whether an identity may perform a role-gated
// operation. It is a pure decision function over current binding state:
// every call re-reads bindings from the injected store, so revocations
// take effect immediately and no caching staleness is possible.
type Evaluator struct {
	store Store
}

// NewEvaluator constructs an Evaluator over the given store.
func NewEvaluator(store Store) (*Evaluator, error) {
	if store == nil {
		return nil, errors.New("auth store is required")
	}
	return &Evaluator{store: store}, nil
}

// Authorize evaluates the identity against the required role set.
// Rules, in order: superuser bypass; empty required set allows (useful
// when composing checks); holding the literal admin role allows;
// otherwise any case-folded intersection between bound and required
// roles allows. Everything else denies.
func (e *Evaluator) Authorize(ctx context.Context, ident Identity, required ...string) (Decision, error) {
	if ident.Superuser {
		return e.decide(Decision{Allowed: true, Reason: "superuser"}), nil
	}

	requiredSet := normalizeRoleSet(required)
	if len(requiredSet) == 0 {
		return e.decide(Decision{Allowed: true, Reason: "no roles required"}), nil
	}

	names, err := e.store.RoleNamesFor(ctx, ident.ID)
	if err != nil {
		return Decision{}, err
	}
	for _, name := range names {
		name = NormalizeRole(name)
		if name == AdminRole {
			return e.decide(Decision{Allowed: true, Reason: "admin role"}), nil
		}
		if _, ok := requiredSet[name]; ok {
			return e.decide(Decision{Allowed: true, Reason: "role " + name}), nil
		}
	}
	return e.decide(Decision{Allowed: false, Reason: "missing required role"}), nil
}

func (e *Evaluator) decide(d Decision) Decision {
	obs.ObserveAuthzDecision(d.Allowed)
	return d
}

// NormalizeRole folds a role name for reliable comparison.
func NormalizeRole(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func normalizeRoleSet(names []string) map[string]struct{} {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = NormalizeRole(name)
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	return set
}
