package chain

import (
	"context"

	"github.com/archonhq/archon/errors"
)

// Chain is a fully loaded, validated architect with its ordered steps
type Chain struct {
	Architect *Architect
	Prompts   []*Prompt
}

// Loader fetches chain definitions with ownership and shape checks applied
type Loader struct {
	store    *Store
	maxSteps int
}

func NewLoader(store *Store, maxSteps int) *Loader {
	return &Loader{store: store, maxSteps: maxSteps}
}

// Load fetches the architect and its steps for callerID. Only the owner may
// load a chain. A chain with no steps, or more steps than the configured
// maximum, is rejected as invalid.
func (l *Loader) Load(ctx context.Context, architectID, callerID string) (*Chain, error) {
	architect, err := l.store.GetArchitect(ctx, architectID)
	if err != nil {
		return nil, err
	}
	if architect.UserID != callerID {
		return nil, errors.NewForbiddenError("user %s does not own architect %s", callerID, architectID)
	}

	prompts, err := l.store.ListPrompts(ctx, architectID)
	if err != nil {
		return nil, err
	}
	if len(prompts) == 0 {
		return nil, errors.NewInvalidRequestError("architect %s has no prompts", architectID)
	}
	if l.maxSteps > 0 && len(prompts) > l.maxSteps {
		return nil, errors.NewInvalidRequestError("architect %s has %d prompts, maximum is %d",
			architectID, len(prompts), l.maxSteps)
	}

	return &Chain{Architect: architect, Prompts: prompts}, nil
}
