package command

import (
	"fmt"
	"slices"

	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/opst/crabclient/pkg/spelling"
)

// Factory makes a fresh Runner for each invocation.
type Factory func() Runner

// Registry maps verbs to commands.
type Registry struct {
	names     []string
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds a verb.
//
// It fails when name is registered already, or when the factory makes a
// Runner named otherwise.
func (r *Registry) Register(name string, factory Factory) error {
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("command %s is registered twice", name)
	}
	if factory == nil {
		return fmt.Errorf("command %s has no factory", name)
	}
	if got := factory().Name(); got != name {
		return fmt.Errorf("command %s is registered with a factory of %s", name, got)
	}
	r.names = append(r.names, name)
	r.factories[name] = factory
	return nil
}

// Names of registered verbs, in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// Has tells name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.factories[name]
	return ok
}

// New makes a Runner for name.
//
// An unregistered name is an error wrapping errors.ErrUnknownCommand,
// telling similar verbs if any.
func (r *Registry) New(name string) (Runner, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, craberr.NewCUIError(
			fmt.Sprintf("%q is not a crab command", name),
			craberr.WithHint(spelling.Hint(name, r.names)),
			craberr.WithVerbose("see \"crab commands\" for available commands"),
			craberr.WithCause(fmt.Errorf("%w: %s", craberr.ErrUnknownCommand, name)),
		)
	}
	return f(), nil
}
