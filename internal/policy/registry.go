package policy

import (
	"fmt"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
)

// Registry holds every known directive in its fixed application order.
type Registry struct {
	order      []domain.DirectiveID
	directives map[domain.DirectiveID]domain.Directive
}

// NewRegistry creates a registry with the full kiosk directive sequence.
// The order mirrors what the platform needs: the lock-task allowlist first,
// the HOME takeover last.
func NewRegistry(identity domain.Identity) *Registry {
	r := &Registry{
		directives: make(map[domain.DirectiveID]domain.Directive),
	}

	r.Register(NewPermitLockTask(identity))
	r.Register(&LockTaskFeaturesDirective{})
	r.Register(&KeyguardDirective{})
	r.Register(&StatusBarDirective{})
	r.Register(NewSafeBootRestriction())
	r.Register(NewFactoryResetRestriction())
	r.Register(NewAddUserRestriction())
	r.Register(NewExternalMediaRestriction())
	r.Register(NewVolumeChangeRestriction())
	r.Register(&StayOnDirective{})
	r.Register(NewBlockUninstall(identity))
	r.Register(NewPersistentLauncher(identity))

	return r
}

// NewRegistryWithDirectives creates a registry with custom directives (for testing).
func NewRegistryWithDirectives(directives ...domain.Directive) *Registry {
	r := &Registry{
		directives: make(map[domain.DirectiveID]domain.Directive),
	}
	for _, d := range directives {
		r.Register(d)
	}
	return r
}

// Register appends a directive to the sequence. Re-registering an id
// replaces the directive but keeps its original position.
func (r *Registry) Register(d domain.Directive) {
	if _, ok := r.directives[d.ID()]; !ok {
		r.order = append(r.order, d.ID())
	}
	r.directives[d.ID()] = d
}

// Get returns a directive by ID.
func (r *Registry) Get(id domain.DirectiveID) (domain.Directive, bool) {
	d, ok := r.directives[id]
	return d, ok
}

// Sequence returns all directives in application order.
func (r *Registry) Sequence() []domain.Directive {
	result := make([]domain.Directive, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.directives[id])
	}
	return result
}

// Select returns the named directives in the order given.
func (r *Registry) Select(ids []domain.DirectiveID) ([]domain.Directive, error) {
	result := make([]domain.Directive, 0, len(ids))
	for _, id := range ids {
		d, ok := r.directives[id]
		if !ok {
			return nil, fmt.Errorf("unknown directive: %s", id)
		}
		result = append(result, d)
	}
	return result, nil
}

// List returns all directive IDs in application order.
func (r *Registry) List() []domain.DirectiveID {
	ids := make([]domain.DirectiveID, len(r.order))
	copy(ids, r.order)
	return ids
}
