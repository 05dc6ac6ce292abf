// Package policy implements the Strategy pattern for kiosk lock-down directives.
// Each directive knows how to apply and revoke exactly one device policy.
package policy

import (
	"time"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
)

// DefaultReassertInterval is how often the daemon re-applies the lockdown.
const DefaultReassertInterval = 10 * time.Minute

// restrictionDirective toggles one user restriction.
type restrictionDirective struct {
	id          domain.DirectiveID
	restriction domain.UserRestriction
	description string
}

func (d *restrictionDirective) ID() domain.DirectiveID { return d.id }

func (d *restrictionDirective) Description() string { return d.description }

func (d *restrictionDirective) Apply(host domain.DevicePolicyHost) error {
	return host.AddUserRestriction(d.restriction)
}

func (d *restrictionDirective) Revoke(host domain.DevicePolicyHost) error {
	return host.ClearUserRestriction(d.restriction)
}

// NewSafeBootRestriction blocks booting into safe mode.
func NewSafeBootRestriction() domain.Directive {
	return &restrictionDirective{
		id:          domain.DirectiveSafeBoot,
		restriction: domain.RestrictionSafeBoot,
		description: "Disallow safe boot",
	}
}

// NewFactoryResetRestriction blocks factory reset from settings.
func NewFactoryResetRestriction() domain.Directive {
	return &restrictionDirective{
		id:          domain.DirectiveFactoryReset,
		restriction: domain.RestrictionFactoryReset,
		description: "Disallow factory reset",
	}
}

// NewAddUserRestriction blocks creating new users.
func NewAddUserRestriction() domain.Directive {
	return &restrictionDirective{
		id:          domain.DirectiveAddUser,
		restriction: domain.RestrictionAddUser,
		description: "Disallow adding users",
	}
}

// NewExternalMediaRestriction blocks mounting physical media.
func NewExternalMediaRestriction() domain.Directive {
	return &restrictionDirective{
		id:          domain.DirectiveExternalMedia,
		restriction: domain.RestrictionPhysicalMedia,
		description: "Disallow mounting external media",
	}
}

// NewVolumeChangeRestriction blocks adjusting the master volume.
func NewVolumeChangeRestriction() domain.Directive {
	return &restrictionDirective{
		id:          domain.DirectiveVolumeChange,
		restriction: domain.RestrictionAdjustVolume,
		description: "Disallow volume changes",
	}
}

// Ensure restrictionDirective implements domain.Directive.
var _ domain.Directive = (*restrictionDirective)(nil)
