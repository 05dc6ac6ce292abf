package policy

import (
	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
)

// PermitLockTaskDirective allowlists the kiosk package for lock-task mode.
// Lock-task entry is refused by the platform until this is applied.
type PermitLockTaskDirective struct {
	identity domain.Identity
}

// NewPermitLockTask creates the lock-task allowlist directive.
func NewPermitLockTask(identity domain.Identity) *PermitLockTaskDirective {
	return &PermitLockTaskDirective{identity: identity}
}

func (d *PermitLockTaskDirective) ID() domain.DirectiveID { return domain.DirectivePermitLockTask }

func (d *PermitLockTaskDirective) Description() string {
	return "Allow " + d.identity.Package + " to enter lock-task mode"
}

func (d *PermitLockTaskDirective) Apply(host domain.DevicePolicyHost) error {
	return host.SetLockTaskPackages([]string{d.identity.Package})
}

func (d *PermitLockTaskDirective) Revoke(host domain.DevicePolicyHost) error {
	return host.SetLockTaskPackages(nil)
}

// LockTaskFeaturesDirective keeps power menu, keyguard and system info usable
// while the device is locked to the kiosk.
type LockTaskFeaturesDirective struct{}

func (d *LockTaskFeaturesDirective) ID() domain.DirectiveID {
	return domain.DirectiveLockTaskFeatures
}

func (d *LockTaskFeaturesDirective) Description() string {
	return "Lock-task features: global actions, keyguard, system info"
}

func (d *LockTaskFeaturesDirective) Apply(host domain.DevicePolicyHost) error {
	return host.SetLockTaskFeatures([]domain.LockTaskFeature{
		domain.FeatureGlobalActions,
		domain.FeatureKeyguard,
		domain.FeatureSystemInfo,
	})
}

func (d *LockTaskFeaturesDirective) Revoke(host domain.DevicePolicyHost) error {
	return host.SetLockTaskFeatures(nil)
}

// LauncherDirective pins the kiosk main activity as the persistent HOME handler.
type LauncherDirective struct {
	identity domain.Identity
}

// NewPersistentLauncher creates the HOME takeover directive.
func NewPersistentLauncher(identity domain.Identity) *LauncherDirective {
	return &LauncherDirective{identity: identity}
}

func (d *LauncherDirective) ID() domain.DirectiveID { return domain.DirectivePersistentLauncher }

func (d *LauncherDirective) Description() string {
	return "Pin " + d.identity.Component(d.identity.MainActivity) + " as home screen"
}

func (d *LauncherDirective) Apply(host domain.DevicePolicyHost) error {
	return host.SetPersistentHomeActivity(d.identity.Component(d.identity.MainActivity))
}

func (d *LauncherDirective) Revoke(host domain.DevicePolicyHost) error {
	return host.ClearPersistentHomeActivity()
}

// UninstallDirective blocks uninstalling the kiosk package.
type UninstallDirective struct {
	identity domain.Identity
}

// NewBlockUninstall creates the uninstall-block directive.
func NewBlockUninstall(identity domain.Identity) *UninstallDirective {
	return &UninstallDirective{identity: identity}
}

func (d *UninstallDirective) ID() domain.DirectiveID { return domain.DirectiveBlockUninstall }

func (d *UninstallDirective) Description() string {
	return "Block uninstall of " + d.identity.Package
}

func (d *UninstallDirective) Apply(host domain.DevicePolicyHost) error {
	return host.SetUninstallBlocked(d.identity.Package, true)
}

func (d *UninstallDirective) Revoke(host domain.DevicePolicyHost) error {
	return host.SetUninstallBlocked(d.identity.Package, false)
}

// Ensure kiosk directives implement domain.Directive.
var (
	_ domain.Directive = (*PermitLockTaskDirective)(nil)
	_ domain.Directive = (*LockTaskFeaturesDirective)(nil)
	_ domain.Directive = (*LauncherDirective)(nil)
	_ domain.Directive = (*UninstallDirective)(nil)
)
