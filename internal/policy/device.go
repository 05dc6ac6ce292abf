package policy

import (
	"strconv"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
)

// Battery plug sources for the stay-on-while-plugged global setting.
const (
	pluggedAC       = 1
	pluggedUSB      = 2
	pluggedWireless = 4

	settingStayOnWhilePlugged = "stay_on_while_plugged_in"
)

// KeyguardDirective disables the lock screen.
type KeyguardDirective struct{}

func (d *KeyguardDirective) ID() domain.DirectiveID { return domain.DirectiveKeyguard }

func (d *KeyguardDirective) Description() string { return "Disable keyguard" }

func (d *KeyguardDirective) Apply(host domain.DevicePolicyHost) error {
	return host.SetKeyguardDisabled(true)
}

func (d *KeyguardDirective) Revoke(host domain.DevicePolicyHost) error {
	return host.SetKeyguardDisabled(false)
}

// StatusBarDirective disables the status bar (notifications, quick settings).
type StatusBarDirective struct{}

func (d *StatusBarDirective) ID() domain.DirectiveID { return domain.DirectiveStatusBar }

func (d *StatusBarDirective) Description() string { return "Disable status bar" }

func (d *StatusBarDirective) Apply(host domain.DevicePolicyHost) error {
	return host.SetStatusBarDisabled(true)
}

func (d *StatusBarDirective) Revoke(host domain.DevicePolicyHost) error {
	return host.SetStatusBarDisabled(false)
}

// StayOnDirective keeps the screen on while the device is charging.
type StayOnDirective struct{}

func (d *StayOnDirective) ID() domain.DirectiveID { return domain.DirectiveStayOnWhilePlugged }

func (d *StayOnDirective) Description() string {
	return "Keep screen on while plugged in (AC, USB, wireless)"
}

func (d *StayOnDirective) Apply(host domain.DevicePolicyHost) error {
	return host.SetGlobalSetting(settingStayOnWhilePlugged,
		strconv.Itoa(pluggedAC|pluggedUSB|pluggedWireless))
}

func (d *StayOnDirective) Revoke(host domain.DevicePolicyHost) error {
	return host.SetGlobalSetting(settingStayOnWhilePlugged, "0")
}

// Ensure device directives implement domain.Directive.
var (
	_ domain.Directive = (*KeyguardDirective)(nil)
	_ domain.Directive = (*StatusBarDirective)(nil)
	_ domain.Directive = (*StayOnDirective)(nil)
)
