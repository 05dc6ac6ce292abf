// Package fixtures provides test helpers for unit and integration tests.
package fixtures

import (
	"errors"
	"sort"
	"sync"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
)

// ErrInjected is returned by FakeDevice calls configured to fail.
var ErrInjected = errors.New("injected host failure")

// FakeDevice is an in-memory domain.DevicePolicyHost.
// It keeps policy state the way the platform does (idempotent sets) and
// counts every call so tests can assert on side effects.
type FakeDevice struct {
	mu sync.Mutex

	// Privilege state
	DeviceOwner       bool
	LockTaskPermitted bool
	OwnerErr          error
	PermittedErr      error

	// Platform
	SDK                int
	CanRequestInstalls bool
	UnknownSources     bool
	InstallHandler     bool

	// Policy state
	LockTaskPackages  []string
	LockTaskFeatures  []domain.LockTaskFeature
	Restrictions      map[domain.UserRestriction]bool
	KeyguardDisabled  bool
	StatusBarDisabled bool
	GlobalSettings    map[string]string
	HomeActivities    []string
	UninstallBlocked  map[string]bool
	Mode              domain.HostLockTaskMode

	// Failure injection keyed by operation name (e.g. "SetStatusBarDisabled").
	Fail map[string]error

	// Recorded side effects
	Calls           map[string]int
	PermissionFlows []domain.PermissionFlow
	Dispatched      []domain.InstallIntent
	Shared          []string
	Launches        int
}

// KioskIdentity is the identity fixtures and tests share.
var KioskIdentity = domain.Identity{
	Package:               "com.example.kiosk",
	AdminReceiver:         ".AppDeviceAdminReceiver",
	MainActivity:          ".MainActivity",
	CommandReceiver:       ".ControllerCommandReceiver",
	FileProviderAuthority: "com.example.kiosk.fileprovider",
}

// NewFakeDevice returns a device owned by the kiosk with lock-task permitted,
// running API 33 with install permission granted.
func NewFakeDevice() *FakeDevice {
	return &FakeDevice{
		DeviceOwner:        true,
		LockTaskPermitted:  true,
		SDK:                33,
		CanRequestInstalls: true,
		UnknownSources:     true,
		InstallHandler:     true,
		Restrictions:       make(map[domain.UserRestriction]bool),
		GlobalSettings:     make(map[string]string),
		UninstallBlocked:   make(map[string]bool),
		Mode:               domain.LockTaskNone,
		Fail:               make(map[string]error),
		Calls:              make(map[string]int),
	}
}

// NewUnmanagedDevice returns a device where the kiosk holds no authority.
func NewUnmanagedDevice() *FakeDevice {
	d := NewFakeDevice()
	d.DeviceOwner = false
	d.LockTaskPermitted = false
	return d
}

func (d *FakeDevice) record(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls[op]++
	if err, ok := d.Fail[op]; ok {
		return err
	}
	return nil
}

// CallCount returns how often op was invoked.
func (d *FakeDevice) CallCount(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Calls[op]
}

// TotalCalls returns the number of host calls of any kind.
func (d *FakeDevice) TotalCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := 0
	for _, n := range d.Calls {
		total += n
	}
	return total
}

// CurrentMode returns the lock-task mode without counting a host call.
func (d *FakeDevice) CurrentMode() domain.HostLockTaskMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Mode
}

// DispatchedCount returns how many install intents were dispatched.
func (d *FakeDevice) DispatchedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Dispatched)
}

// ForceUnlock simulates something outside the controller leaving lock-task mode.
func (d *FakeDevice) ForceUnlock() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Mode = domain.LockTaskNone
}

// Snapshot returns a comparable view of the policy state.
func (d *FakeDevice) Snapshot() PolicySnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	var restrictions []string
	for r, on := range d.Restrictions {
		if on {
			restrictions = append(restrictions, string(r))
		}
	}
	sort.Strings(restrictions)

	var blocked []string
	for pkg, on := range d.UninstallBlocked {
		if on {
			blocked = append(blocked, pkg)
		}
	}
	sort.Strings(blocked)

	settings := make(map[string]string, len(d.GlobalSettings))
	for k, v := range d.GlobalSettings {
		settings[k] = v
	}

	return PolicySnapshot{
		LockTaskPackages:  append([]string(nil), d.LockTaskPackages...),
		LockTaskFeatures:  append([]domain.LockTaskFeature(nil), d.LockTaskFeatures...),
		Restrictions:      restrictions,
		KeyguardDisabled:  d.KeyguardDisabled,
		StatusBarDisabled: d.StatusBarDisabled,
		GlobalSettings:    settings,
		HomeActivities:    append([]string(nil), d.HomeActivities...),
		UninstallBlocked:  blocked,
	}
}

// PolicySnapshot is the policy portion of FakeDevice state.
type PolicySnapshot struct {
	LockTaskPackages  []string
	LockTaskFeatures  []domain.LockTaskFeature
	Restrictions      []string
	KeyguardDisabled  bool
	StatusBarDisabled bool
	GlobalSettings    map[string]string
	HomeActivities    []string
	UninstallBlocked  []string
}

func (d *FakeDevice) IsDeviceOwnerApp() (bool, error) {
	if err := d.record("IsDeviceOwnerApp"); err != nil {
		return false, err
	}
	if d.OwnerErr != nil {
		return false, d.OwnerErr
	}
	return d.DeviceOwner, nil
}

func (d *FakeDevice) IsLockTaskPermitted() (bool, error) {
	if err := d.record("IsLockTaskPermitted"); err != nil {
		return false, err
	}
	if d.PermittedErr != nil {
		return false, d.PermittedErr
	}
	return d.LockTaskPermitted, nil
}

func (d *FakeDevice) SetLockTaskPackages(packages []string) error {
	if err := d.record("SetLockTaskPackages"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.LockTaskPackages = append([]string(nil), packages...)
	return nil
}

func (d *FakeDevice) SetLockTaskFeatures(features []domain.LockTaskFeature) error {
	if err := d.record("SetLockTaskFeatures"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.LockTaskFeatures = append([]domain.LockTaskFeature(nil), features...)
	return nil
}

func (d *FakeDevice) AddUserRestriction(r domain.UserRestriction) error {
	if err := d.record("AddUserRestriction"); err != nil {
		return err
	}
	if err := d.record("AddUserRestriction:" + string(r)); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Restrictions[r] = true
	return nil
}

func (d *FakeDevice) ClearUserRestriction(r domain.UserRestriction) error {
	if err := d.record("ClearUserRestriction"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.Restrictions, r)
	return nil
}

func (d *FakeDevice) SetKeyguardDisabled(disabled bool) error {
	if err := d.record("SetKeyguardDisabled"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.KeyguardDisabled = disabled
	return nil
}

func (d *FakeDevice) SetStatusBarDisabled(disabled bool) error {
	if err := d.record("SetStatusBarDisabled"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.StatusBarDisabled = disabled
	return nil
}

func (d *FakeDevice) SetGlobalSetting(key, value string) error {
	if err := d.record("SetGlobalSetting"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.GlobalSettings[key] = value
	return nil
}

func (d *FakeDevice) SetPersistentHomeActivity(activity string) error {
	if err := d.record("SetPersistentHomeActivity"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range d.HomeActivities {
		if a == activity {
			return nil
		}
	}
	d.HomeActivities = append(d.HomeActivities, activity)
	return nil
}

func (d *FakeDevice) ClearPersistentHomeActivity() error {
	if err := d.record("ClearPersistentHomeActivity"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.HomeActivities = nil
	return nil
}

func (d *FakeDevice) SetUninstallBlocked(pkg string, blocked bool) error {
	if err := d.record("SetUninstallBlocked"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.UninstallBlocked[pkg] = blocked
	return nil
}

func (d *FakeDevice) StartLockTask() error {
	if err := d.record("StartLockTask"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Mode = domain.LockTaskLocked
	return nil
}

func (d *FakeDevice) StopLockTask() error {
	if err := d.record("StopLockTask"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Mode = domain.LockTaskNone
	return nil
}

func (d *FakeDevice) LockTaskMode() (domain.HostLockTaskMode, error) {
	if err := d.record("LockTaskMode"); err != nil {
		return domain.LockTaskNone, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Mode, nil
}

func (d *FakeDevice) SDKLevel() (int, error) {
	if err := d.record("SDKLevel"); err != nil {
		return 0, err
	}
	return d.SDK, nil
}

func (d *FakeDevice) CanRequestPackageInstalls() (bool, error) {
	if err := d.record("CanRequestPackageInstalls"); err != nil {
		return false, err
	}
	return d.CanRequestInstalls, nil
}

func (d *FakeDevice) UnknownSourcesAllowed() (bool, error) {
	if err := d.record("UnknownSourcesAllowed"); err != nil {
		return false, err
	}
	return d.UnknownSources, nil
}

func (d *FakeDevice) LaunchPermissionFlow(flow domain.PermissionFlow) error {
	if err := d.record("LaunchPermissionFlow"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.PermissionFlows = append(d.PermissionFlows, flow)
	return nil
}

func (d *FakeDevice) ShareFile(path string) (string, error) {
	if err := d.record("ShareFile"); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Shared = append(d.Shared, path)
	return "content://com.example.kiosk.fileprovider/updates/" + lastElem(path), nil
}

func (d *FakeDevice) ResolveInstallHandler(intent domain.InstallIntent) (bool, error) {
	if err := d.record("ResolveInstallHandler"); err != nil {
		return false, err
	}
	return d.InstallHandler, nil
}

func (d *FakeDevice) DispatchInstall(intent domain.InstallIntent) error {
	if err := d.record("DispatchInstall"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Dispatched = append(d.Dispatched, intent)
	return nil
}

func (d *FakeDevice) LaunchMainActivity() error {
	if err := d.record("LaunchMainActivity"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Launches++
	return nil
}

func lastElem(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// Ensure FakeDevice implements domain.DevicePolicyHost.
var _ domain.DevicePolicyHost = (*FakeDevice)(nil)
