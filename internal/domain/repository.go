package domain

import "context"

// UserRestriction is a platform user-restriction key.
type UserRestriction string

const (
	RestrictionSafeBoot      UserRestriction = "no_safe_boot"
	RestrictionFactoryReset  UserRestriction = "no_factory_reset"
	RestrictionAddUser       UserRestriction = "no_add_user"
	RestrictionPhysicalMedia UserRestriction = "no_physical_media"
	RestrictionAdjustVolume  UserRestriction = "no_adjust_volume"
)

// LockTaskFeature is a system UI affordance kept available in lock-task mode.
type LockTaskFeature string

const (
	FeatureGlobalActions LockTaskFeature = "global_actions"
	FeatureKeyguard      LockTaskFeature = "keyguard"
	FeatureSystemInfo    LockTaskFeature = "system_info"
)

// DevicePolicyHost is the host platform's device policy capability.
// Implementations: adb relay (infra), in-memory fake (test/fixtures).
// Every mutating call must be idempotent on the host side.
type DevicePolicyHost interface {
	// IsDeviceOwnerApp reports whether the kiosk package is device owner.
	IsDeviceOwnerApp() (bool, error)

	// IsLockTaskPermitted reports whether the kiosk package may enter lock-task mode.
	IsLockTaskPermitted() (bool, error)

	SetLockTaskPackages(packages []string) error
	SetLockTaskFeatures(features []LockTaskFeature) error
	AddUserRestriction(r UserRestriction) error
	ClearUserRestriction(r UserRestriction) error
	SetKeyguardDisabled(disabled bool) error
	SetStatusBarDisabled(disabled bool) error
	SetGlobalSetting(key, value string) error

	// SetPersistentHomeActivity pins activity as the HOME handler.
	// Registering the same activity twice must not duplicate the entry.
	SetPersistentHomeActivity(activity string) error
	ClearPersistentHomeActivity() error

	SetUninstallBlocked(pkg string, blocked bool) error

	StartLockTask() error
	StopLockTask() error
	LockTaskMode() (HostLockTaskMode, error)

	// SDKLevel returns the platform API level.
	SDKLevel() (int, error)

	// CanRequestPackageInstalls is the per-source install permission (API 26+).
	CanRequestPackageInstalls() (bool, error)

	// UnknownSourcesAllowed is the legacy global install setting (below API 26).
	UnknownSourcesAllowed() (bool, error)

	// LaunchPermissionFlow opens the settings screen that grants install permission.
	LaunchPermissionFlow(flow PermissionFlow) error

	// ShareFile exposes path through the content-sharing mechanism and returns its URI.
	ShareFile(path string) (string, error)

	ResolveInstallHandler(intent InstallIntent) (bool, error)
	DispatchInstall(intent InstallIntent) error

	// LaunchMainActivity starts the kiosk application's primary entry point.
	LaunchMainActivity() error
}

// Directive is one independently applicable and revocable lock-down step.
type Directive interface {
	ID() DirectiveID

	// Description is a human-readable summary for listings.
	Description() string

	Apply(host DevicePolicyHost) error
	Revoke(host DevicePolicyHost) error
}

// EventSource delivers host events in host order.
// The channel is closed when ctx is done.
type EventSource interface {
	Events(ctx context.Context) <-chan HostEvent
}

// PrivilegeInspector answers privilege questions against live host state.
type PrivilegeInspector interface {
	HasManagementAuthority() bool
	IsLockModePermitted() bool
}

// PolicyApplicator applies directive lists with per-directive tolerance.
type PolicyApplicator interface {
	ApplyLockdown(ctx context.Context, directives []Directive) LockdownReport
	RevokeLockdown(ctx context.Context, directives []Directive) LockdownReport
}

// LockSupervisor owns entry into and exit from lock-task mode.
type LockSupervisor interface {
	Enter(ctx context.Context) bool
	Exit(ctx context.Context) bool
	CurrentLockState(ctx context.Context) LockState

	// OnForeground re-asserts lock-task mode after the kiosk regains focus.
	// Returns true when the supervisor re-entered the locked state.
	OnForeground(ctx context.Context) bool
}

// InstallGatekeeper validates and dispatches package installs.
type InstallGatekeeper interface {
	InstallPackage(ctx context.Context, req InstallRequest) InstallResult
}

// EnrollmentBridge reacts to management enrollment callbacks.
type EnrollmentBridge interface {
	OnEnrolled(ctx context.Context, event HostEvent) EnrollmentResult
	OnAdminDisabled(ctx context.Context, event HostEvent)
}

// ProcessManager handles OS process lookups.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByName returns PIDs of processes matching the pattern.
	FindByName(pattern string) ([]int, error)

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool
}

// FileSystemManager handles filesystem checks.
type FileSystemManager interface {
	// Exists checks if a path exists.
	Exists(path string) bool

	// IsDir reports whether path is an existing directory.
	IsDir(path string) bool

	// ExpandHome expands ~ to the user's home directory.
	ExpandHome(path string) string
}

// KeyProvider abstracts the source of encryption keys.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// Journal is an append-only audit trail of controller activity.
// It is never consulted for decisions.
type Journal interface {
	Record(entry JournalEntry) error
	Recent(limit int) ([]JournalEntry, error)
	Close() error
}

// DaemonRegistry tracks the running daemon so one-shot commands can find it.
type DaemonRegistry interface {
	// Register records the daemon, replacing any previous record.
	Register(record DaemonRecord) error

	// Get returns the stored record, or nil if none exists.
	Get() (*DaemonRecord, error)

	// Running returns the record only if its process is still alive.
	Running() (*DaemonRecord, bool)

	// UpdateHeartbeat refreshes the liveness timestamp.
	UpdateHeartbeat() error

	// Clear removes the record.
	Clear() error
}
