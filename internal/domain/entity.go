// Package domain contains core kiosk entities and interfaces.
// This is the innermost layer - no external dependencies.
package domain

import "time"

// Identity names the kiosk application on the managed device.
// Captured once from configuration and passed to every component.
type Identity struct {
	Package               string // e.g. "com.example.kiosk"
	AdminReceiver         string // device admin receiver class, relative or fully qualified
	MainActivity          string // primary entry point
	CommandReceiver       string // receiver relaying device-owner calls
	FileProviderAuthority string // content-sharing authority for install URIs
}

// Component returns "pkg/.Class" for a class name within the kiosk package.
func (id Identity) Component(class string) string {
	return id.Package + "/" + class
}

// DirectiveID identifies a single lock-down policy directive.
type DirectiveID string

const (
	DirectivePermitLockTask     DirectiveID = "permit-lock-task"
	DirectiveSafeBoot           DirectiveID = "restrict-safe-boot"
	DirectiveFactoryReset       DirectiveID = "restrict-factory-reset"
	DirectiveAddUser            DirectiveID = "restrict-add-user"
	DirectiveExternalMedia      DirectiveID = "restrict-external-media"
	DirectiveVolumeChange       DirectiveID = "restrict-volume-change"
	DirectiveKeyguard           DirectiveID = "block-keyguard"
	DirectiveStatusBar          DirectiveID = "block-status-bar"
	DirectiveLockTaskFeatures   DirectiveID = "lock-task-features"
	DirectiveStayOnWhilePlugged DirectiveID = "stay-on-while-plugged"
	DirectivePersistentLauncher DirectiveID = "pin-as-persistent-launcher"
	DirectiveBlockUninstall     DirectiveID = "block-uninstall"
)

// DirectiveStatus is the result of attempting one directive.
type DirectiveStatus string

const (
	DirectiveApplied     DirectiveStatus = "applied"
	DirectiveUnsupported DirectiveStatus = "unsupported"
	DirectiveFailed      DirectiveStatus = "failed"
)

// DirectiveOutcome records what happened to one directive.
type DirectiveOutcome struct {
	Directive DirectiveID
	Status    DirectiveStatus
	Kind      ErrorKind // empty when applied
	Reason    string
}

// LockdownReport captures a single pass over a directive list.
type LockdownReport struct {
	Outcomes   []DirectiveOutcome
	ExecutedAt time.Time
	DurationMs int64
}

// Failed returns every outcome that was not applied.
func (r LockdownReport) Failed() []DirectiveOutcome {
	var failed []DirectiveOutcome
	for _, o := range r.Outcomes {
		if o.Status != DirectiveApplied {
			failed = append(failed, o)
		}
	}
	return failed
}

// Degraded reports whether at least one directive could not be applied.
func (r LockdownReport) Degraded() bool {
	return len(r.Failed()) > 0
}

// LockState is the controller-facing lock-task state.
type LockState string

const (
	Unlocked LockState = "unlocked"
	Locked   LockState = "locked"
)

// HostLockTaskMode mirrors the platform's own lock-task mode values.
type HostLockTaskMode string

const (
	LockTaskNone   HostLockTaskMode = "none"
	LockTaskLocked HostLockTaskMode = "locked"
	LockTaskPinned HostLockTaskMode = "pinned"
)

// InstallOutcome is the single resolution of an install request.
type InstallOutcome string

const (
	InstallInstalled          InstallOutcome = "installed"
	InstallFileNotFound       InstallOutcome = "file-not-found"
	InstallPermissionRequired InstallOutcome = "permission-required"
	InstallNoHandler          InstallOutcome = "no-handler"
	InstallFailed             InstallOutcome = "failed"
)

// InstallRequest lives for one invocation of the gatekeeper.
type InstallRequest struct {
	ID     string
	Path   string
	Caller string
}

// InstallResult is what the gatekeeper hands back to its caller.
type InstallResult struct {
	RequestID string
	Outcome   InstallOutcome
	Detail    string
}

// InstallIntent is the platform request that hands a package to the installer.
type InstallIntent struct {
	URI       string
	MimeType  string
	GrantRead bool // read access scoped to this intent only
}

// PermissionFlow selects which settings screen grants install permission.
type PermissionFlow string

const (
	// FlowPerSourceInstall is the per-app "install unknown apps" screen (API 26+).
	FlowPerSourceInstall PermissionFlow = "per-source"
	// FlowUnknownSources is the legacy global security setting.
	FlowUnknownSources PermissionFlow = "unknown-sources"
)

// HostEventKind classifies signals delivered by the host platform.
type HostEventKind string

const (
	EventEnrolled      HostEventKind = "enrolled"
	EventAdminEnabled  HostEventKind = "admin-enabled"
	EventAdminDisabled HostEventKind = "admin-disabled"
	EventLaunched      HostEventKind = "launched"
	EventResumed       HostEventKind = "resumed"
)

// HostEvent is one discrete callback from the host.
type HostEvent struct {
	ID   string
	Kind HostEventKind
	At   time.Time
}

// EnrollmentResult describes what the bridge did with one event.
type EnrollmentResult struct {
	EventID      string
	Duplicate    bool
	Bootstrapped bool
	Launched     bool
	Report       LockdownReport
}

// JournalEntry is one row of the audit journal.
type JournalEntry struct {
	ID        string
	Kind      string
	Subject   string
	Outcome   string
	Detail    string
	CreatedAt time.Time
}

// DaemonRecord describes the running "kioskctl serve" process.
type DaemonRecord struct {
	PID           int    `json:"pid"`
	Listen        string `json:"listen"`
	Serial        string `json:"serial,omitempty"`
	Version       string `json:"version,omitempty"`
	StartedAt     int64  `json:"started_at"`
	LastHeartbeat int64  `json:"last_heartbeat"`
}
