package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
	"github.com/eliteGoblin/focusd/kioskctl/internal/infra"
	"github.com/eliteGoblin/focusd/kioskctl/internal/policy"
	"github.com/eliteGoblin/focusd/kioskctl/internal/usecase"
	"github.com/eliteGoblin/focusd/kioskctl/test/fixtures"
)

// mockJournal keeps entries in memory.
type mockJournal struct {
	mu      sync.Mutex
	entries []domain.JournalEntry
	err     error
}

func (j *mockJournal) Record(entry domain.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.entries = append(j.entries, entry)
	return nil
}

func (j *mockJournal) Recent(limit int) ([]domain.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]domain.JournalEntry(nil), j.entries...), nil
}

func (j *mockJournal) Close() error { return nil }

func (j *mockJournal) find(kind, subject string) (domain.JournalEntry, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, e := range j.entries {
		if e.Kind == kind && e.Subject == subject {
			return e, true
		}
	}
	return domain.JournalEntry{}, false
}

func newTestController(device *fixtures.FakeDevice, journal domain.Journal, cfg Config) *Controller {
	return NewController(
		cfg,
		device,
		infra.NewFileSystemManager(),
		policy.NewRegistry(fixtures.KioskIdentity).Sequence(),
		journal,
		zap.NewNop(),
	)
}

func hostEvent(id string, kind domain.HostEventKind) domain.HostEvent {
	return domain.HostEvent{ID: id, Kind: kind, At: time.Now()}
}

// startController runs the loop in the background and returns its stop func.
func startController(t *testing.T, c *Controller, events <-chan domain.HostEvent) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, events) }()

	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("controller did not stop")
			return nil
		}
	}
}

// TestDefaultConfig verifies the default re-assertion interval
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, policy.DefaultReassertInterval, cfg.ReassertInterval)
	assert.Empty(t, cfg.InboxDir)
}

// TestHandleEvent_EnrolledBootstrapsAndLocks verifies enrollment ends in lock-task mode
func TestHandleEvent_EnrolledBootstrapsAndLocks(t *testing.T) {
	device := fixtures.NewFakeDevice()
	journal := &mockJournal{}
	c := newTestController(device, journal, Config{})

	c.HandleEvent(context.Background(), hostEvent("evt-1", domain.EventEnrolled))

	assert.Equal(t, domain.LockTaskLocked, device.CurrentMode())
	assert.Equal(t, 1, device.Launches)
	assert.True(t, device.Snapshot().StatusBarDisabled)

	entry, ok := journal.find("event", "enrolled")
	require.True(t, ok)
	assert.Equal(t, "bootstrapped", entry.Outcome)
	entry, ok = journal.find("lockdown", "bootstrap")
	require.True(t, ok)
	assert.Equal(t, "applied", entry.Outcome)
}

// TestHandleEvent_DuplicateEnrollment verifies a re-delivered event is not replayed
func TestHandleEvent_DuplicateEnrollment(t *testing.T) {
	device := fixtures.NewFakeDevice()
	journal := &mockJournal{}
	c := newTestController(device, journal, Config{})
	ctx := context.Background()

	c.HandleEvent(ctx, hostEvent("evt-1", domain.EventEnrolled))
	c.HandleEvent(ctx, hostEvent("evt-1", domain.EventEnrolled))

	assert.Equal(t, 1, device.CallCount("SetStatusBarDisabled"))
	assert.Equal(t, 1, device.Launches)

	recent, _ := journal.Recent(0)
	var outcomes []string
	for _, e := range recent {
		if e.Kind == "event" {
			outcomes = append(outcomes, e.Outcome)
		}
	}
	assert.Equal(t, []string{"bootstrapped", "duplicate"}, outcomes)
}

// TestHandleEvent_EnrolledWithoutAuthority verifies nothing is applied or launched
func TestHandleEvent_EnrolledWithoutAuthority(t *testing.T) {
	device := fixtures.NewUnmanagedDevice()
	c := newTestController(device, nil, Config{})

	c.HandleEvent(context.Background(), hostEvent("evt-1", domain.EventAdminEnabled))

	assert.Equal(t, 0, device.CallCount("SetStatusBarDisabled"))
	assert.Equal(t, 0, device.Launches)
	assert.Equal(t, domain.LockTaskNone, device.CurrentMode())
}

// TestHandleEvent_ResumedRelocks verifies a forced unlock is undone on resume
func TestHandleEvent_ResumedRelocks(t *testing.T) {
	device := fixtures.NewFakeDevice()
	journal := &mockJournal{}
	c := newTestController(device, journal, Config{})
	ctx := context.Background()

	require.True(t, c.Enter(ctx))
	device.ForceUnlock()

	c.HandleEvent(ctx, hostEvent("evt-2", domain.EventResumed))

	assert.Equal(t, domain.LockTaskLocked, device.CurrentMode())
	entry, ok := journal.find("lock", "enter")
	require.True(t, ok)
	assert.Equal(t, "true", entry.Outcome)
}

// TestHandleEvent_AdminDisabled verifies removal is only recorded
func TestHandleEvent_AdminDisabled(t *testing.T) {
	device := fixtures.NewFakeDevice()
	journal := &mockJournal{}
	c := newTestController(device, journal, Config{})

	c.HandleEvent(context.Background(), hostEvent("evt-3", domain.EventAdminDisabled))

	assert.Equal(t, 0, device.TotalCalls())
	_, ok := journal.find("event", "admin-disabled")
	assert.True(t, ok)
}

// TestReassert verifies the lockdown and lock mode are restored when authority holds
func TestReassert(t *testing.T) {
	device := fixtures.NewFakeDevice()
	c := newTestController(device, nil, Config{})

	c.Reassert(context.Background())

	assert.Equal(t, domain.LockTaskLocked, device.CurrentMode())
	assert.True(t, device.Snapshot().KeyguardDisabled)
}

// TestReassert_NoAuthority verifies re-assertion skips an unmanaged device
func TestReassert_NoAuthority(t *testing.T) {
	device := fixtures.NewUnmanagedDevice()
	c := newTestController(device, nil, Config{})

	c.Reassert(context.Background())

	assert.Equal(t, 0, device.CallCount("SetKeyguardDisabled"))
	assert.Equal(t, 0, device.CallCount("StartLockTask"))
}

// TestLockdownAndRevoke verifies reports are journalled
func TestLockdownAndRevoke(t *testing.T) {
	device := fixtures.NewFakeDevice()
	device.Fail["SetStatusBarDisabled"] = fixtures.ErrInjected
	journal := &mockJournal{}
	c := newTestController(device, journal, Config{})
	ctx := context.Background()

	report := c.Lockdown(ctx)
	assert.True(t, report.Degraded())
	entry, ok := journal.find("lockdown", "apply")
	require.True(t, ok)
	assert.Equal(t, "degraded", entry.Outcome)
	assert.Contains(t, entry.Detail, "block-status-bar")

	c.Revoke(ctx)
	_, ok = journal.find("lockdown", "revoke")
	assert.True(t, ok)
}

// TestJournalFailureIsNotFatal verifies the controller keeps working without a journal
func TestJournalFailureIsNotFatal(t *testing.T) {
	device := fixtures.NewFakeDevice()
	c := newTestController(device, &mockJournal{err: errors.New("disk full")}, Config{})

	assert.True(t, c.Enter(context.Background()))
	assert.Equal(t, domain.LockTaskLocked, device.CurrentMode())
}

// TestRun_SubmitCommands verifies commands are served by the loop
func TestRun_SubmitCommands(t *testing.T) {
	device := fixtures.NewFakeDevice()
	journal := &mockJournal{}
	c := newTestController(device, journal, Config{})
	stop := startController(t, c, nil)
	ctx := context.Background()

	reply, err := c.Submit(ctx, usecase.Command{Channel: usecase.ChannelKiosk, Method: "isDeviceOwner"})
	require.NoError(t, err)
	assert.Equal(t, true, reply.Result)

	reply, err = c.Submit(ctx, usecase.Command{Channel: usecase.ChannelKiosk, Method: "startLockTask"})
	require.NoError(t, err)
	assert.Equal(t, true, reply.Result)
	assert.Equal(t, domain.LockTaskLocked, device.CurrentMode())

	_, err = c.Submit(ctx, usecase.Command{Channel: usecase.ChannelKiosk, Method: "reboot"})
	assert.ErrorIs(t, err, usecase.ErrNotImplemented)

	assert.ErrorIs(t, stop(), context.Canceled)

	_, err = c.Submit(ctx, usecase.Command{Channel: usecase.ChannelKiosk, Method: "isDeviceOwner"})
	assert.ErrorIs(t, err, ErrStopped)

	entry, ok := journal.find("command", "kiosk.reboot")
	require.True(t, ok)
	assert.Equal(t, "error", entry.Outcome)
}

// TestRun_EventsBeforeCommands verifies a delivered event is handled before a later command
func TestRun_EventsBeforeCommands(t *testing.T) {
	device := fixtures.NewFakeDevice()
	device.Mode = domain.LockTaskLocked
	c := newTestController(device, nil, Config{})
	events := make(chan domain.HostEvent)
	stop := startController(t, c, events)
	defer stop()

	device.ForceUnlock()
	events <- hostEvent("evt-1", domain.EventResumed)

	reply, err := c.Submit(context.Background(), usecase.Command{Channel: usecase.ChannelKiosk, Method: "currentLockState"})
	require.NoError(t, err)
	assert.Equal(t, string(domain.Locked), reply.Result)
}

// TestRun_ClosedEventStream verifies the loop keeps serving commands
func TestRun_ClosedEventStream(t *testing.T) {
	device := fixtures.NewFakeDevice()
	c := newTestController(device, nil, Config{})
	events := make(chan domain.HostEvent)
	close(events)
	stop := startController(t, c, events)
	defer stop()

	reply, err := c.Submit(context.Background(), usecase.Command{Channel: usecase.ChannelKiosk, Method: "currentLockState"})
	require.NoError(t, err)
	assert.Equal(t, string(domain.Unlocked), reply.Result)
}

// TestRun_ReassertTick verifies the ticker restores lock mode
func TestRun_ReassertTick(t *testing.T) {
	device := fixtures.NewFakeDevice()
	c := newTestController(device, nil, Config{ReassertInterval: 10 * time.Millisecond})
	stop := startController(t, c, nil)
	defer stop()

	assert.Eventually(t, func() bool {
		return device.CurrentMode() == domain.LockTaskLocked
	}, 2*time.Second, 10*time.Millisecond)
}

// TestRun_InstallsExistingInboxPackages verifies packages present at startup are installed and moved
func TestRun_InstallsExistingInboxPackages(t *testing.T) {
	inbox := t.TempDir()
	pkg := filepath.Join(inbox, "kiosk-2.1.apk")
	require.NoError(t, os.WriteFile(pkg, []byte("PK"), 0644))

	device := fixtures.NewFakeDevice()
	journal := &mockJournal{}
	c := newTestController(device, journal, Config{InboxDir: inbox})
	stop := startController(t, c, nil)
	defer stop()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(inbox, processedDir, "kiosk-2.1.apk"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, device.DispatchedCount())
	assert.NoFileExists(t, pkg)
	entry, ok := journal.find("install", pkg)
	require.True(t, ok)
	assert.Equal(t, string(domain.InstallInstalled), entry.Outcome)
}

// TestRun_InboxPackageKeptWithoutPermission verifies a blocked package stays for retry
func TestRun_InboxPackageKeptWithoutPermission(t *testing.T) {
	inbox := t.TempDir()
	pkg := filepath.Join(inbox, "kiosk-2.1.apk")
	require.NoError(t, os.WriteFile(pkg, []byte("PK"), 0644))

	device := fixtures.NewFakeDevice()
	device.CanRequestInstalls = false
	c := newTestController(device, nil, Config{InboxDir: inbox})
	stop := startController(t, c, nil)

	assert.Eventually(t, func() bool {
		return device.CallCount("LaunchPermissionFlow") == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.ErrorIs(t, stop(), context.Canceled)

	assert.FileExists(t, pkg)
	assert.Equal(t, 0, device.DispatchedCount())
}

// TestInstall verifies direct installs are journalled with their caller path
func TestInstall(t *testing.T) {
	device := fixtures.NewFakeDevice()
	journal := &mockJournal{}
	c := newTestController(device, journal, Config{})

	result := c.Install(context.Background(), "/nonexistent/kiosk.apk", "cli")

	assert.Equal(t, domain.InstallFileNotFound, result.Outcome)
	entry, ok := journal.find("install", "/nonexistent/kiosk.apk")
	require.True(t, ok)
	assert.Equal(t, string(domain.InstallFileNotFound), entry.Outcome)
}
