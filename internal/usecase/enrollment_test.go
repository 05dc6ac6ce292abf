package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
	"github.com/eliteGoblin/focusd/kioskctl/test/fixtures"
)

func newTestBridge(device *fixtures.FakeDevice) *BridgeImpl {
	logger := zap.NewNop()
	return NewBridge(
		device,
		NewInspector(device, logger),
		NewApplicator(device, logger),
		fullSequence(),
		logger,
	)
}

func enrolledEvent(id string) domain.HostEvent {
	return domain.HostEvent{ID: id, Kind: domain.EventEnrolled, At: time.Now()}
}

// TestOnEnrolled_Bootstraps verifies lockdown, HOME takeover and launch on enrollment
func TestOnEnrolled_Bootstraps(t *testing.T) {
	device := fixtures.NewFakeDevice()
	bridge := newTestBridge(device)

	result := bridge.OnEnrolled(context.Background(), enrolledEvent("evt-1"))

	assert.Equal(t, "evt-1", result.EventID)
	assert.False(t, result.Duplicate)
	assert.True(t, result.Bootstrapped)
	assert.True(t, result.Launched)
	assert.False(t, result.Report.Degraded())
	assert.Len(t, result.Report.Outcomes, 12)
	assert.Equal(t, []string{"com.example.kiosk/.MainActivity"}, device.Snapshot().HomeActivities)
	assert.Equal(t, 1, device.Launches)
}

// TestOnEnrolled_NoAuthority verifies nothing is applied without device ownership
func TestOnEnrolled_NoAuthority(t *testing.T) {
	device := fixtures.NewUnmanagedDevice()
	bridge := newTestBridge(device)

	result := bridge.OnEnrolled(context.Background(), enrolledEvent("evt-1"))

	assert.False(t, result.Bootstrapped)
	assert.False(t, result.Launched)
	assert.Empty(t, result.Report.Outcomes)
	assert.Equal(t, 1, device.TotalCalls()) // only the owner query
	assert.Equal(t, 0, device.Launches)
}

// TestOnEnrolled_DuplicateDelivery verifies a re-delivered event id is skipped
func TestOnEnrolled_DuplicateDelivery(t *testing.T) {
	device := fixtures.NewFakeDevice()
	bridge := newTestBridge(device)

	first := bridge.OnEnrolled(context.Background(), enrolledEvent("evt-1"))
	calls := device.TotalCalls()
	second := bridge.OnEnrolled(context.Background(), enrolledEvent("evt-1"))

	assert.True(t, first.Bootstrapped)
	assert.True(t, second.Duplicate)
	assert.False(t, second.Bootstrapped)
	assert.Equal(t, calls, device.TotalCalls())
	assert.Equal(t, 1, device.Launches)
}

// TestOnEnrolled_DistinctEventsRerun verifies separate events rerun the idempotent sequence
func TestOnEnrolled_DistinctEventsRerun(t *testing.T) {
	device := fixtures.NewFakeDevice()
	bridge := newTestBridge(device)

	bridge.OnEnrolled(context.Background(), enrolledEvent("evt-1"))
	before := device.Snapshot()
	result := bridge.OnEnrolled(context.Background(), enrolledEvent("evt-2"))

	assert.True(t, result.Bootstrapped)
	assert.Equal(t, before, device.Snapshot())
	assert.Equal(t, 2, device.Launches)
}

// TestOnEnrolled_EmptyIDNeverDuplicate verifies events without ids are always handled
func TestOnEnrolled_EmptyIDNeverDuplicate(t *testing.T) {
	device := fixtures.NewFakeDevice()
	bridge := newTestBridge(device)

	bridge.OnEnrolled(context.Background(), enrolledEvent(""))
	result := bridge.OnEnrolled(context.Background(), enrolledEvent(""))

	assert.False(t, result.Duplicate)
	assert.Equal(t, 2, device.Launches)
}

// TestOnEnrolled_LaunchFailure verifies the lockdown still stands when launch fails
func TestOnEnrolled_LaunchFailure(t *testing.T) {
	device := fixtures.NewFakeDevice()
	device.Fail["LaunchMainActivity"] = fixtures.ErrInjected
	bridge := newTestBridge(device)

	result := bridge.OnEnrolled(context.Background(), enrolledEvent("evt-1"))

	assert.True(t, result.Bootstrapped)
	assert.False(t, result.Launched)
	assert.True(t, device.Snapshot().KeyguardDisabled)
}

// TestOnEnrolled_SeenWindowBounded verifies old ids age out of the duplicate window
func TestOnEnrolled_SeenWindowBounded(t *testing.T) {
	device := fixtures.NewFakeDevice()
	bridge := newTestBridge(device)

	for i := 0; i <= maxSeenEvents; i++ {
		bridge.OnEnrolled(context.Background(), enrolledEvent(fmt.Sprintf("evt-%d", i)))
	}

	require.Len(t, bridge.seen, maxSeenEvents)
	result := bridge.OnEnrolled(context.Background(), enrolledEvent("evt-0"))
	assert.False(t, result.Duplicate)
}

// TestOnAdminDisabled_NoHostCalls verifies admin removal is only logged
func TestOnAdminDisabled_NoHostCalls(t *testing.T) {
	device := fixtures.NewFakeDevice()
	bridge := newTestBridge(device)

	bridge.OnAdminDisabled(context.Background(), domain.HostEvent{ID: "evt-9", Kind: domain.EventAdminDisabled})

	assert.Equal(t, 0, device.TotalCalls())
}
