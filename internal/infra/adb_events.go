package infra

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
)

// DefaultPollInterval is how often the device is sampled for state changes.
const DefaultPollInterval = 2 * time.Second

// DeviceProbe is the slice of host state the event poller samples.
type DeviceProbe interface {
	IsDeviceOwnerApp() (bool, error)
	ResumedPackage() (string, error)
}

// PollingEventSource turns sampled device state into host events.
// The first sample emits "launched"; afterwards owner false->true emits
// "enrolled", true->false emits "admin-disabled", and the kiosk coming back
// to the foreground emits "resumed".
type PollingEventSource struct {
	probe    DeviceProbe
	pkg      string
	interval time.Duration
	logger   *zap.Logger
}

// NewPollingEventSource creates an event source for the kiosk package pkg.
func NewPollingEventSource(probe DeviceProbe, pkg string, interval time.Duration, logger *zap.Logger) *PollingEventSource {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollingEventSource{
		probe:    probe,
		pkg:      pkg,
		interval: interval,
		logger:   logger,
	}
}

type deviceSample struct {
	owner bool
	front bool
}

// Events starts polling. The channel is closed when ctx is done.
func (s *PollingEventSource) Events(ctx context.Context) <-chan domain.HostEvent {
	events := make(chan domain.HostEvent, 8)

	go func() {
		defer close(events)

		prev, ok := s.sample()
		if ok && !s.emit(ctx, events, domain.EventLaunched) {
			return
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cur, ok := s.sample()
				if !ok {
					continue
				}
				for _, kind := range transitions(prev, cur) {
					if !s.emit(ctx, events, kind) {
						return
					}
				}
				prev = cur
			}
		}
	}()

	return events
}

// transitions lists the events implied by moving from prev to cur.
func transitions(prev, cur deviceSample) []domain.HostEventKind {
	var kinds []domain.HostEventKind
	switch {
	case !prev.owner && cur.owner:
		kinds = append(kinds, domain.EventEnrolled)
	case prev.owner && !cur.owner:
		kinds = append(kinds, domain.EventAdminDisabled)
	}
	if !prev.front && cur.front {
		kinds = append(kinds, domain.EventResumed)
	}
	return kinds
}

func (s *PollingEventSource) sample() (deviceSample, bool) {
	owner, err := s.probe.IsDeviceOwnerApp()
	if err != nil {
		s.logger.Debug("device owner sample failed", zap.Error(err))
		return deviceSample{}, false
	}
	top, err := s.probe.ResumedPackage()
	if err != nil {
		s.logger.Debug("foreground sample failed", zap.Error(err))
		return deviceSample{}, false
	}
	return deviceSample{owner: owner, front: top == s.pkg}, true
}

func (s *PollingEventSource) emit(ctx context.Context, events chan<- domain.HostEvent, kind domain.HostEventKind) bool {
	event := domain.HostEvent{ID: uuid.NewString(), Kind: kind, At: time.Now()}
	select {
	case events <- event:
		s.logger.Debug("host event", zap.String("event", string(kind)), zap.String("event_id", event.ID))
		return true
	case <-ctx.Done():
		return false
	}
}

// Ensure PollingEventSource implements domain.EventSource.
var _ domain.EventSource = (*PollingEventSource)(nil)
