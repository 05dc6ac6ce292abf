package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
)

// maxSeenEvents bounds the duplicate-delivery window.
const maxSeenEvents = 64

// BridgeImpl implements domain.EnrollmentBridge.
type BridgeImpl struct {
	host       domain.DevicePolicyHost
	inspector  domain.PrivilegeInspector
	applicator domain.PolicyApplicator
	directives []domain.Directive
	logger     *zap.Logger

	seen  map[string]struct{}
	order []string
}

// NewBridge creates an enrollment bridge that bootstraps directives on enrollment.
// directives should be the full sequence, including the HOME takeover.
func NewBridge(
	host domain.DevicePolicyHost,
	inspector domain.PrivilegeInspector,
	applicator domain.PolicyApplicator,
	directives []domain.Directive,
	logger *zap.Logger,
) *BridgeImpl {
	return &BridgeImpl{
		host:       host,
		inspector:  inspector,
		applicator: applicator,
		directives: directives,
		logger:     logger,
		seen:       make(map[string]struct{}),
	}
}

// OnEnrolled runs the bootstrap sequence: authority gate, lockdown,
// launcher takeover, launch. Re-delivery of an already handled event id is
// skipped; any other repeat is safe because every directive is idempotent.
func (b *BridgeImpl) OnEnrolled(ctx context.Context, event domain.HostEvent) domain.EnrollmentResult {
	result := domain.EnrollmentResult{EventID: event.ID}
	log := b.logger.With(
		zap.String("event_id", event.ID),
		zap.String("event", string(event.Kind)))

	if b.markSeen(event.ID) {
		log.Info("duplicate enrollment event ignored")
		result.Duplicate = true
		return result
	}

	if !b.inspector.HasManagementAuthority() {
		log.Warn("enrollment completed but app is not the device owner, staying in normal mode")
		return result
	}

	log.Info("device owner confirmed, configuring kiosk mode")
	result.Report = b.applicator.ApplyLockdown(ctx, b.directives)
	result.Bootstrapped = true

	if err := b.host.LaunchMainActivity(); err != nil {
		log.Error("failed to launch main activity",
			zap.String("kind", string(domain.KindOf(err))),
			zap.Error(err))
		return result
	}
	result.Launched = true

	log.Info("kiosk bootstrap complete",
		zap.Bool("degraded", result.Report.Degraded()))
	return result
}

// OnAdminDisabled records that device admin was removed. Nothing to undo:
// the platform drops owner policies itself.
func (b *BridgeImpl) OnAdminDisabled(ctx context.Context, event domain.HostEvent) {
	b.logger.Info("device admin disabled", zap.String("event_id", event.ID))
}

// markSeen records id and reports whether it had been seen before.
func (b *BridgeImpl) markSeen(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := b.seen[id]; ok {
		return true
	}
	b.seen[id] = struct{}{}
	b.order = append(b.order, id)
	if len(b.order) > maxSeenEvents {
		delete(b.seen, b.order[0])
		b.order = b.order[1:]
	}
	return false
}

// Ensure BridgeImpl implements domain.EnrollmentBridge.
var _ domain.EnrollmentBridge = (*BridgeImpl)(nil)
