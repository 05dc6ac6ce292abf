package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
)

// SupervisorImpl implements domain.LockSupervisor.
// It keeps no lock state of its own; every answer comes from the host.
type SupervisorImpl struct {
	host      domain.DevicePolicyHost
	inspector domain.PrivilegeInspector
	logger    *zap.Logger
}

// NewSupervisor creates a lock-mode supervisor.
func NewSupervisor(
	host domain.DevicePolicyHost,
	inspector domain.PrivilegeInspector,
	logger *zap.Logger,
) domain.LockSupervisor {
	return &SupervisorImpl{
		host:      host,
		inspector: inspector,
		logger:    logger,
	}
}

// Enter requests lock-task mode. It declines without touching the host
// lock state unless the kiosk holds authority and lock-task permission.
func (s *SupervisorImpl) Enter(ctx context.Context) bool {
	if !s.inspector.HasManagementAuthority() {
		s.logger.Warn("lock task declined",
			zap.String("kind", string(domain.KindAuthorityDenied)))
		return false
	}
	if !s.inspector.IsLockModePermitted() {
		s.logger.Warn("lock task declined, not permitted for this app",
			zap.String("kind", string(domain.KindPermissionDenied)))
		return false
	}

	if err := s.host.StartLockTask(); err != nil {
		s.logger.Error("failed to start lock task",
			zap.String("kind", string(domain.KindOf(err))),
			zap.Error(err))
		return false
	}

	s.logger.Info("lock task mode started")
	return true
}

// Exit releases lock-task mode. It is never gated by policy.
func (s *SupervisorImpl) Exit(ctx context.Context) bool {
	if err := s.host.StopLockTask(); err != nil {
		s.logger.Error("failed to stop lock task",
			zap.String("kind", string(domain.KindOf(err))),
			zap.Error(err))
		return false
	}

	s.logger.Info("lock task mode stopped")
	return true
}

// CurrentLockState reads the live lock-task mode from the host.
// Screen pinning counts as locked.
func (s *SupervisorImpl) CurrentLockState(ctx context.Context) domain.LockState {
	mode, err := s.host.LockTaskMode()
	if err != nil {
		s.logger.Warn("lock task mode query failed",
			zap.String("kind", string(domain.KindOf(err))),
			zap.Error(err))
		return domain.Unlocked
	}

	switch mode {
	case domain.LockTaskLocked, domain.LockTaskPinned:
		return domain.Locked
	default:
		return domain.Unlocked
	}
}

// OnForeground re-enters lock-task mode when the kiosk regains focus and
// the device is found unlocked.
func (s *SupervisorImpl) OnForeground(ctx context.Context) bool {
	if !s.inspector.HasManagementAuthority() || !s.inspector.IsLockModePermitted() {
		s.logger.Debug("foreground regained without lock privileges")
		return false
	}

	if s.CurrentLockState(ctx) == domain.Locked {
		return false
	}

	s.logger.Info("foreground regained while unlocked, re-entering lock task")
	return s.Enter(ctx)
}

// Ensure SupervisorImpl implements domain.LockSupervisor.
var _ domain.LockSupervisor = (*SupervisorImpl)(nil)
