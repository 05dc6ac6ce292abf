// Package usecase contains the kiosk policy controller logic.
package usecase

import (
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
)

// InspectorImpl implements domain.PrivilegeInspector.
// Both queries fail closed: a host error reads as "no privilege".
type InspectorImpl struct {
	host   domain.DevicePolicyHost
	logger *zap.Logger
}

// NewInspector creates a privilege inspector for host.
func NewInspector(host domain.DevicePolicyHost, logger *zap.Logger) domain.PrivilegeInspector {
	return &InspectorImpl{
		host:   host,
		logger: logger,
	}
}

// HasManagementAuthority reports whether the kiosk is device owner right now.
func (i *InspectorImpl) HasManagementAuthority() bool {
	owner, err := i.host.IsDeviceOwnerApp()
	if err != nil {
		i.logger.Warn("device owner query failed, assuming no authority",
			zap.String("kind", string(domain.KindOf(err))),
			zap.Error(err))
		return false
	}
	return owner
}

// IsLockModePermitted reports whether the platform allows lock-task entry.
func (i *InspectorImpl) IsLockModePermitted() bool {
	permitted, err := i.host.IsLockTaskPermitted()
	if err != nil {
		i.logger.Warn("lock task permission query failed, assuming not permitted",
			zap.String("kind", string(domain.KindOf(err))),
			zap.Error(err))
		return false
	}
	return permitted
}

// Ensure InspectorImpl implements domain.PrivilegeInspector.
var _ domain.PrivilegeInspector = (*InspectorImpl)(nil)
