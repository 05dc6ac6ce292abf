package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
)

// ApplicatorImpl implements domain.PolicyApplicator.
// Lockdown is best effort: a failing directive is recorded and skipped,
// never allowed to abort the rest of the sequence.
type ApplicatorImpl struct {
	host   domain.DevicePolicyHost
	logger *zap.Logger
}

// NewApplicator creates a new policy applicator.
func NewApplicator(host domain.DevicePolicyHost, logger *zap.Logger) domain.PolicyApplicator {
	return &ApplicatorImpl{
		host:   host,
		logger: logger,
	}
}

// ApplyLockdown applies directives in order.
func (a *ApplicatorImpl) ApplyLockdown(ctx context.Context, directives []domain.Directive) domain.LockdownReport {
	report := a.run(ctx, "apply", directives, func(d domain.Directive) error {
		return d.Apply(a.host)
	})

	if report.Degraded() {
		a.logger.Warn("lockdown applied in degraded mode",
			zap.Int("applied", len(report.Outcomes)-len(report.Failed())),
			zap.Int("failed", len(report.Failed())))
	} else {
		a.logger.Info("lockdown applied",
			zap.Int("directives", len(report.Outcomes)))
	}
	return report
}

// RevokeLockdown lifts directives in reverse order.
func (a *ApplicatorImpl) RevokeLockdown(ctx context.Context, directives []domain.Directive) domain.LockdownReport {
	reversed := make([]domain.Directive, len(directives))
	for i, d := range directives {
		reversed[len(directives)-1-i] = d
	}

	report := a.run(ctx, "revoke", reversed, func(d domain.Directive) error {
		return d.Revoke(a.host)
	})

	a.logger.Info("lockdown revoked",
		zap.Int("directives", len(report.Outcomes)),
		zap.Int("failed", len(report.Failed())))
	return report
}

func (a *ApplicatorImpl) run(
	ctx context.Context,
	action string,
	directives []domain.Directive,
	attempt func(domain.Directive) error,
) domain.LockdownReport {
	start := time.Now()

	report := domain.LockdownReport{
		Outcomes:   make([]domain.DirectiveOutcome, 0, len(directives)),
		ExecutedAt: start,
	}

	for _, d := range directives {
		if ctx.Err() != nil {
			report.Outcomes = append(report.Outcomes, domain.DirectiveOutcome{
				Directive: d.ID(),
				Status:    domain.DirectiveFailed,
				Kind:      domain.KindTransientHostFailure,
				Reason:    ctx.Err().Error(),
			})
			continue
		}

		report.Outcomes = append(report.Outcomes, a.attempt(action, d, attempt))
	}

	report.DurationMs = time.Since(start).Milliseconds()
	return report
}

// attempt runs one directive and converts any failure into an outcome.
func (a *ApplicatorImpl) attempt(action string, d domain.Directive, fn func(domain.Directive) error) (outcome domain.DirectiveOutcome) {
	outcome = domain.DirectiveOutcome{Directive: d.ID()}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("directive panicked",
				zap.String("action", action),
				zap.String("directive", string(d.ID())),
				zap.Any("panic", r))
			outcome.Status = domain.DirectiveFailed
			outcome.Kind = domain.KindTransientHostFailure
			outcome.Reason = "panic during directive"
		}
	}()

	err := fn(d)
	if err == nil {
		a.logger.Debug("directive done",
			zap.String("action", action),
			zap.String("directive", string(d.ID())))
		outcome.Status = domain.DirectiveApplied
		return outcome
	}

	outcome.Kind = domain.KindOf(err)
	outcome.Reason = err.Error()
	if outcome.Kind == domain.KindDirectiveUnsupported {
		outcome.Status = domain.DirectiveUnsupported
	} else {
		outcome.Status = domain.DirectiveFailed
	}

	a.logger.Warn("directive not applied",
		zap.String("action", action),
		zap.String("directive", string(d.ID())),
		zap.String("kind", string(outcome.Kind)),
		zap.Error(err))
	return outcome
}

// Ensure ApplicatorImpl implements domain.PolicyApplicator.
var _ domain.PolicyApplicator = (*ApplicatorImpl)(nil)
