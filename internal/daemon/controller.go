// Package daemon runs the kiosk controller loop.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
	"github.com/eliteGoblin/focusd/kioskctl/internal/policy"
	"github.com/eliteGoblin/focusd/kioskctl/internal/usecase"
)

// ErrStopped is returned by Submit once the loop has exited.
var ErrStopped = errors.New("controller stopped")

// processedDir holds inbox packages that were handed to the installer.
const processedDir = "processed"

// Config holds controller loop configuration.
type Config struct {
	ReassertInterval time.Duration // 0 disables periodic re-assertion
	InboxDir         string        // "" disables the package inbox
}

// DefaultConfig returns default controller configuration.
func DefaultConfig() Config {
	return Config{
		ReassertInterval: policy.DefaultReassertInterval,
	}
}

type request struct {
	cmd   usecase.Command
	reply chan response
}

type response struct {
	reply usecase.Reply
	err   error
}

// Controller owns every controller component and runs them on one goroutine.
// Host events, re-assertion ticks, inbox packages and submitted commands are
// handled strictly one at a time, in arrival order per source.
type Controller struct {
	config     Config
	inspector  domain.PrivilegeInspector
	applicator domain.PolicyApplicator
	supervisor domain.LockSupervisor
	gatekeeper domain.InstallGatekeeper
	bridge     domain.EnrollmentBridge
	dispatcher *usecase.Dispatcher
	directives []domain.Directive
	journal    domain.Journal
	logger     *zap.Logger

	requests chan request
	installs chan string
	stopped  chan struct{}
}

// NewController wires the controller components around host.
// journal may be nil.
func NewController(
	config Config,
	host domain.DevicePolicyHost,
	fs domain.FileSystemManager,
	directives []domain.Directive,
	journal domain.Journal,
	logger *zap.Logger,
) *Controller {
	inspector := usecase.NewInspector(host, logger)
	applicator := usecase.NewApplicator(host, logger)
	supervisor := usecase.NewSupervisor(host, inspector, logger)
	gatekeeper := usecase.NewGatekeeper(host, fs, logger)

	return &Controller{
		config:     config,
		inspector:  inspector,
		applicator: applicator,
		supervisor: supervisor,
		gatekeeper: gatekeeper,
		bridge:     usecase.NewBridge(host, inspector, applicator, directives, logger),
		dispatcher: usecase.NewDispatcher(inspector, supervisor, gatekeeper, logger),
		directives: directives,
		journal:    journal,
		logger:     logger,
		requests:   make(chan request),
		installs:   make(chan string, 64),
		stopped:    make(chan struct{}),
	}
}

// Inspector returns the privilege inspector.
func (c *Controller) Inspector() domain.PrivilegeInspector { return c.inspector }

// Supervisor returns the lock-mode supervisor.
func (c *Controller) Supervisor() domain.LockSupervisor { return c.supervisor }

// Run handles events and requests until ctx is cancelled.
// A closed events channel is not an error; the loop keeps serving requests.
func (c *Controller) Run(ctx context.Context, events <-chan domain.HostEvent) error {
	defer close(c.stopped)

	c.logger.Info("controller started",
		zap.Int("directives", len(c.directives)),
		zap.Duration("reassert_interval", c.config.ReassertInterval),
		zap.String("inbox", c.config.InboxDir))

	var tick <-chan time.Time
	if c.config.ReassertInterval > 0 {
		ticker := time.NewTicker(c.config.ReassertInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	c.scanInbox()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("controller stopping")
			return ctx.Err()

		case event, ok := <-events:
			if !ok {
				c.logger.Warn("host event stream closed")
				events = nil
				continue
			}
			c.HandleEvent(ctx, event)

		case <-tick:
			c.Reassert(ctx)

		case path := <-c.installs:
			c.installFromInbox(ctx, path)

		case req := <-c.requests:
			reply, err := c.handleCommand(ctx, req.cmd)
			req.reply <- response{reply: reply, err: err}
		}
	}
}

// Submit hands cmd to the loop and waits for its reply.
func (c *Controller) Submit(ctx context.Context, cmd usecase.Command) (usecase.Reply, error) {
	req := request{cmd: cmd, reply: make(chan response, 1)}

	select {
	case c.requests <- req:
	case <-c.stopped:
		return usecase.Reply{}, ErrStopped
	case <-ctx.Done():
		return usecase.Reply{}, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp.reply, resp.err
	case <-ctx.Done():
		return usecase.Reply{}, ctx.Err()
	}
}

// EnqueueInstall queues an inbox package for installation.
func (c *Controller) EnqueueInstall(path string) {
	select {
	case c.installs <- path:
	case <-c.stopped:
	}
}

// HandleEvent routes one host event.
func (c *Controller) HandleEvent(ctx context.Context, event domain.HostEvent) {
	log := c.logger.With(zap.String("event", string(event.Kind)), zap.String("event_id", event.ID))
	log.Debug("host event received")

	switch event.Kind {
	case domain.EventEnrolled, domain.EventAdminEnabled:
		result := c.bridge.OnEnrolled(ctx, event)
		outcome := "ignored"
		switch {
		case result.Duplicate:
			outcome = "duplicate"
		case result.Bootstrapped:
			outcome = "bootstrapped"
			c.recordReport("bootstrap", result.Report)
		}
		c.record("event", string(event.Kind), outcome, event.ID)
		if result.Launched {
			c.relock(ctx, "launch")
		}

	case domain.EventAdminDisabled:
		c.bridge.OnAdminDisabled(ctx, event)
		c.record("event", string(event.Kind), "logged", event.ID)

	case domain.EventLaunched, domain.EventResumed:
		c.record("event", string(event.Kind), "", event.ID)
		c.relock(ctx, string(event.Kind))

	default:
		log.Warn("unknown host event ignored")
	}
}

// Reassert re-applies the lockdown and re-checks lock mode.
// Pending inbox packages are retried as well.
func (c *Controller) Reassert(ctx context.Context) {
	if !c.inspector.HasManagementAuthority() {
		c.logger.Debug("skipping re-assertion, no management authority")
		return
	}
	c.logger.Debug("re-asserting lockdown")
	c.recordReport("reassert", c.applicator.ApplyLockdown(ctx, c.directives))
	c.relock(ctx, "reassert")
	c.scanInbox()
}

// Lockdown applies the directive sequence once.
func (c *Controller) Lockdown(ctx context.Context) domain.LockdownReport {
	report := c.applicator.ApplyLockdown(ctx, c.directives)
	c.recordReport("apply", report)
	return report
}

// Revoke lifts the directive sequence in reverse.
func (c *Controller) Revoke(ctx context.Context) domain.LockdownReport {
	report := c.applicator.RevokeLockdown(ctx, c.directives)
	c.recordReport("revoke", report)
	return report
}

// Install runs one install request through the gatekeeper.
func (c *Controller) Install(ctx context.Context, path, caller string) domain.InstallResult {
	result := c.gatekeeper.InstallPackage(ctx, domain.InstallRequest{Path: path, Caller: caller})
	c.record("install", path, string(result.Outcome), result.Detail)
	return result
}

// Enter requests lock-task mode.
func (c *Controller) Enter(ctx context.Context) bool {
	ok := c.supervisor.Enter(ctx)
	c.record("lock", "enter", fmt.Sprint(ok), "")
	return ok
}

// Exit releases lock-task mode.
func (c *Controller) Exit(ctx context.Context) bool {
	ok := c.supervisor.Exit(ctx)
	c.record("lock", "exit", fmt.Sprint(ok), "")
	return ok
}

func (c *Controller) relock(ctx context.Context, reason string) {
	if c.supervisor.OnForeground(ctx) {
		c.record("lock", "enter", "true", reason)
	}
}

func (c *Controller) handleCommand(ctx context.Context, cmd usecase.Command) (usecase.Reply, error) {
	reply, err := c.dispatcher.Handle(ctx, cmd)
	subject := cmd.Channel + "." + cmd.Method
	if err != nil {
		c.record("command", subject, "error", err.Error())
		return reply, err
	}
	c.record("command", subject, fmt.Sprint(reply.Result), reply.Detail)
	return reply, nil
}

func (c *Controller) installFromInbox(ctx context.Context, path string) {
	result := c.Install(ctx, path, "inbox")
	if result.Outcome != domain.InstallInstalled {
		c.logger.Info("inbox package left for retry",
			zap.String("path", path),
			zap.String("outcome", string(result.Outcome)))
		return
	}

	dest := filepath.Join(filepath.Dir(path), processedDir, filepath.Base(path))
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		c.logger.Warn("failed to create processed directory", zap.Error(err))
		return
	}
	if err := os.Rename(path, dest); err != nil {
		c.logger.Warn("failed to move processed package", zap.String("path", path), zap.Error(err))
	}
}

func (c *Controller) scanInbox() {
	if c.config.InboxDir == "" {
		return
	}
	var pending []string
	if err := ScanExisting(c.config.InboxDir, func(path string) {
		pending = append(pending, path)
	}); err != nil {
		c.logger.Warn("inbox scan failed", zap.Error(err))
		return
	}
	for _, path := range pending {
		select {
		case c.installs <- path:
		default:
			c.logger.Warn("install queue full, package deferred", zap.String("path", path))
		}
	}
}

func (c *Controller) recordReport(subject string, report domain.LockdownReport) {
	outcome := "applied"
	var failed []string
	for _, o := range report.Failed() {
		failed = append(failed, fmt.Sprintf("%s: %s", o.Directive, o.Status))
	}
	if report.Degraded() {
		outcome = "degraded"
	}
	c.record("lockdown", subject, outcome, strings.Join(failed, ", "))
}

func (c *Controller) record(kind, subject, outcome, detail string) {
	if c.journal == nil {
		return
	}
	err := c.journal.Record(domain.JournalEntry{
		Kind:    kind,
		Subject: subject,
		Outcome: outcome,
		Detail:  detail,
	})
	if err != nil {
		c.logger.Warn("failed to write journal", zap.String("kind", kind), zap.Error(err))
	}
}
