package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
)

// Command channels exposed to the kiosk UI and remote callers.
const (
	ChannelKiosk     = "kiosk"
	ChannelAppUpdate = "app_update"
)

// ErrNotImplemented is returned for any channel or method the dispatcher
// does not know.
var ErrNotImplemented = errors.New("not implemented")

// Command is a single request on the command surface.
type Command struct {
	Channel string            `json:"channel"`
	Method  string            `json:"method"`
	Args    map[string]string `json:"args,omitempty"`
}

// Reply carries a command result back to the caller.
type Reply struct {
	Result interface{} `json:"result"`
	Detail string      `json:"detail,omitempty"`
}

type handlerFunc func(ctx context.Context, args map[string]string) (Reply, error)

// Dispatcher routes commands to the controller components.
type Dispatcher struct {
	handlers map[string]map[string]handlerFunc
	logger   *zap.Logger
}

// NewDispatcher wires the command surface onto the controller.
func NewDispatcher(
	inspector domain.PrivilegeInspector,
	supervisor domain.LockSupervisor,
	gatekeeper domain.InstallGatekeeper,
	logger *zap.Logger,
) *Dispatcher {
	isOwner := func(ctx context.Context, _ map[string]string) (Reply, error) {
		return Reply{Result: inspector.HasManagementAuthority()}, nil
	}
	enter := func(ctx context.Context, _ map[string]string) (Reply, error) {
		return Reply{Result: supervisor.Enter(ctx)}, nil
	}
	exit := func(ctx context.Context, _ map[string]string) (Reply, error) {
		return Reply{Result: supervisor.Exit(ctx)}, nil
	}
	state := func(ctx context.Context, _ map[string]string) (Reply, error) {
		return Reply{Result: string(supervisor.CurrentLockState(ctx))}, nil
	}
	install := func(ctx context.Context, args map[string]string) (Reply, error) {
		res := gatekeeper.InstallPackage(ctx, domain.InstallRequest{
			ID:     args["id"],
			Path:   args["path"],
			Caller: args["caller"],
		})
		return Reply{Result: string(res.Outcome), Detail: res.Detail}, nil
	}

	return &Dispatcher{
		handlers: map[string]map[string]handlerFunc{
			ChannelKiosk: {
				"isManagingAuthority": isOwner,
				"isDeviceOwner":       isOwner,
				"enterLockMode":       enter,
				"startLockTask":       enter,
				"exitLockMode":        exit,
				"stopLockTask":        exit,
				"currentLockState":    state,
			},
			ChannelAppUpdate: {
				"installPackage": install,
			},
		},
		logger: logger,
	}
}

// Handle runs cmd. Unknown channels and methods yield ErrNotImplemented.
func (d *Dispatcher) Handle(ctx context.Context, cmd Command) (Reply, error) {
	methods, ok := d.handlers[cmd.Channel]
	if !ok {
		d.logger.Debug("unknown command channel", zap.String("channel", cmd.Channel))
		return Reply{}, fmt.Errorf("channel %q: %w", cmd.Channel, ErrNotImplemented)
	}
	h, ok := methods[cmd.Method]
	if !ok {
		d.logger.Debug("unknown command method",
			zap.String("channel", cmd.Channel),
			zap.String("method", cmd.Method))
		return Reply{}, fmt.Errorf("%s.%s: %w", cmd.Channel, cmd.Method, ErrNotImplemented)
	}

	d.logger.Debug("handling command",
		zap.String("channel", cmd.Channel),
		zap.String("method", cmd.Method))
	return h(ctx, cmd.Args)
}
