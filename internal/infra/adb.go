package infra

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
)

// Broadcast result codes returned by the kiosk command receiver.
const (
	resultOK          = -1 // Activity.RESULT_OK
	resultNoReceiver  = 0  // nobody set a result
	resultUnsupported = 2
	resultSecurity    = 3
	resultNotFound    = 4
)

var broadcastResult = regexp.MustCompile(`Broadcast completed: result=(-?\d+)(?:, data="([^"]*)")?`)

// ADB talks to one device through the adb binary.
type ADB struct {
	path   string
	serial string
	runner CommandRunner
	pm     domain.ProcessManager
	logger *zap.Logger
}

// NewADB creates an adb client. An empty serial targets the only attached device.
func NewADB(path, serial string, runner CommandRunner, pm domain.ProcessManager, logger *zap.Logger) *ADB {
	if path == "" {
		path = "adb"
	}
	return &ADB{
		path:   path,
		serial: serial,
		runner: runner,
		pm:     pm,
		logger: logger,
	}
}

func (a *ADB) args(args ...string) []string {
	if a.serial == "" {
		return args
	}
	return append([]string{"-s", a.serial}, args...)
}

// EnsureServer starts the adb server if no adb process is running.
func (a *ADB) EnsureServer(ctx context.Context) error {
	if a.pm != nil {
		pids, err := a.pm.FindByName("adb")
		if err == nil && len(pids) > 0 {
			a.logger.Debug("adb server running", zap.Ints("pids", pids))
			return nil
		}
	}
	a.logger.Info("starting adb server")
	if err := a.runner.Run(ctx, a.path, "start-server"); err != nil {
		return fmt.Errorf("failed to start adb server: %w", err)
	}
	return nil
}

// Shell runs a shell command on the device and returns trimmed stdout.
// adb joins the arguments into one line for the device sh, so each one is
// quoted to stay a single word.
func (a *ADB) Shell(ctx context.Context, args ...string) (string, error) {
	line := make([]string, 0, len(args)+1)
	line = append(line, "shell")
	for _, arg := range args {
		line = append(line, shellQuote(arg))
	}
	out, err := a.runner.Output(ctx, a.path, a.args(line...)...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Push copies a local file to the device.
func (a *ADB) Push(ctx context.Context, local, remote string) error {
	return a.runner.Run(ctx, a.path, a.args("push", local, remote)...)
}

// Broadcast sends an explicit broadcast to component and maps the receiver's
// result code onto the error taxonomy. extras are "--es key value" pairs.
func (a *ADB) Broadcast(ctx context.Context, op, action, component string, extras ...string) (string, error) {
	args := []string{"am", "broadcast", "-a", action, "-n", component, "--es", "op", op}
	for i := 0; i+1 < len(extras); i += 2 {
		args = append(args, "--es", extras[i], extras[i+1])
	}

	out, err := a.Shell(ctx, args...)
	if err != nil {
		return "", domain.NewHostError(op, domain.KindTransientHostFailure, err)
	}

	code, data, err := parseBroadcastResult(out)
	if err != nil {
		return "", domain.NewHostError(op, domain.KindTransientHostFailure, err)
	}

	switch code {
	case resultOK:
		return data, nil
	case resultUnsupported:
		return "", domain.NewHostError(op, domain.KindDirectiveUnsupported, fmt.Errorf("unsupported: %s", data))
	case resultSecurity:
		return "", domain.NewHostError(op, domain.KindAuthorityDenied, fmt.Errorf("security exception: %s", data))
	case resultNotFound:
		return "", domain.NewHostError(op, domain.KindResourceNotFound, fmt.Errorf("not found: %s", data))
	case resultNoReceiver:
		return "", domain.NewHostError(op, domain.KindTransientHostFailure, fmt.Errorf("no receiver answered"))
	default:
		return "", domain.NewHostError(op, domain.KindTransientHostFailure, fmt.Errorf("result %d: %s", code, data))
	}
}

func parseBroadcastResult(out string) (int, string, error) {
	m := broadcastResult.FindStringSubmatch(out)
	if m == nil {
		return 0, "", fmt.Errorf("unexpected broadcast output: %q", out)
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", fmt.Errorf("bad result code %q: %w", m[1], err)
	}
	return code, m[2], nil
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// shellQuote returns s as one sh word. Plain tokens are left bare.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
