package infra

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
)

const (
	commandAction = ".action.CONTROLLER_COMMAND"

	opInstallPackages = "REQUEST_INSTALL_PACKAGES"

	// Files pushed here are served by the kiosk's file provider under updates/.
	remoteUpdatesDir = "/sdcard/Android/data/%s/files/updates"
)

// AdbHost implements domain.DevicePolicyHost over adb.
// Device-owner calls are relayed to the kiosk's command receiver, which runs
// them with the app's own DevicePolicyManager; read-only queries use dumpsys.
type AdbHost struct {
	adb      *ADB
	identity domain.Identity
	logger   *zap.Logger
}

// NewAdbHost creates a host adapter for the kiosk named by identity.
func NewAdbHost(adb *ADB, identity domain.Identity, logger *zap.Logger) *AdbHost {
	return &AdbHost{
		adb:      adb,
		identity: identity,
		logger:   logger,
	}
}

func (h *AdbHost) relay(op string, extras ...string) error {
	ctx := context.Background()
	_, err := h.adb.Broadcast(ctx, op,
		h.identity.Package+commandAction,
		h.identity.Component(h.identity.CommandReceiver),
		extras...)
	if err != nil {
		h.logger.Debug("relay failed", zap.String("op", op), zap.Error(err))
	}
	return err
}

func (h *AdbHost) shell(op string, args ...string) (string, error) {
	out, err := h.adb.Shell(context.Background(), args...)
	if err != nil {
		return "", domain.NewHostError(op, domain.KindTransientHostFailure, err)
	}
	return out, nil
}

func (h *AdbHost) IsDeviceOwnerApp() (bool, error) {
	out, err := h.shell("isDeviceOwnerApp", "dumpsys", "device_policy")
	if err != nil {
		return false, err
	}
	return parseDeviceOwner(out) == h.identity.Package, nil
}

func (h *AdbHost) IsLockTaskPermitted() (bool, error) {
	out, err := h.shell("isLockTaskPermitted", "dumpsys", "device_policy")
	if err != nil {
		return false, err
	}
	for _, p := range parseLockTaskPackages(out) {
		if p == h.identity.Package {
			return true, nil
		}
	}
	return false, nil
}

func (h *AdbHost) SetLockTaskPackages(packages []string) error {
	return h.relay("setLockTaskPackages", "packages", strings.Join(packages, ","))
}

func (h *AdbHost) SetLockTaskFeatures(features []domain.LockTaskFeature) error {
	names := make([]string, len(features))
	for i, f := range features {
		names[i] = string(f)
	}
	return h.relay("setLockTaskFeatures", "features", strings.Join(names, ","))
}

func (h *AdbHost) AddUserRestriction(r domain.UserRestriction) error {
	return h.relay("addUserRestriction", "restriction", string(r))
}

func (h *AdbHost) ClearUserRestriction(r domain.UserRestriction) error {
	return h.relay("clearUserRestriction", "restriction", string(r))
}

func (h *AdbHost) SetKeyguardDisabled(disabled bool) error {
	return h.relay("setKeyguardDisabled", "disabled", strconv.FormatBool(disabled))
}

func (h *AdbHost) SetStatusBarDisabled(disabled bool) error {
	return h.relay("setStatusBarDisabled", "disabled", strconv.FormatBool(disabled))
}

func (h *AdbHost) SetGlobalSetting(key, value string) error {
	return h.relay("setGlobalSetting", "key", key, "value", value)
}

func (h *AdbHost) SetPersistentHomeActivity(activity string) error {
	return h.relay("addPersistentPreferredActivity", "activity", activity)
}

func (h *AdbHost) ClearPersistentHomeActivity() error {
	return h.relay("clearPackagePersistentPreferredActivities")
}

func (h *AdbHost) SetUninstallBlocked(pkg string, blocked bool) error {
	return h.relay("setUninstallBlocked", "package", pkg, "blocked", strconv.FormatBool(blocked))
}

func (h *AdbHost) StartLockTask() error {
	return h.relay("startLockTask")
}

func (h *AdbHost) StopLockTask() error {
	return h.relay("stopLockTask")
}

func (h *AdbHost) LockTaskMode() (domain.HostLockTaskMode, error) {
	out, err := h.shell("lockTaskMode", "dumpsys", "activity", "activities")
	if err != nil {
		return domain.LockTaskNone, err
	}
	return parseLockTaskMode(out), nil
}

// ResumedPackage returns the package of the foreground activity.
func (h *AdbHost) ResumedPackage() (string, error) {
	out, err := h.shell("resumedActivity", "dumpsys", "activity", "activities")
	if err != nil {
		return "", err
	}
	return parseResumedPackage(out), nil
}

func (h *AdbHost) SDKLevel() (int, error) {
	out, err := h.shell("sdkLevel", "getprop", "ro.build.version.sdk")
	if err != nil {
		return 0, err
	}
	sdk, err := parseSDKLevel(out)
	if err != nil {
		return 0, domain.NewHostError("sdkLevel", domain.KindTransientHostFailure, err)
	}
	return sdk, nil
}

func (h *AdbHost) CanRequestPackageInstalls() (bool, error) {
	out, err := h.shell("canRequestPackageInstalls", "appops", "get", h.identity.Package, opInstallPackages)
	if err != nil {
		return false, err
	}
	return parseAppOpAllowed(out, opInstallPackages), nil
}

func (h *AdbHost) UnknownSourcesAllowed() (bool, error) {
	out, err := h.shell("unknownSourcesAllowed", "settings", "get", "secure", "install_non_market_apps")
	if err != nil {
		return false, err
	}
	return out == "1", nil
}

func (h *AdbHost) LaunchPermissionFlow(flow domain.PermissionFlow) error {
	args := []string{"am", "start"}
	switch flow {
	case domain.FlowPerSourceInstall:
		args = append(args, "-a", "android.settings.MANAGE_UNKNOWN_APP_SOURCES", "-d", "package:"+h.identity.Package)
	case domain.FlowUnknownSources:
		args = append(args, "-a", "android.settings.SECURITY_SETTINGS")
	default:
		return domain.NewHostError("launchPermissionFlow", domain.KindResourceNotFound,
			fmt.Errorf("unknown permission flow %q", flow))
	}
	_, err := h.shell("launchPermissionFlow", args...)
	return err
}

// ShareFile pushes the package into the kiosk's update directory and
// returns the file provider URI for it.
func (h *AdbHost) ShareFile(local string) (string, error) {
	name := path.Base(local)
	remote := fmt.Sprintf(remoteUpdatesDir, h.identity.Package) + "/" + name
	if err := h.adb.Push(context.Background(), local, remote); err != nil {
		return "", domain.NewHostError("shareFile", domain.KindTransientHostFailure, err)
	}
	return fmt.Sprintf("content://%s/updates/%s", h.identity.FileProviderAuthority, name), nil
}

func (h *AdbHost) ResolveInstallHandler(intent domain.InstallIntent) (bool, error) {
	out, err := h.shell("resolveInstallHandler",
		"cmd", "package", "resolve-activity", "--brief",
		"-a", "android.intent.action.VIEW", "-d", intent.URI, "-t", intent.MimeType)
	if err != nil {
		return false, err
	}
	return parseResolved(out), nil
}

// DispatchInstall asks the kiosk to start the installer, so the URI grant
// comes from the app that owns the file provider.
func (h *AdbHost) DispatchInstall(intent domain.InstallIntent) error {
	return h.relay("installPackage",
		"uri", intent.URI,
		"mime", intent.MimeType,
		"grantRead", strconv.FormatBool(intent.GrantRead))
}

func (h *AdbHost) LaunchMainActivity() error {
	_, err := h.shell("launchMainActivity",
		"am", "start", "-n", h.identity.Component(h.identity.MainActivity))
	return err
}

// Ensure AdbHost implements domain.DevicePolicyHost.
var _ domain.DevicePolicyHost = (*AdbHost)(nil)
