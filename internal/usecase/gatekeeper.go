package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
)

const (
	// SDKPerSourceInstall is the first API level with per-source install permission (O).
	SDKPerSourceInstall = 26
	// SDKContentSharing is the first API level rejecting file:// URIs in intents (N).
	SDKContentSharing = 24

	// PackageMimeType is the MIME type the platform installer handles.
	PackageMimeType = "application/vnd.android.package-archive"
)

// GatekeeperImpl implements domain.InstallGatekeeper.
type GatekeeperImpl struct {
	host   domain.DevicePolicyHost
	fs     domain.FileSystemManager
	logger *zap.Logger
}

// NewGatekeeper creates a package install gatekeeper.
func NewGatekeeper(host domain.DevicePolicyHost, fs domain.FileSystemManager, logger *zap.Logger) domain.InstallGatekeeper {
	return &GatekeeperImpl{
		host:   host,
		fs:     fs,
		logger: logger,
	}
}

// InstallPackage validates req and hands the package to the platform installer.
// Installed means the install request was dispatched, not that it completed.
func (g *GatekeeperImpl) InstallPackage(ctx context.Context, req domain.InstallRequest) domain.InstallResult {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	log := g.logger.With(
		zap.String("request_id", req.ID),
		zap.String("path", req.Path),
		zap.String("caller", req.Caller))

	result := func(outcome domain.InstallOutcome, detail string) domain.InstallResult {
		return domain.InstallResult{RequestID: req.ID, Outcome: outcome, Detail: detail}
	}

	// Step 1: the file must exist locally before the host is touched
	path := g.fs.ExpandHome(req.Path)
	if path == "" || !g.fs.Exists(path) {
		log.Warn("install package not found")
		return result(domain.InstallFileNotFound, fmt.Sprintf("file not found: %s", req.Path))
	}
	if g.fs.IsDir(path) {
		log.Warn("install path is a directory")
		return result(domain.InstallFileNotFound, fmt.Sprintf("not a file: %s", req.Path))
	}

	sdk, err := g.host.SDKLevel()
	if err != nil {
		log.Error("failed to read platform version", zap.Error(err))
		return result(domain.InstallFailed, fmt.Sprintf("platform version: %v", err))
	}

	// Step 2: install-source permission differs by platform version
	permitted, flow, err := g.installPermitted(sdk)
	if err != nil {
		log.Error("failed to read install permission", zap.Error(err))
		return result(domain.InstallFailed, fmt.Sprintf("install permission: %v", err))
	}
	if !permitted {
		if err := g.host.LaunchPermissionFlow(flow); err != nil {
			log.Error("failed to open install permission settings", zap.Error(err))
			return result(domain.InstallFailed, fmt.Sprintf("permission flow: %v", err))
		}
		log.Info("install permission required, settings opened",
			zap.String("flow", string(flow)))
		return result(domain.InstallPermissionRequired,
			"grant install permission and retry")
	}

	// Step 3: address the file in a form the installer may read
	intent := domain.InstallIntent{MimeType: PackageMimeType}
	if sdk >= SDKContentSharing {
		uri, err := g.host.ShareFile(path)
		if err != nil {
			log.Error("failed to share package", zap.Error(err))
			return result(domain.InstallFailed, fmt.Sprintf("share package: %v", err))
		}
		intent.URI = uri
		intent.GrantRead = true
	} else {
		intent.URI = "file://" + path
	}

	// Step 4: someone has to handle it
	ok, err := g.host.ResolveInstallHandler(intent)
	if err != nil {
		log.Error("failed to resolve installer", zap.Error(err))
		return result(domain.InstallFailed, fmt.Sprintf("resolve installer: %v", err))
	}
	if !ok {
		log.Warn("no installer can handle the package", zap.String("uri", intent.URI))
		return result(domain.InstallNoHandler, "no installer available for "+intent.URI)
	}

	// Step 5: dispatch
	if err := g.host.DispatchInstall(intent); err != nil {
		log.Error("failed to dispatch install", zap.Error(err))
		return result(domain.InstallFailed, fmt.Sprintf("dispatch install: %v", err))
	}

	log.Info("install dispatched", zap.String("uri", intent.URI))
	return result(domain.InstallInstalled, intent.URI)
}

// installPermitted checks the permission that applies at sdk and names the
// settings flow that grants it.
func (g *GatekeeperImpl) installPermitted(sdk int) (bool, domain.PermissionFlow, error) {
	if sdk >= SDKPerSourceInstall {
		ok, err := g.host.CanRequestPackageInstalls()
		return ok, domain.FlowPerSourceInstall, err
	}
	ok, err := g.host.UnknownSourcesAllowed()
	return ok, domain.FlowUnknownSources, err
}

// Ensure GatekeeperImpl implements domain.InstallGatekeeper.
var _ domain.InstallGatekeeper = (*GatekeeperImpl)(nil)
