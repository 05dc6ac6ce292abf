package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/kioskctl/internal/config"
	"github.com/eliteGoblin/focusd/kioskctl/internal/daemon"
	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
	"github.com/eliteGoblin/focusd/kioskctl/internal/infra"
	"github.com/eliteGoblin/focusd/kioskctl/internal/policy"
)

// app holds the components one command needs.
type app struct {
	cfg        *config.Config
	adb        *infra.ADB
	host       *infra.AdbHost
	controller *daemon.Controller
	journal    *infra.EncryptedJournal // nil when disabled or unavailable
	inboxDir   string
	logger     *zap.Logger
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if serialFlag != "" {
		cfg.Device.Serial = serialFlag
	}

	known := policy.NewRegistry(cfg.DomainIdentity()).List()
	if err := cfg.Validate(known); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newRegistry(cfg *config.Config) *policy.Registry {
	return policy.NewRegistry(cfg.DomainIdentity())
}

func newDaemonRegistry(cfg *config.Config) domain.DaemonRegistry {
	return infra.NewFileRegistry(expandPath(cfg.Journal.DataDir), infra.NewProcessManager())
}

func expandPath(path string) string {
	return infra.NewFileSystemManager().ExpandHome(path)
}

// newApp loads config and wires the adb host and controller.
// withJournal opens the encrypted journal; failure to open it is logged and
// the command carries on without one.
func newApp(ctx context.Context, logger *zap.Logger, withJournal bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	registry := newRegistry(cfg)
	directives := registry.Sequence()
	if ids := cfg.DirectiveIDs(); ids != nil {
		directives, err = registry.Select(ids)
		if err != nil {
			return nil, err
		}
	}

	fs := infra.NewFileSystemManager()
	runner := infra.NewCommandRunner(cfg.Device.CommandTimeout)
	adb := infra.NewADB(cfg.Device.ADBPath, cfg.Device.Serial, runner, infra.NewProcessManager(), logger)
	if err := adb.EnsureServer(ctx); err != nil {
		return nil, fmt.Errorf("adb unavailable: %w", err)
	}
	host := infra.NewAdbHost(adb, cfg.DomainIdentity(), logger)

	a := &app{cfg: cfg, adb: adb, host: host, logger: logger}

	var journal domain.Journal
	if withJournal && cfg.Journal.Enabled {
		j, err := infra.OpenJournal(fs.ExpandHome(cfg.Journal.DataDir))
		if err != nil {
			logger.Warn("journal unavailable", zap.Error(err))
		} else {
			if moved := j.SetAside(); moved != "" {
				logger.Warn("journal key was missing, previous journal set aside", zap.String("path", moved))
			}
			a.journal = j
			journal = j
		}
	}

	if cfg.Supervisor.InboxDir != "" {
		a.inboxDir = fs.ExpandHome(cfg.Supervisor.InboxDir)
	}

	a.controller = daemon.NewController(
		daemon.Config{
			ReassertInterval: cfg.Supervisor.ReassertInterval,
			InboxDir:         a.inboxDir,
		},
		host,
		fs,
		directives,
		journal,
		logger,
	)
	return a, nil
}

func (a *app) Close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warn("failed to close journal", zap.Error(err))
		}
	}
}

// createLogger builds the daemon logger writing JSON lines to the log file.
func createLogger(cfg config.LogConfig) *zap.Logger {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if cfg.Level != "" {
		if l, err := zapcore.ParseLevel(cfg.Level); err == nil {
			level.SetLevel(l)
		}
	}
	if verbose {
		level.SetLevel(zap.DebugLevel)
	}

	logFile := expandPath(cfg.File)
	config := zap.NewProductionConfig()
	config.Level = level
	config.OutputPaths = []string{"stderr"}
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err == nil {
			config.OutputPaths = []string{logFile}
		}
	}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

// newCLILogger logs warnings to stderr, or everything with --verbose.
func newCLILogger() *zap.Logger {
	config := zap.NewDevelopmentConfig()
	if !verbose {
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
