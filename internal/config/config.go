// Package config loads kioskctl settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
)

// DeviceConfig selects the managed device.
type DeviceConfig struct {
	ADBPath        string        `yaml:"adb_path"`
	Serial         string        `yaml:"serial"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// IdentityConfig names the kiosk application on the device.
type IdentityConfig struct {
	Package               string `yaml:"package"`
	AdminReceiver         string `yaml:"admin_receiver"`
	MainActivity          string `yaml:"main_activity"`
	CommandReceiver       string `yaml:"command_receiver"`
	FileProviderAuthority string `yaml:"file_provider_authority"`
}

// LockdownConfig lists directive ids to apply, in order.
// Empty means the full built-in sequence.
type LockdownConfig struct {
	Directives []string `yaml:"directives"`
}

// SupervisorConfig controls the daemon loop.
type SupervisorConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval"`
	ReassertInterval time.Duration `yaml:"reassert_interval"`
	InboxDir         string        `yaml:"inbox_dir"`
}

// APIConfig controls the HTTP command surface.
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// JournalConfig controls the encrypted journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	DataDir string `yaml:"data_dir"`
}

// LogConfig controls daemon log output.
type LogConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// Config is the full kioskctl configuration.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Identity   IdentityConfig   `yaml:"identity"`
	Lockdown   LockdownConfig   `yaml:"lockdown"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	API        APIConfig        `yaml:"api"`
	Journal    JournalConfig    `yaml:"journal"`
	Log        LogConfig        `yaml:"log"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ADBPath:        "adb",
			CommandTimeout: 15 * time.Second,
		},
		Identity: IdentityConfig{
			Package:               "com.example.kiosk",
			AdminReceiver:         ".AppDeviceAdminReceiver",
			MainActivity:          ".MainActivity",
			CommandReceiver:       ".ControllerCommandReceiver",
			FileProviderAuthority: "com.example.kiosk.fileprovider",
		},
		Supervisor: SupervisorConfig{
			PollInterval:     2 * time.Second,
			ReassertInterval: 10 * time.Minute,
			InboxDir:         "~/.kioskctl/inbox",
		},
		API: APIConfig{
			Listen: "127.0.0.1:8765",
		},
		Journal: JournalConfig{
			Enabled: true,
			DataDir: "~/.kioskctl",
		},
		Log: LogConfig{
			File:  "~/.kioskctl/kioskctl.log",
			Level: "info",
		},
	}
}

// DefaultPath returns ~/.kioskctl/config.yaml, or "" without a home directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".kioskctl", "config.yaml")
}

// LoadConfig loads configuration from a YAML file.
// Empty path falls back to DefaultPath. Missing file returns defaults.
// Invalid YAML returns an error.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
		if path == "" {
			return DefaultConfig(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// requiredDirectives must be part of any configured directive subset.
var requiredDirectives = []domain.DirectiveID{
	domain.DirectivePermitLockTask,
	domain.DirectivePersistentLauncher,
}

// Validate checks required fields and that every configured directive id is
// one of known.
func (c *Config) Validate(known []domain.DirectiveID) error {
	var errs []error

	if c.Identity.Package == "" {
		errs = append(errs, errors.New("identity.package is required"))
	}
	if c.Identity.MainActivity == "" {
		errs = append(errs, errors.New("identity.main_activity is required"))
	}
	if c.Identity.CommandReceiver == "" {
		errs = append(errs, errors.New("identity.command_receiver is required"))
	}
	if c.Supervisor.PollInterval < 0 {
		errs = append(errs, errors.New("supervisor.poll_interval must not be negative"))
	}
	if c.Supervisor.ReassertInterval < 0 {
		errs = append(errs, errors.New("supervisor.reassert_interval must not be negative"))
	}

	valid := make(map[domain.DirectiveID]bool, len(known))
	for _, id := range known {
		valid[id] = true
	}
	seen := make(map[string]bool)
	for _, id := range c.Lockdown.Directives {
		if !valid[domain.DirectiveID(id)] {
			errs = append(errs, fmt.Errorf("lockdown.directives: unknown directive %q", id))
		}
		if seen[id] {
			errs = append(errs, fmt.Errorf("lockdown.directives: duplicate directive %q", id))
		}
		seen[id] = true
	}
	if len(c.Lockdown.Directives) > 0 {
		// Enrollment takes over HOME and lock mode needs the allow-list.
		for _, id := range requiredDirectives {
			if !seen[string(id)] {
				errs = append(errs, fmt.Errorf("lockdown.directives: %q is required", id))
			}
		}
	}

	return errors.Join(errs...)
}

// DomainIdentity converts the identity section.
func (c *Config) DomainIdentity() domain.Identity {
	return domain.Identity{
		Package:               c.Identity.Package,
		AdminReceiver:         c.Identity.AdminReceiver,
		MainActivity:          c.Identity.MainActivity,
		CommandReceiver:       c.Identity.CommandReceiver,
		FileProviderAuthority: c.Identity.FileProviderAuthority,
	}
}

// DirectiveIDs returns the configured directive ids, or nil for the full sequence.
func (c *Config) DirectiveIDs() []domain.DirectiveID {
	if len(c.Lockdown.Directives) == 0 {
		return nil
	}
	ids := make([]domain.DirectiveID, len(c.Lockdown.Directives))
	for i, id := range c.Lockdown.Directives {
		ids[i] = domain.DirectiveID(id)
	}
	return ids
}
