package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
)

const registryFileName = "daemon.json"

// FileRegistry implements domain.DaemonRegistry with a JSON file in the
// data directory.
type FileRegistry struct {
	path           string
	processManager domain.ProcessManager
}

// NewFileRegistry creates a registry at dataDir/daemon.json.
func NewFileRegistry(dataDir string, pm domain.ProcessManager) domain.DaemonRegistry {
	return NewFileRegistryWithPath(filepath.Join(dataDir, registryFileName), pm)
}

// NewFileRegistryWithPath creates a registry at a specific path (for testing).
func NewFileRegistryWithPath(path string, pm domain.ProcessManager) domain.DaemonRegistry {
	return &FileRegistry{
		path:           path,
		processManager: pm,
	}
}

// Register saves the daemon record under an exclusive file lock.
func (r *FileRegistry) Register(record domain.DaemonRecord) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	lockPath := r.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lockFile.Close()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() { _ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN) }()

	now := time.Now().Unix()
	if record.StartedAt == 0 {
		record.StartedAt = now
	}
	record.LastHeartbeat = now
	return r.atomicWrite(&record)
}

// Get returns the stored record, or nil when no daemon ever registered.
func (r *FileRegistry) Get() (*domain.DaemonRecord, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var record domain.DaemonRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Running returns the record if its pid is alive.
func (r *FileRegistry) Running() (*domain.DaemonRecord, bool) {
	record, err := r.Get()
	if err != nil || record == nil || record.PID == 0 {
		return nil, false
	}
	if !r.processManager.IsRunning(record.PID) {
		return record, false
	}
	return record, true
}

// UpdateHeartbeat updates timestamp for liveness check.
func (r *FileRegistry) UpdateHeartbeat() error {
	record, err := r.Get()
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("daemon not registered")
	}

	record.LastHeartbeat = time.Now().Unix()
	return r.atomicWrite(record)
}

// Clear removes the registry file. A missing file is not an error.
func (r *FileRegistry) Clear() error {
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// atomicWrite writes registry to file atomically (write + rename).
func (r *FileRegistry) atomicWrite(record *domain.DaemonRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	// Temp file unique per process
	tmpPath := fmt.Sprintf("%s.%d.tmp", r.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Ensure FileRegistry implements domain.DaemonRegistry.
var _ domain.DaemonRegistry = (*FileRegistry)(nil)
