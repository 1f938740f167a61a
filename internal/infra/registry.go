package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/abduljabar5/khushood/internal/domain"
)

const registryFileName = ".khushood_procs"

// FileRegistry implements domain.ProcessRegistry using a hidden JSON file.
// The foreground app and the background monitor register their PIDs here
// and check each other's liveness through it.
type FileRegistry struct {
	path           string
	processManager domain.ProcessManager
}

// NewFileRegistry creates a process registry inside dataDir.
func NewFileRegistry(dataDir string, pm domain.ProcessManager) domain.ProcessRegistry {
	return &FileRegistry{
		path:           filepath.Join(dataDir, registryFileName),
		processManager: pm,
	}
}

// NewFileRegistryWithPath creates a registry at a specific path (for testing).
func NewFileRegistryWithPath(path string, pm domain.ProcessManager) domain.ProcessRegistry {
	return &FileRegistry{
		path:           path,
		processManager: pm,
	}
}

// Register saves the current process PID under its role.
func (r *FileRegistry) Register(p domain.Process) error {
	// File lock prevents a race between the app and the monitor
	lockFile, err := os.OpenFile(r.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lockFile.Close()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() { _ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN) }()

	entry, _ := r.Snapshot() // May not exist yet
	if entry == nil {
		entry = &domain.RegistryEntry{Version: 1}
	}

	switch p.Role {
	case domain.RoleApp:
		entry.AppPID = p.PID
	case domain.RoleMonitor:
		entry.MonitorPID = p.PID
	default:
		return fmt.Errorf("unknown process role %q", p.Role)
	}
	entry.LastHeartbeat = time.Now().Unix()
	if p.AppVersion != "" {
		entry.AppVersion = p.AppVersion
	}

	return r.atomicWrite(entry)
}

// UpdateHeartbeat updates the timestamp for liveness checks.
func (r *FileRegistry) UpdateHeartbeat(role domain.ProcessRole) error {
	entry, err := r.Snapshot()
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("process %s not registered", role)
	}

	entry.LastHeartbeat = time.Now().Unix()
	return r.atomicWrite(entry)
}

// IsPartnerAlive checks if the other process is running via PID.
func (r *FileRegistry) IsPartnerAlive(role domain.ProcessRole) (bool, error) {
	entry, err := r.Snapshot()
	if err != nil || entry == nil {
		return false, nil // Partner not registered = not alive
	}

	var pid int
	switch role {
	case domain.RoleApp:
		pid = entry.MonitorPID
	case domain.RoleMonitor:
		pid = entry.AppPID
	}
	if pid == 0 {
		return false, nil
	}

	return r.processManager.IsRunning(pid), nil
}

// Snapshot returns the full registry state.
func (r *FileRegistry) Snapshot() (*domain.RegistryEntry, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entry domain.RegistryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}

	return &entry, nil
}

// Clear removes the registry file.
func (r *FileRegistry) Clear() error {
	err := os.Remove(r.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// atomicWrite writes the registry atomically (write + rename).
func (r *FileRegistry) atomicWrite(entry *domain.RegistryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	// Temp file is unique per process to avoid a rename race
	tmpPath := fmt.Sprintf("%s.%d.tmp", r.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath) // Clean up on failure
		return err
	}
	return nil
}

// Ensure FileRegistry implements domain.ProcessRegistry.
var _ domain.ProcessRegistry = (*FileRegistry)(nil)
