package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nutrilog/sessiond/helper"
	"github.com/nutrilog/sessiond/logger"
)

// Manager fans audit entries out to registered devices.
type Manager struct {
	mu       sync.RWMutex
	devices  map[string]Device
	log      logger.Logger
	parallel bool
}

// ManagerConfig contains configuration for the audit manager
type ManagerConfig struct {
	// Parallel enables concurrent logging to multiple devices (default: true)
	// Set to false if you need strict ordering across all devices
	Parallel bool
}

// NewManager creates a new audit manager
func NewManager(log logger.Logger) *Manager {
	return &Manager{
		devices:  make(map[string]Device),
		log:      log.WithSubsystem("audit"),
		parallel: true,
	}
}

// NewManagerWithConfig creates a new audit manager with custom configuration
func NewManagerWithConfig(log logger.Logger, config ManagerConfig) *Manager {
	m := NewManager(log)
	m.parallel = config.Parallel
	return m
}

// RegisterDevice registers a new audit device
func (m *Manager) RegisterDevice(name string, device Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[name]; exists {
		return fmt.Errorf("device %q already registered", name)
	}

	m.devices[name] = device
	return nil
}

// UnregisterDevice unregisters an audit device
func (m *Manager) UnregisterDevice(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	device, exists := m.devices[name]
	if !exists {
		return fmt.Errorf("device %q not found", name)
	}

	if err := device.Close(); err != nil {
		return fmt.Errorf("failed to close device: %w", err)
	}

	delete(m.devices, name)
	return nil
}

// ListDevices returns all registered device names
func (m *Manager) ListDevices() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.devices))
	for name := range m.devices {
		names = append(names, name)
	}
	return names
}

// Record writes an entry to every registered device. Device failures are
// logged, never propagated: audit emission is a one-way notification.
func (m *Manager) Record(ctx context.Context, entry *Entry) {
	if entry == nil {
		return
	}

	entry = entry.Clone()
	if entry.ID == "" {
		entry.ID = helper.GenerateRequestID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	m.mu.RLock()
	devices := make(map[string]Device, len(m.devices))
	for name, device := range m.devices {
		devices[name] = device
	}
	m.mu.RUnlock()

	if m.parallel {
		var wg sync.WaitGroup
		for name, device := range devices {
			wg.Add(1)
			go func(name string, device Device) {
				defer wg.Done()
				m.logToDevice(ctx, name, device, entry)
			}(name, device)
		}
		wg.Wait()
		return
	}

	for name, device := range devices {
		m.logToDevice(ctx, name, device, entry)
	}
}

func (m *Manager) logToDevice(ctx context.Context, name string, device Device, entry *Entry) {
	if err := device.Log(ctx, entry); err != nil {
		m.log.Error("audit device write failed",
			logger.String("device", name),
			logger.String("entry_type", entry.Type),
			logger.Err(err),
		)
	}
}

// Close closes all registered devices
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for name, device := range m.devices {
		if err := device.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close device %q: %w", name, err)
		}
		delete(m.devices, name)
	}
	return firstErr
}
