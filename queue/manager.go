package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xraph/jobqueue"
)

// Connector builds a backend for one connection config. Implementations
// merge their own defaults into cfg.
type Connector interface {
	Connect(ctx context.Context, cfg Config) (Backend, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, cfg Config) (Backend, error)

// Connect calls f.
func (f ConnectorFunc) Connect(ctx context.Context, cfg Config) (Backend, error) {
	return f(ctx, cfg)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger for the manager.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithDefaultConnection sets the connection used for empty names.
func WithDefaultConnection(name string) ManagerOption {
	return func(m *Manager) { m.defaultName = name }
}

// Manager resolves connection names to backends. Each name is connected at
// most once; the backend is cached until Close. It is safe for concurrent
// use.
type Manager struct {
	mu          sync.Mutex
	defaultName string
	configs     map[string]Config
	connectors  map[string]Connector
	connections map[string]Backend
	logger      *slog.Logger
}

// NewManager creates a Manager with no connections.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		defaultName: "default",
		configs:     make(map[string]Config),
		connectors:  make(map[string]Connector),
		connections: make(map[string]Backend),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddConnector registers c for driver.
func (m *Manager) AddConnector(driver string, c Connector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectors[driver] = c
}

// AddConnection registers the config for name. It has no effect on a
// connection that was already resolved.
func (m *Manager) AddConnection(name string, cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[name] = cfg
}

// SetDefaultConnection changes the connection used for empty names.
func (m *Manager) SetDefaultConnection(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultName = name
}

// DefaultConnection returns the connection used for empty names.
func (m *Manager) DefaultConnection() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaultName
}

// Connected reports whether name has been resolved.
func (m *Manager) Connected(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.connections[m.nameLocked(name)]
	return ok
}

// Connection returns the backend for name, connecting on first use.
func (m *Manager) Connection(ctx context.Context, name string) (Backend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = m.nameLocked(name)
	if b, ok := m.connections[name]; ok {
		return b, nil
	}

	cfg, ok := m.configs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", jobqueue.ErrConnectionNotConfigured, name)
	}
	c, ok := m.connectors[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("%w: %q for connection %q", jobqueue.ErrUnknownDriver, cfg.Driver, name)
	}

	b, err := c.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("jobqueue: connect %q: %w", name, err)
	}
	m.connections[name] = b

	resolved := b.Config()
	m.logger.Info("queue connection resolved",
		slog.String("connection", name),
		slog.String("driver", resolved.Driver),
		slog.String("queue", resolved.Queue),
		slog.Int("limit", resolved.Limit),
		slog.Duration("expire", resolved.Expire),
	)
	return b, nil
}

// Close closes every resolved backend and forgets it.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, b := range m.connections {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", name, err))
		}
		delete(m.connections, name)
	}
	return errors.Join(errs...)
}

func (m *Manager) nameLocked(name string) string {
	if name == "" {
		return m.defaultName
	}
	return name
}
