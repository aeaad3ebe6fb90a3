package roster

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/pulse-core/internal/telemetry"
)

// Logger is the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry wraps a Repository with an in-memory map of device links.
//
// The map is loaded by Refresh and kept in sync by Link, Unlink and
// ClearLinks. Lookup never touches the store, so the ingest path can call it
// from a driver callback. All methods are safe for concurrent use.
type Registry struct {
	repo   Repository
	mu     sync.RWMutex
	links  map[uint32]*telemetry.Identity
	logger Logger
}

// NewRegistry creates a registry over repo. Call Refresh before use.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		links:  make(map[uint32]*telemetry.Identity),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Refresh reloads every link from the store.
func (r *Registry) Refresh(ctx context.Context) error {
	linked, err := r.repo.ListLinks(ctx)
	if err != nil {
		return fmt.Errorf("loading device links: %w", err)
	}

	links := make(map[uint32]*telemetry.Identity, len(linked))
	for i := range linked {
		links[linked[i].Link.DeviceID] = linked[i].User.Identity()
	}

	r.mu.Lock()
	r.links = links
	r.mu.Unlock()

	r.logger.Info("device links loaded", "count", len(links))
	return nil
}

// Lookup returns a copy of the identity linked to deviceID from memory.
func (r *Registry) Lookup(deviceID uint32) (*telemetry.Identity, bool) {
	r.mu.RLock()
	id, ok := r.links[deviceID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	c := *id
	return &c, true
}

// FindUserForDevice resolves from memory, falling back to the store for
// links written by another process.
func (r *Registry) FindUserForDevice(ctx context.Context, deviceID uint32) (*telemetry.Identity, error) {
	if id, ok := r.Lookup(deviceID); ok {
		return id, nil
	}

	id, err := r.repo.FindUserForDevice(ctx, deviceID)
	if err != nil || id == nil {
		return nil, err
	}

	c := *id
	r.mu.Lock()
	r.links[deviceID] = &c
	r.mu.Unlock()
	return id, nil
}

// Link binds deviceID to userID in the store and in memory.
func (r *Registry) Link(ctx context.Context, deviceID uint32, userID string) (*DeviceLink, error) {
	link, err := r.repo.Link(ctx, deviceID, userID)
	if err != nil {
		return nil, err
	}

	user, err := r.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.links[deviceID] = user.Identity()
	r.mu.Unlock()

	r.logger.Info("device linked", "device_id", deviceID, "user_id", userID)
	return link, nil
}

// Unlink removes the link for deviceID.
func (r *Registry) Unlink(ctx context.Context, deviceID uint32) error {
	if err := r.repo.Unlink(ctx, deviceID); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.links, deviceID)
	r.mu.Unlock()

	r.logger.Info("device unlinked", "device_id", deviceID)
	return nil
}

// ClearLinks removes every link.
func (r *Registry) ClearLinks(ctx context.Context) error {
	if err := r.repo.ClearLinks(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	r.links = make(map[uint32]*telemetry.Identity)
	r.mu.Unlock()
	return nil
}

// ListLinks returns the stored links joined with their users.
func (r *Registry) ListLinks(ctx context.Context) ([]LinkedUser, error) {
	return r.repo.ListLinks(ctx)
}

// CreateUser stores a new user.
func (r *Registry) CreateUser(ctx context.Context, u *User) error {
	return r.repo.CreateUser(ctx, u)
}

// ListUsers returns all users.
func (r *Registry) ListUsers(ctx context.Context) ([]User, error) {
	return r.repo.ListUsers(ctx)
}

// Len returns the number of links held in memory.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.links)
}
