package settings

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sumitx99/ethical-web-watchdog/internal/classifier"
)

// Cache serves the current settings of one profile without locking. Reads
// happen on every observed request; writes go through to the store first.
type Cache struct {
	store   Store
	profile string
	current atomic.Pointer[Settings]
	writeMu sync.Mutex
	logger  *zap.Logger
}

// NewCache loads profile from store, falling back to Defaults when it has
// never been saved.
func NewCache(ctx context.Context, store Store, profile string, logger *zap.Logger) (*Cache, error) {
	if profile == "" {
		profile = DefaultProfile
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{store: store, profile: profile, logger: logger}
	loaded, err := store.Load(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("NewCache: %w", err)
	}
	if loaded == nil {
		d := Defaults()
		loaded = &d
	}
	c.current.Store(loaded)
	return c, nil
}

// Get returns a copy of the current settings.
func (c *Cache) Get() Settings {
	return c.current.Load().Clone()
}

// Put validates s, persists it and makes it current.
func (c *Cache) Put(ctx context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	next := s.Clone()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.store.Save(ctx, c.profile, next); err != nil {
		return fmt.Errorf("Put: %w", err)
	}
	c.current.Store(&next)
	c.logger.Info("settings updated",
		zap.String("profile", c.profile),
		zap.Bool("auto_scan", next.AutoScan),
		zap.Bool("notifications", next.Notifications),
	)
	return nil
}

// Track reports whether requests to service should be tracked.
func (c *Cache) Track(service classifier.Service) bool {
	s := c.current.Load()
	return s.AutoScan && s.ServiceEnabled(string(service))
}

// Notify reports whether push messages should be delivered.
func (c *Cache) Notify() bool {
	return c.current.Load().Notifications
}
