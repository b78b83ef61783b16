// Package memory provides an in-process settings store for tests and
// embedders that do not want a database file.
package memory

import (
	"context"
	"sync"

	"github.com/aurascope/aurascope/internal/settings"
)

type Store struct {
	*settings.Notifier

	mu      sync.RWMutex
	current settings.Settings
}

var _ settings.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		Notifier: settings.NewNotifier(),
		current:  settings.Default(),
	}
}

func (s *Store) Get(ctx context.Context) (settings.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *Store) Put(ctx context.Context, next settings.Settings) error {
	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	s.Publish(next)
	return nil
}

func (s *Store) Close() error {
	s.Notifier.Close()
	return nil
}
