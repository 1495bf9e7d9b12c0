package procdesc

import (
	"context"
	"os"
	"sync"

	"github.com/core-tools/hsu-procdesc-go/pkg/errors"
	"github.com/core-tools/hsu-procdesc-go/pkg/logging"
)

// Store holds the descriptors loaded from one file for the lifetime of a
// supervisor. The file is only re-read on an explicit Reload.
type Store struct {
	filename string
	logger   logging.Logger

	mutex   sync.RWMutex
	current *Ecosystem
}

// NewStore loads filename; a malformed file aborts construction
func NewStore(filename string, logger logging.Logger) (*Store, error) {
	ecosystem, err := LoadFromFile(filename, logger)
	if err != nil {
		return nil, err
	}

	return &Store{
		filename: filename,
		logger:   logger,
		current:  ecosystem,
	}, nil
}

// Current returns a copy of the active descriptors
func (s *Store) Current() *Ecosystem {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.current.Clone()
}

func (s *Store) Lookup(name string) (ProcessDescriptor, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.current.Lookup(name)
}

// Reload re-reads the file. On failure the previous descriptors stay active.
func (s *Store) Reload() error {
	s.logger.Infof("Reloading process descriptors from %s", s.filename)

	ecosystem, err := LoadFromFile(s.filename, s.logger)
	if err != nil {
		s.logger.Errorf("Reload failed, keeping previous descriptors: %v", err)
		return errors.NewConfigError("failed to reload process descriptors", err).WithContext("filename", s.filename)
	}

	s.mutex.Lock()
	previous := s.current
	s.current = ecosystem
	s.mutex.Unlock()

	s.logger.Infof("Reloaded process descriptors, before: %d, after: %d", len(previous.Apps), len(ecosystem.Apps))
	return nil
}

// ReloadOn calls Reload for every signal received on signals until ctx is done.
// onReload, when set, observes the outcome of each attempt.
func (s *Store) ReloadOn(ctx context.Context, signals <-chan os.Signal, onReload func(error)) {
	for {
		select {
		case <-ctx.Done():
			s.logger.Debugf("Reload loop for %s stopped", s.filename)
			return
		case receivedSignal, ok := <-signals:
			if !ok {
				return
			}
			s.logger.Infof("Received signal: %v", receivedSignal)
			err := s.Reload()
			if onReload != nil {
				onReload(err)
			}
		}
	}
}
