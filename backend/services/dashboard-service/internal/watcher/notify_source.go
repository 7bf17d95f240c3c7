package watcher

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"parkpay/backend/services/dashboard-service/internal/models"
)

const relevantOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove

// NotifySource uses native file notifications. It watches the parent directory so that the
// ledger's atomic rename is observed, and filters events by base name.
type NotifySource struct {
	source  models.Source
	base    string
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending bool
	err     error
	done    chan struct{}
}

// NewNotifySource starts watching path's directory. The first Poll reports a change.
func NewNotifySource(source models.Source, path string) (*NotifySource, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: create notifier: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watcher: watch %s: %w", filepath.Dir(path), err)
	}

	s := &NotifySource{
		source:  source,
		base:    filepath.Base(path),
		watcher: w,
		pending: true,
		done:    make(chan struct{}),
	}
	go s.loop()
	return s, nil
}

func (s *NotifySource) loop() {
	defer close(s.done)
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != s.base || ev.Op&relevantOps == 0 {
				continue
			}
			s.mu.Lock()
			s.pending = true
			s.mu.Unlock()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.mu.Lock()
			s.err = err
			s.pending = true
			s.mu.Unlock()
		}
	}
}

// Source implements ChangeSource.
func (s *NotifySource) Source() models.Source {
	return s.source
}

// Poll implements ChangeSource. A notifier error is returned once and also forces a change so
// that subscribers are resynchronized.
func (s *NotifySource) Poll() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed, err := s.pending, s.err
	s.pending, s.err = false, nil
	return changed, err
}

// Rearm implements ChangeSource.
func (s *NotifySource) Rearm() {
	s.mu.Lock()
	s.pending = true
	s.mu.Unlock()
}

// Close stops the notifier.
func (s *NotifySource) Close() error {
	err := s.watcher.Close()
	<-s.done
	return err
}
