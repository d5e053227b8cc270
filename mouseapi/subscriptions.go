package mouseapi

import (
	"log/slog"
	"sync"

	"github.com/Nuitfanee/clicksync/config"
	"github.com/Nuitfanee/clicksync/hid"
)

// subscriptions holds the three listener lists. Lists are snapshotted
// before iteration so a callback unsubscribing itself (or panicking) cannot
// invalidate the loop.
type subscriptions struct {
	mu      sync.Mutex
	nextID  int
	config  map[int]func(*config.MouseConfig)
	battery map[int]func(config.Battery)
	raw     map[int]func(hid.InputReport)
}

func (s *subscriptions) onConfig(cb func(*config.MouseConfig)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.config == nil {
		s.config = make(map[int]func(*config.MouseConfig))
	}
	id := s.nextID
	s.nextID++
	s.config[id] = cb
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.config, id)
	}
}

func (s *subscriptions) onBattery(cb func(config.Battery)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.battery == nil {
		s.battery = make(map[int]func(config.Battery))
	}
	id := s.nextID
	s.nextID++
	s.battery[id] = cb
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.battery, id)
	}
}

func (s *subscriptions) onRaw(cb func(hid.InputReport)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raw == nil {
		s.raw = make(map[int]func(hid.InputReport))
	}
	id := s.nextID
	s.nextID++
	s.raw[id] = cb
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.raw, id)
	}
}

func (s *subscriptions) notifyConfig(log *slog.Logger, c *config.MouseConfig) {
	s.mu.Lock()
	cbs := make([]func(*config.MouseConfig), 0, len(s.config))
	for _, cb := range s.config {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()
	for _, cb := range cbs {
		cb := cb
		safeCall(log, func() { cb(c.Clone()) })
	}
}

func (s *subscriptions) notifyBattery(log *slog.Logger, b config.Battery) {
	s.mu.Lock()
	cbs := make([]func(config.Battery), 0, len(s.battery))
	for _, cb := range s.battery {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()
	for _, cb := range cbs {
		cb := cb
		safeCall(log, func() { cb(b) })
	}
}

func (s *subscriptions) notifyRaw(log *slog.Logger, r hid.InputReport) {
	s.mu.Lock()
	cbs := make([]func(hid.InputReport), 0, len(s.raw))
	for _, cb := range s.raw {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()
	data := append([]byte(nil), r.Data...)
	for _, cb := range cbs {
		cb := cb
		safeCall(log, func() { cb(hid.InputReport{ReportID: r.ReportID, Data: data}) })
	}
}

// safeCall swallows subscriber panics so one broken listener cannot break
// the notification loop or the originating operation.
func safeCall(log *slog.Logger, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("subscriber panicked", "panic", r)
		}
	}()
	fn()
}
