package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/armorline/storefront/internal/cart/storage"
	"golang.org/x/sync/singleflight"
)

// Mirror is a live in-memory view of one identity bucket's cart. It
// refreshes on bus broadcasts and additionally re-reads its key on a
// fixed interval; the interval poll is the liveness guarantee when a
// broadcast is missed. Switching identity swaps the persistence key and
// reloads, so a login never carries the anonymous lines over.
type Mirror struct {
	store    storage.Store
	bus      *Bus
	interval time.Duration
	sf       singleflight.Group
	changed  chan struct{}

	mu       sync.RWMutex
	identity string
	lines    []Line
}

func NewMirror(store storage.Store, bus *Bus, interval time.Duration, identity string) *Mirror {
	return &Mirror{
		store:    store,
		bus:      bus,
		interval: interval,
		identity: identity,
		changed:  make(chan struct{}, 1),
	}
}

// Run drives the mirror until ctx is cancelled: an initial load, then
// refreshes on every broadcast for the watched key plus interval polls.
func (m *Mirror) Run(ctx context.Context) error {
	_ = m.Refresh(ctx)

	signals, cancel := m.bus.Subscribe()
	defer cancel()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case key, ok := <-signals:
			if !ok {
				return nil
			}
			if key == m.key() {
				_ = m.Refresh(ctx)
			}
		case <-ticker.C:
			_ = m.Refresh(ctx)
		}
	}
}

// Refresh re-reads the watched key from storage. Concurrent refreshes of
// the same mirror collapse into a single storage read.
func (m *Mirror) Refresh(ctx context.Context) error {
	key := m.key()
	_, err, _ := m.sf.Do(key, func() (any, error) {
		data, err := m.store.Load(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			m.setLines(key, nil)
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		cart, err := unmarshalCart(data)
		if err != nil {
			return nil, err
		}
		m.setLines(key, cart.Lines)
		return nil, nil
	})
	return err
}

// SwitchIdentity rebinds the mirror to another identity bucket and
// reloads from that bucket's storage. The previous bucket's persisted
// cart is left untouched.
func (m *Mirror) SwitchIdentity(ctx context.Context, identity string) error {
	m.mu.Lock()
	m.identity = identity
	m.lines = nil
	m.mu.Unlock()
	return m.Refresh(ctx)
}

// Lines returns a copy of the mirrored line set.
func (m *Mirror) Lines() []Line {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Line, len(m.lines))
	copy(out, m.lines)
	return out
}

// Changed signals when a refresh observed a different line set. The
// channel carries at most one pending signal; a reader that misses
// intermediate states still sees the latest via Lines.
func (m *Mirror) Changed() <-chan struct{} {
	return m.changed
}

func (m *Mirror) key() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Key(m.identity)
}

// setLines ignores stale loads that finish after an identity switch.
func (m *Mirror) setLines(key string, lines []Line) {
	m.mu.Lock()
	if Key(m.identity) != key {
		m.mu.Unlock()
		return
	}
	same := linesEqual(m.lines, lines)
	m.lines = lines
	m.mu.Unlock()

	if !same {
		select {
		case m.changed <- struct{}{}:
		default:
		}
	}
}

func linesEqual(a, b []Line) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
