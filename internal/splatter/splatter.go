// Package splatter manages decorative ink particles that expire on their own.
package splatter

import (
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ewilliams-labs/voicecanvas/internal/core/domain"
)

const (
	DefaultTTL     = 2000 * time.Millisecond
	DefaultJitter  = 20.0
	DefaultMinSize = 10.0
	DefaultMaxSize = 30.0
)

// Options tunes a Manager. Zero values take the defaults above.
type Options struct {
	TTL     time.Duration
	Jitter  float64
	MinSize float64
	MaxSize float64

	// Rand returns values in [0,1). Defaults to math/rand/v2.
	Rand func() float64
	// Now defaults to time.Now.
	Now func() time.Time
	// OnExpire is called once per particle after it leaves the active set.
	OnExpire func(domain.SplatterParticle)
}

type entry struct {
	particle domain.SplatterParticle
	timer    *time.Timer
}

// Manager owns the active particle set. Each particle carries its own timer;
// nothing but Spawn and the timers mutate the set.
type Manager struct {
	opts Options

	mu     sync.Mutex
	active map[string]*entry
	closed bool
}

// NewManager creates an empty manager.
func NewManager(opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Jitter <= 0 {
		opts.Jitter = DefaultJitter
	}
	if opts.MinSize <= 0 {
		opts.MinSize = DefaultMinSize
	}
	if opts.MaxSize <= opts.MinSize {
		opts.MaxSize = opts.MinSize + (DefaultMaxSize - DefaultMinSize)
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{opts: opts, active: make(map[string]*entry)}
}

// Spawn adds a particle near p and schedules its removal. It never blocks on
// the removal. After Close, Spawn returns an empty id and does nothing.
func (m *Manager) Spawn(p domain.Point) string {
	particle := domain.SplatterParticle{
		ID: uuid.NewString(),
		Position: domain.Point{
			X: p.X + (m.opts.Rand()-0.5)*2*m.opts.Jitter,
			Y: p.Y + (m.opts.Rand()-0.5)*2*m.opts.Jitter,
		},
		Size:      m.opts.MinSize + m.opts.Rand()*(m.opts.MaxSize-m.opts.MinSize),
		CreatedAt: m.opts.Now(),
		TTL:       m.opts.TTL,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ""
	}
	e := &entry{particle: particle}
	e.timer = time.AfterFunc(particle.TTL, func() { m.remove(particle.ID) })
	m.active[particle.ID] = e
	return particle.ID
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	e, ok := m.active[id]
	if ok {
		delete(m.active, id)
	}
	m.mu.Unlock()

	if ok && m.opts.OnExpire != nil {
		m.opts.OnExpire(e.particle)
	}
}

// Active returns a snapshot of live particles ordered by creation time.
func (m *Manager) Active() []domain.SplatterParticle {
	m.mu.Lock()
	out := make([]domain.SplatterParticle, 0, len(m.active))
	for _, e := range m.active {
		out = append(out, e.particle)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len is the number of live particles.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Close cancels pending timers and drops every live particle without calling
// OnExpire. Further spawns are ignored.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.active {
		e.timer.Stop()
		delete(m.active, id)
	}
	m.closed = true
}
