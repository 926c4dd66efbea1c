package infra

import (
	"sync"
	"time"

	"hwctl-rmgr/hwctl/rmgr/domain"

	"golang.org/x/time/rate"
)

// Pacer é uma implementação de domain.FlipPacer baseada em token-bucket
// (x/time/rate), um limiter por pipe criado sob demanda.
//
// A taxa de um pipe é refreshHz / swapInterval flips por segundo, com burst
// igual à profundidade da fila. refreshHz <= 0 desliga o pacing.
type Pacer struct {
	mu        sync.Mutex
	refreshHz float64
	burst     int
	entries   map[domain.PipeID]*pacerEntry
	now       func() time.Time
}

type pacerEntry struct {
	lim *rate.Limiter
}

type PacerOption func(*Pacer)

func WithPacerClock(now func() time.Time) PacerOption {
	return func(p *Pacer) { p.now = now }
}

func NewPacer(refreshHz float64, burst int, opts ...PacerOption) *Pacer {
	if burst <= 0 {
		burst = 1
	}
	p := &Pacer{
		refreshHz: refreshHz,
		burst:     burst,
		entries:   make(map[domain.PipeID]*pacerEntry),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pacer) RefreshHz() float64 { return p.refreshHz }
func (p *Pacer) Burst() int         { return p.burst }

// get precisa do lock.
func (p *Pacer) get(pipe domain.PipeID) *pacerEntry {
	if ent, ok := p.entries[pipe]; ok {
		return ent
	}
	ent := &pacerEntry{lim: rate.NewLimiter(p.limitFor(1), p.burst)}
	p.entries[pipe] = ent
	return ent
}

func (p *Pacer) limitFor(interval uint32) rate.Limit {
	if interval == 0 {
		interval = 1
	}
	return rate.Limit(p.refreshHz / float64(interval))
}

// Allow implementa domain.FlipPacer.
func (p *Pacer) Allow(pipe domain.PipeID) bool {
	if p.refreshHz <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.get(pipe).lim.AllowN(p.now(), 1)
}

// RetryAfter estima quanto falta para o próximo flip do pipe ser aceito.
func (p *Pacer) RetryAfter(pipe domain.PipeID) time.Duration {
	if p.refreshHz <= 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	r := p.get(pipe).lim.ReserveN(now, 1)
	if !r.OK() {
		return 0
	}
	d := r.DelayFrom(now)
	r.CancelAt(now)
	return d
}

// SetSwapInterval implementa domain.FlipPacer.
func (p *Pacer) SetSwapInterval(pipe domain.PipeID, interval uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.get(pipe).lim.SetLimitAt(p.now(), p.limitFor(interval))
}

var _ domain.FlipPacer = (*Pacer)(nil)
