package infra

import (
	"context"
	"sync"

	"hwctl-rmgr/hwctl/rmgr/domain"
)

// Counters contam eventos por tipo.
type Counters map[domain.EventKind]int64

func (c Counters) clone() Counters {
	out := make(Counters, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes, desenvolvimento e para o endpoint /stats do daemon.
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   Counters
	byClass map[domain.Class]Counters
	byPipe  map[domain.PipeID]Counters

	trackPipes bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackPipes(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackPipes = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		total:      make(Counters),
		byClass:    make(map[domain.Class]Counters),
		byPipe:     make(map[domain.PipeID]Counters),
		trackPipes: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total[ev.Kind]++
	if ev.Class != "" {
		c := s.byClass[ev.Class]
		if c == nil {
			c = make(Counters)
			s.byClass[ev.Class] = c
		}
		c[ev.Kind]++
	}
	if s.trackPipes && ev.Pipe >= 0 && ev.Class == "" {
		c := s.byPipe[ev.Pipe]
		if c == nil {
			c = make(Counters)
			s.byPipe[ev.Pipe] = c
		}
		c[ev.Kind]++
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total.clone()
}

func (s *MemoryStatsStore) ByClass() map[domain.Class]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Class]Counters, len(s.byClass))
	for k, v := range s.byClass {
		out[k] = v.clone()
	}
	return out
}

func (s *MemoryStatsStore) ByPipe() map[domain.PipeID]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.PipeID]Counters, len(s.byPipe))
	for k, v := range s.byPipe {
		out[k] = v.clone()
	}
	return out
}

// MultiStatsStore repassa o evento para vários stores. Retorna o primeiro erro,
// mas grava em todos.
type MultiStatsStore []domain.StatsStore

func (m MultiStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
