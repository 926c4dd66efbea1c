package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"hwctl-rmgr/hwctl/rmgr/domain"

	"github.com/rs/zerolog"
)

// FlipService é o caso de uso do display-commit: registra buffers, enfileira
// flips pedidos pelo page-flip e avança o estado conforme chegam as
// notificações do hardware/firmware.
type FlipService struct {
	Queue domain.FlipQueue
	// Pacer é opcional; sem ele não há limite de taxa por swap interval.
	Pacer domain.FlipPacer
	Stats domain.StatsStore
	Log   zerolog.Logger

	mu      sync.Mutex
	buffers map[string]domain.Buffer
}

func NewFlipService(q domain.FlipQueue, pacer domain.FlipPacer, stats domain.StatsStore, log zerolog.Logger) *FlipService {
	return &FlipService{
		Queue:   q,
		Pacer:   pacer,
		Stats:   stats,
		Log:     log,
		buffers: make(map[string]domain.Buffer),
	}
}

// RegisterBuffer adiciona ou substitui o descritor. Substituir um buffer com
// flips em voo falha com ErrBufferBusy.
func (s *FlipService) RegisterBuffer(buf domain.Buffer) error {
	if err := buf.Validate(); err != nil {
		return err
	}
	if buf.Source == "" {
		buf.Source = domain.BufferAlloc
	}
	if buf.FlipOp == "" {
		buf.FlipOp = domain.FlipSurface
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.buffers[buf.Handle]; exists && s.Queue.BufferRefs(buf.Handle) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrBufferBusy, buf.Handle)
	}
	s.buffers[buf.Handle] = buf
	return nil
}

func (s *FlipService) UnregisterBuffer(handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.buffers[handle]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownBuffer, handle)
	}
	if n := s.Queue.BufferRefs(handle); n > 0 {
		return fmt.Errorf("%w: %s referenced by %d flips", domain.ErrBufferBusy, handle, n)
	}
	delete(s.buffers, handle)
	return nil
}

func (s *FlipService) Buffer(handle string) (domain.Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buffers[handle]
	if !ok {
		return domain.Buffer{}, fmt.Errorf("%w: %s", domain.ErrUnknownBuffer, handle)
	}
	return b, nil
}

// Buffers lista os descritores registrados, ordenados por handle.
func (s *FlipService) Buffers() []domain.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Buffer, 0, len(s.buffers))
	for _, b := range s.buffers {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// Enqueue põe um flip na fila do pipe. O flip exibe um ou mais buffers
// registrados (um por plano). Erros de backpressure (pipe inativo, cheio,
// throttled) são esperados e o chamador deve adiar.
//
// A admissão da fila é checada antes do pacer, então um pedido recusado pela
// fila não gasta a vez do pipe.
func (s *FlipService) Enqueue(ctx context.Context, pipe domain.PipeID, handles ...string) (domain.FlipID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(handles) == 0 {
		return 0, fmt.Errorf("%w: flip without buffer", domain.ErrConfig)
	}
	seen := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		if _, ok := s.buffers[h]; !ok {
			return 0, fmt.Errorf("%w: %s", domain.ErrUnknownBuffer, h)
		}
		if _, dup := seen[h]; dup {
			return 0, fmt.Errorf("%w: buffer %s repeated in flip", domain.ErrConfig, h)
		}
		seen[h] = struct{}{}
	}
	if err := s.Queue.Admit(pipe); err != nil {
		return 0, s.rejected(ctx, pipe, err)
	}
	if s.Pacer != nil && !s.Pacer.Allow(pipe) {
		return 0, s.rejected(ctx, pipe, fmt.Errorf("%w: %s", domain.ErrFlipThrottled, pipe))
	}

	id, err := s.Queue.Enqueue(pipe, handles...)
	if err != nil {
		return 0, s.rejected(ctx, pipe, err)
	}
	record(ctx, s.Stats, s.Log, flipEvent(domain.EventFlipQueued, pipe))
	s.Log.Debug().Uint64("flip", uint64(id)).Str("pipe", pipe.String()).Strs("buffers", handles).Msg("flip queued")
	return id, nil
}

func (s *FlipService) rejected(ctx context.Context, pipe domain.PipeID, err error) error {
	if domain.IsBackpressure(err) {
		record(ctx, s.Stats, s.Log, flipEvent(domain.EventFlipRejected, pipe))
	}
	return err
}

// Advance aplica a transição e devolve o erro ao chamador.
func (s *FlipService) Advance(ctx context.Context, id domain.FlipID, to domain.FlipState) error {
	f, ok := s.Queue.Get(id)
	if err := s.Queue.Advance(id, to); err != nil {
		return err
	}
	if ok && to == domain.FlipError {
		s.Log.Warn().Uint64("flip", uint64(id)).Str("pipe", f.Pipe.String()).Msg("flip failed")
	}
	return nil
}

// Notify é a entrada das notificações assíncronas do hardware/firmware.
// Transições inválidas ou de flips que já saíram da fila são logadas e
// descartadas; o pipe segue funcionando. Retorna se a transição foi aplicada.
func (s *FlipService) Notify(ctx context.Context, id domain.FlipID, to domain.FlipState) bool {
	pipe := domain.PipeID(-1)
	if f, ok := s.Queue.Get(id); ok {
		pipe = f.Pipe
	}
	err := s.Advance(ctx, id, to)
	if err == nil {
		return true
	}
	if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrUnknownFlip) {
		s.Log.Warn().Err(err).Uint64("flip", uint64(id)).Str("to", to.String()).Msg("dropping flip notification")
		record(ctx, s.Stats, s.Log, flipEvent(domain.EventFlipDropped, pipe))
		return false
	}
	s.Log.Error().Err(err).Uint64("flip", uint64(id)).Msg("flip notification failed")
	return false
}

// DequeueCompleted retira os flips terminais, em ordem de inserção.
func (s *FlipService) DequeueCompleted(ctx context.Context) []domain.Flip {
	done := s.Queue.DequeueCompleted()
	for _, f := range done {
		kind := domain.EventFlipDisplayed
		if f.State == domain.FlipError {
			kind = domain.EventFlipError
		}
		record(ctx, s.Stats, s.Log, flipEvent(kind, f.Pipe))
	}
	return done
}

// SetActive segura o mesmo lock do Enqueue.
func (s *FlipService) SetActive(pipe domain.PipeID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Queue.SetActive(pipe, active); err != nil {
		return err
	}
	s.Log.Info().Str("pipe", pipe.String()).Bool("active", active).Msg("pipe flip state changed")
	return nil
}

func (s *FlipService) SetSwapInterval(pipe domain.PipeID, interval uint32) error {
	if err := s.Queue.SetSwapInterval(pipe, interval); err != nil {
		return err
	}
	if s.Pacer != nil {
		s.Pacer.SetSwapInterval(pipe, interval)
	}
	return nil
}

func (s *FlipService) Pipe(pipe domain.PipeID) (domain.PipeSnapshot, error) {
	return s.Queue.Pipe(pipe)
}

// RetryAfter sugere quanto o chamador deve esperar antes de tentar de novo.
func (s *FlipService) RetryAfter(pipe domain.PipeID) time.Duration {
	if s.Pacer == nil {
		return 0
	}
	return s.Pacer.RetryAfter(pipe)
}
