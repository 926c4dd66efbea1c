package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hwctl-rmgr/hwctl/rmgr/domain"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ResourceService concentra a regra de aquisição/liberação de recursos com
// retry opcional, sem saber nada sobre HTTP.
type ResourceService struct {
	ISYS *ISYS
	// AcquireTimeout <= 0: tenta uma vez só e devolve ErrResourceExhausted.
	AcquireTimeout time.Duration
	// RetryEvery é o intervalo entre tentativas dentro do timeout.
	RetryEvery time.Duration
	Stats      domain.StatsStore
	Log        zerolog.Logger
}

// Acquire tenta adquirir um slot.
//   - Se `AcquireTimeout <= 0`, falha na hora quando não há vaga.
//   - Se `AcquireTimeout > 0`, tenta de novo a cada RetryEvery até o timeout
//     ou até o ctx cancelar.
func (s ResourceService) Acquire(ctx context.Context, class domain.Class, sel domain.Selector) (domain.Slot, error) {
	pool, err := s.ISYS.Pool(class)
	if err != nil {
		return domain.Slot{}, err
	}

	if slot, ok := pool.Acquire(sel); ok {
		record(ctx, s.Stats, s.Log, resourceEvent(domain.EventAcquire, class))
		return slot, nil
	}

	if s.AcquireTimeout > 0 {
		if slot, ok := s.retry(ctx, pool, sel); ok {
			record(ctx, s.Stats, s.Log, resourceEvent(domain.EventAcquire, class))
			return slot, nil
		}
	}

	record(ctx, s.Stats, s.Log, resourceEvent(domain.EventExhausted, class))
	s.Log.Debug().Str("class", string(class)).
		Uint32("group", sel.Group).Uint32("size", sel.Size).
		Msg("no free slot")
	return domain.Slot{}, fmt.Errorf("%w: %s group=%d packet=%s size=%d",
		domain.ErrResourceExhausted, class, sel.Group, sel.PacketType, sel.Size)
}

func (s ResourceService) retry(ctx context.Context, pool domain.ResourcePool, sel domain.Selector) (domain.Slot, bool) {
	acqCtx, cancel := context.WithTimeout(ctx, s.AcquireTimeout)
	defer cancel()

	every := s.RetryEvery
	if every <= 0 {
		every = time.Millisecond
	}
	lim := rate.NewLimiter(rate.Every(every), 1)
	// a primeira tentativa já foi feita
	lim.Allow()

	for {
		if err := lim.Wait(acqCtx); err != nil {
			return domain.Slot{}, false
		}
		if slot, ok := pool.Acquire(sel); ok {
			return slot, true
		}
	}
}

// Release devolve o slot. ErrInvalidHandle é erro de programação do
// chamador e é logado em nível error.
func (s ResourceService) Release(ctx context.Context, slot domain.Slot) error {
	pool, err := s.ISYS.Pool(slot.Class)
	if err != nil {
		return err
	}
	if err := pool.Release(slot); err != nil {
		if errors.Is(err, domain.ErrInvalidHandle) {
			s.Log.Error().Err(err).Str("slot", slot.String()).Msg("release of slot not owned")
			record(ctx, s.Stats, s.Log, resourceEvent(domain.EventInvalidRelease, slot.Class))
		}
		return err
	}
	record(ctx, s.Stats, s.Log, resourceEvent(domain.EventRelease, slot.Class))
	return nil
}
