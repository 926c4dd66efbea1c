package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"hwctl-rmgr/hwctl/rmgr/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StreamService cria e destrói streams de captura do input system.
//
// Um stream segura uma entrada de LUT, uma região de ibuf, um canal de DMA
// e um SID, e fica registrado na porta CSI2 de origem.
type StreamService struct {
	Resources ResourceService
	CSI       *CSIReceiver
	Log       zerolog.Logger

	mu      sync.Mutex
	streams map[string]*domain.Stream
	now     func() time.Time
}

func NewStreamService(res ResourceService, csi *CSIReceiver, log zerolog.Logger) *StreamService {
	return &StreamService{
		Resources: res,
		CSI:       csi,
		Log:       log,
		streams:   make(map[string]*domain.Stream),
		now:       time.Now,
	}
}

// selectorFor monta o selector de cada classe a partir da descrição do stream.
func selectorFor(c domain.Class, d domain.StreamDescr) domain.Selector {
	switch c {
	case domain.ClassLUT:
		return domain.Selector{Group: d.Backend, PacketType: d.Packet}
	case domain.ClassIBuf:
		return domain.Selector{Size: d.IBufSize}
	case domain.ClassDMAChannel:
		return domain.Selector{Group: d.DMA}
	case domain.ClassSID:
		return domain.Selector{Group: d.S2MMIO}
	}
	return domain.Selector{}
}

// Create registra o stream na porta CSI2 e adquire os quatro recursos. Se
// qualquer passo falhar, tudo que já foi adquirido é devolvido.
func (s *StreamService) Create(ctx context.Context, descr domain.StreamDescr) (domain.Stream, error) {
	mipi, err := FormatToMIPI(descr.Format, descr.Predictor)
	if err != nil {
		return domain.Stream{}, err
	}
	if descr.IBufSize == 0 {
		return domain.Stream{}, fmt.Errorf("%w: stream needs an input buffer size", domain.ErrConfig)
	}

	if s.CSI != nil {
		if err := s.CSI.Register(descr.Port, descr.Thread); err != nil {
			return domain.Stream{}, err
		}
	}

	slots := make([]domain.Slot, 0, len(domain.Classes))
	for _, c := range domain.Classes {
		slot, err := s.Resources.Acquire(ctx, c, selectorFor(c, descr))
		if err != nil {
			s.rollback(ctx, descr, slots)
			return domain.Stream{}, fmt.Errorf("create stream on port %d: %w", descr.Port, err)
		}
		slots = append(slots, slot)
	}

	st := &domain.Stream{
		ID:        uuid.NewString(),
		Descr:     descr,
		Slots:     slots,
		Cfg:       calculateCfg(descr, mipi, slots),
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.streams[st.ID] = st
	s.mu.Unlock()

	s.Log.Info().Str("stream", st.ID).Uint32("port", descr.Port).
		Str("format", string(descr.Format)).Msg("stream created")
	return *st, nil
}

func (s *StreamService) rollback(ctx context.Context, descr domain.StreamDescr, slots []domain.Slot) {
	for i := len(slots) - 1; i >= 0; i-- {
		if err := s.Resources.Release(ctx, slots[i]); err != nil {
			s.Log.Error().Err(err).Str("slot", slots[i].String()).Msg("rollback release failed")
		}
	}
	if s.CSI != nil {
		if err := s.CSI.Unregister(descr.Port, descr.Thread); err != nil {
			s.Log.Error().Err(err).Msg("rollback csi unregister failed")
		}
	}
}

func calculateCfg(descr domain.StreamDescr, mipi uint32, slots []domain.Slot) domain.StreamCfg {
	cfg := domain.StreamCfg{Port: descr.Port, MIPIFormat: mipi}
	for _, sl := range slots {
		switch sl.Class {
		case domain.ClassLUT:
			cfg.LUTEntry = sl.Index
		case domain.ClassIBuf:
			cfg.IBufAddr, cfg.IBufSize = sl.Addr, sl.Size
		case domain.ClassDMAChannel:
			cfg.DMAChannel = sl.Index
		case domain.ClassSID:
			cfg.SID = sl.Index
		}
	}
	return cfg
}

// Destroy libera os recursos do stream. Continua mesmo que algum release
// falhe e junta os erros.
func (s *StreamService) Destroy(ctx context.Context, id string) error {
	s.mu.Lock()
	st, ok := s.streams[id]
	if ok {
		delete(s.streams, id)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownStream, id)
	}

	var errs []error
	for i := len(st.Slots) - 1; i >= 0; i-- {
		if err := s.Resources.Release(ctx, st.Slots[i]); err != nil {
			errs = append(errs, err)
		}
	}
	if s.CSI != nil {
		if err := s.CSI.Unregister(st.Descr.Port, st.Descr.Thread); err != nil {
			errs = append(errs, err)
		}
	}
	s.Log.Info().Str("stream", id).Msg("stream destroyed")
	return errors.Join(errs...)
}

// DestroyAll é usado no shutdown, antes do uninit do ISYS.
func (s *StreamService) DestroyAll(ctx context.Context) error {
	var errs []error
	for _, st := range s.List() {
		if err := s.Destroy(ctx, st.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *StreamService) Get(id string) (domain.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.streams[id]
	if !ok {
		return domain.Stream{}, fmt.Errorf("%w: %s", domain.ErrUnknownStream, id)
	}
	return *st, nil
}

func (s *StreamService) CalculateCfg(id string) (domain.StreamCfg, error) {
	st, err := s.Get(id)
	if err != nil {
		return domain.StreamCfg{}, err
	}
	return st.Cfg, nil
}

// List retorna os streams por ordem de criação.
func (s *StreamService) List() []domain.Stream {
	s.mu.Lock()
	out := make([]domain.Stream, 0, len(s.streams))
	for _, st := range s.streams {
		out = append(out, *st)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
