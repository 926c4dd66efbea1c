package rmgr

import (
	"context"
	"errors"
	"time"

	"hwctl-rmgr/hwctl/rmgr/application"
	"hwctl-rmgr/hwctl/rmgr/domain"
	"hwctl-rmgr/hwctl/rmgr/infra"

	"github.com/rs/zerolog"
)

// Config reúne as capacidades de todos os gerenciadores. Zero ou acima do
// máximo do hardware falha no New com ErrConfig.
type Config struct {
	// LUTLong/LUTShort: entradas por backend do CSI-RX.
	LUTLong  []int
	LUTShort []int
	IBuf     infra.RegionConfig
	// DMAChannels: canais por id de DMA.
	DMAChannels []int
	// SIDs: SIDs por instância de stream2mmio.
	SIDs []int

	CSIPorts   int
	CSIThreads int

	Pipes     int
	FlipDepth int
	// RefreshHz <= 0 desliga o pacing por swap interval.
	RefreshHz float64

	AcquireTimeout time.Duration
	RetryEvery     time.Duration
}

// DefaultConfig usa os máximos do hardware (LUT no padrão de 4 entradas).
func DefaultConfig() Config {
	lut := make([]int, domain.NumCSIRXBackends)
	for i := range lut {
		lut[i] = domain.DefaultLUTEntries
	}
	return Config{
		LUTLong:  lut,
		LUTShort: append([]int(nil), lut...),
		IBuf: infra.RegionConfig{
			Size:       domain.MaxIBufBytes,
			MaxHandles: domain.MaxIBufHandles,
			Align:      domain.DefaultIBufAlign,
		},
		DMAChannels: []int{domain.MaxDMAChannels},
		SIDs:        append([]int(nil), domain.MaxSIDs[:]...),
		CSIPorts:    domain.NumCSIPorts,
		CSIThreads:  domain.MaxSPThreads,
		Pipes:       domain.MaxPipes,
		FlipDepth:   domain.DefaultFlipDepth,
		RefreshHz:   60,
		RetryEvery:  time.Millisecond,
	}
}

// Manager é o subsistema inteiro montado: contexto ISYS, streams, CSI-RX e
// filas de flip.
type Manager struct {
	ISYS      *application.ISYS
	Resources application.ResourceService
	Streams   *application.StreamService
	CSI       *application.CSIReceiver
	Flips     *application.FlipService
	Stats     *infra.MemoryStatsStore

	log zerolog.Logger
}

// New monta o Manager. extra é opcional (ex.: Redis) e recebe os mesmos
// eventos que o store em memória.
func New(cfg Config, log zerolog.Logger, extra domain.StatsStore) (*Manager, error) {
	lut, err := infra.NewLUTPool(cfg.LUTLong, cfg.LUTShort)
	if err != nil {
		return nil, err
	}
	ibuf, err := infra.NewRegionPool(cfg.IBuf)
	if err != nil {
		return nil, err
	}
	dma, err := infra.NewDMAPool(cfg.DMAChannels)
	if err != nil {
		return nil, err
	}
	sid, err := infra.NewSIDPool(cfg.SIDs)
	if err != nil {
		return nil, err
	}
	isys, err := application.NewISYS(log.With().Str("module", "isys").Logger(), lut, ibuf, dma, sid)
	if err != nil {
		return nil, err
	}

	csi, err := application.NewCSIReceiver(cfg.CSIPorts, cfg.CSIThreads)
	if err != nil {
		return nil, err
	}
	queues, err := infra.NewFlipQueues(infra.QueueConfig{Pipes: cfg.Pipes, Depth: cfg.FlipDepth})
	if err != nil {
		return nil, err
	}

	mem := infra.NewMemoryStatsStore()
	var stats domain.StatsStore = mem
	if extra != nil {
		stats = infra.MultiStatsStore{mem, extra}
	}

	res := application.ResourceService{
		ISYS:           isys,
		AcquireTimeout: cfg.AcquireTimeout,
		RetryEvery:     cfg.RetryEvery,
		Stats:          stats,
		Log:            log.With().Str("module", "resources").Logger(),
	}

	var pacer domain.FlipPacer
	if cfg.RefreshHz > 0 {
		pacer = infra.NewPacer(cfg.RefreshHz, cfg.FlipDepth)
	}

	return &Manager{
		ISYS:      isys,
		Resources: res,
		Streams:   application.NewStreamService(res, csi, log.With().Str("module", "streams").Logger()),
		CSI:       csi,
		Flips:     application.NewFlipService(queues, pacer, stats, log.With().Str("module", "flip").Logger()),
		Stats:     mem,
		log:       log,
	}, nil
}

// Close destrói os streams ainda abertos e faz o uninit do ISYS. Slots
// adquiridos direto pela API e nunca devolvidos aparecem como ErrResourceLeak.
func (m *Manager) Close(ctx context.Context) error {
	var errs []error
	if err := m.Streams.DestroyAll(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := m.ISYS.Close(); err != nil {
		errs = append(errs, err)
	}
	err := errors.Join(errs...)
	if err != nil {
		m.log.Warn().Err(err).Msg("resource manager closed with errors")
	}
	return err
}
