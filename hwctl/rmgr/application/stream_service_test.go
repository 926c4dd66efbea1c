package application

import (
	"context"
	"testing"

	"hwctl-rmgr/hwctl/rmgr/domain"
	"hwctl-rmgr/hwctl/rmgr/infra"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestStreams(t *testing.T) (*StreamService, testPools) {
	t.Helper()
	isys, pools := newTestISYS(t)
	csi, err := NewCSIReceiver(domain.NumCSIPorts, domain.MaxSPThreads)
	require.NoError(t, err)
	res := ResourceService{ISYS: isys, Stats: infra.NewMemoryStatsStore(), Log: zerolog.Nop()}
	return NewStreamService(res, csi, zerolog.Nop()), pools
}

func rawDescr(port, thread uint32) domain.StreamDescr {
	return domain.StreamDescr{
		Port:     port,
		Thread:   thread,
		Backend:  0,
		Packet:   domain.PacketLong,
		IBufSize: 200,
		Format:   domain.FormatRAW10,
	}
}

func TestStreamService_CreateAcquiresEveryClass(t *testing.T) {
	svc, pools := newTestStreams(t)
	ctx := context.Background()

	st, err := svc.Create(ctx, rawDescr(0, 0))
	require.NoError(t, err)
	require.NotEmpty(t, st.ID)
	require.Len(t, st.Slots, len(domain.Classes))

	require.Equal(t, domain.StreamCfg{
		Port:       0,
		MIPIFormat: 0x2B,
		LUTEntry:   0,
		IBufAddr:   0,
		IBufSize:   224,
		DMAChannel: 0,
		SID:        0,
	}, st.Cfg)

	require.Equal(t, 1, pools.lut.Stats().InUse)
	require.Equal(t, 1, pools.ibuf.Stats().Owned)
	require.Equal(t, 1, pools.dma.Stats().InUse)
	require.Equal(t, 1, pools.sid.Stats().InUse)

	// segundo stream recebe os próximos índices livres
	st2, err := svc.Create(ctx, rawDescr(0, 1))
	require.NoError(t, err)
	require.Equal(t, uint32(1), st2.Cfg.LUTEntry)
	require.Equal(t, uint32(224), st2.Cfg.IBufAddr)
	require.Equal(t, uint32(1), st2.Cfg.DMAChannel)

	cfg, err := svc.CalculateCfg(st2.ID)
	require.NoError(t, err)
	require.Equal(t, st2.Cfg, cfg)

	list := svc.List()
	require.Len(t, list, 2)
}

func TestStreamService_RollbackOnPartialFailure(t *testing.T) {
	svc, pools := newTestStreams(t)
	ctx := context.Background()

	d := rawDescr(2, 4)
	d.IBufSize = 4096 // maior que o ibuf inteiro

	_, err := svc.Create(ctx, d)
	require.ErrorIs(t, err, domain.ErrResourceExhausted)

	require.Zero(t, pools.lut.Stats().InUse)
	require.Zero(t, pools.ibuf.Stats().Owned)
	got, err := svc.CSI.Registered(2)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Empty(t, svc.List())

	// o mesmo port/thread pode ser usado de novo depois do rollback
	d.IBufSize = 64
	_, err = svc.Create(ctx, d)
	require.NoError(t, err)
}

func TestStreamService_DoubleCSIRegistrationFails(t *testing.T) {
	svc, pools := newTestStreams(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, rawDescr(1, 2))
	require.NoError(t, err)

	_, err = svc.Create(ctx, rawDescr(1, 2))
	require.ErrorIs(t, err, domain.ErrInvalidHandle)
	require.Equal(t, 1, pools.lut.Stats().InUse)
}

func TestStreamService_InvalidFormat(t *testing.T) {
	svc, pools := newTestStreams(t)

	d := rawDescr(0, 0)
	d.Format = domain.FormatYUV422_16
	_, err := svc.Create(context.Background(), d)
	require.ErrorIs(t, err, domain.ErrConfig)

	d = rawDescr(0, 0)
	d.IBufSize = 0
	_, err = svc.Create(context.Background(), d)
	require.ErrorIs(t, err, domain.ErrConfig)

	require.Zero(t, pools.lut.Stats().InUse)
}

func TestStreamService_DestroyReleasesEverything(t *testing.T) {
	svc, pools := newTestStreams(t)
	ctx := context.Background()

	st, err := svc.Create(ctx, rawDescr(0, 0))
	require.NoError(t, err)

	require.NoError(t, svc.Destroy(ctx, st.ID))
	require.ErrorIs(t, svc.Destroy(ctx, st.ID), domain.ErrUnknownStream)
	_, err = svc.Get(st.ID)
	require.ErrorIs(t, err, domain.ErrUnknownStream)

	require.Zero(t, pools.lut.Stats().InUse)
	require.Zero(t, pools.ibuf.Stats().Owned)
	require.Zero(t, pools.dma.Stats().InUse)
	require.Zero(t, pools.sid.Stats().InUse)
	require.Len(t, pools.ibuf.FreeRegions(), 1)
}

func TestStreamService_DestroyAllBeforeUninit(t *testing.T) {
	svc, _ := newTestStreams(t)
	ctx := context.Background()

	for th := uint32(0); th < 2; th++ {
		_, err := svc.Create(ctx, rawDescr(0, th))
		require.NoError(t, err)
	}

	require.NoError(t, svc.DestroyAll(ctx))
	require.Empty(t, svc.List())
	require.NoError(t, svc.Resources.ISYS.Close())
}
