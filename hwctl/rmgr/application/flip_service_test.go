package application

import (
	"context"
	"testing"
	"time"

	"hwctl-rmgr/hwctl/rmgr/domain"
	"hwctl-rmgr/hwctl/rmgr/infra"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestFlips(t *testing.T, pacer domain.FlipPacer) (*FlipService, *infra.MemoryStatsStore) {
	t.Helper()
	q, err := infra.NewFlipQueues(infra.QueueConfig{Pipes: domain.MaxPipes, Depth: domain.DefaultFlipDepth})
	require.NoError(t, err)
	stats := infra.NewMemoryStatsStore()
	return NewFlipService(q, pacer, stats, zerolog.Nop()), stats
}

func testBuffer(handle string) domain.Buffer {
	return domain.Buffer{
		Handle:      handle,
		PixelFormat: "XRGB8888",
		Size:        1920 * 4 * 1080,
		ByteStride:  1920 * 4,
		Width:       1920,
		Height:      1080,
		Contiguous:  true,
	}
}

func TestFlipService_EnqueueNeedsRegisteredBuffer(t *testing.T) {
	svc, _ := newTestFlips(t, nil)
	ctx := context.Background()

	_, err := svc.Enqueue(ctx, domain.PipeA, "fb0")
	require.ErrorIs(t, err, domain.ErrUnknownBuffer)

	require.NoError(t, svc.RegisterBuffer(testBuffer("fb0")))
	b, err := svc.Buffer("fb0")
	require.NoError(t, err)
	require.Equal(t, domain.BufferAlloc, b.Source)
	require.Equal(t, domain.FlipSurface, b.FlipOp)

	id, err := svc.Enqueue(ctx, domain.PipeA, "fb0")
	require.NoError(t, err)
	require.NotZero(t, id)
}

func TestFlipService_RegisterBufferValidates(t *testing.T) {
	svc, _ := newTestFlips(t, nil)

	bad := testBuffer("fb0")
	bad.Height = 0
	require.ErrorIs(t, svc.RegisterBuffer(bad), domain.ErrConfig)
	require.Empty(t, svc.Buffers())
}

func TestFlipService_FullLifecycle(t *testing.T) {
	svc, stats := newTestFlips(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.RegisterBuffer(testBuffer("fb0")))
	require.NoError(t, svc.RegisterBuffer(testBuffer("fb1")))

	a, err := svc.Enqueue(ctx, domain.PipeB, "fb0")
	require.NoError(t, err)
	b, err := svc.Enqueue(ctx, domain.PipeB, "fb1")
	require.NoError(t, err)

	require.NoError(t, svc.Advance(ctx, a, domain.FlipControllerUpdated))
	require.NoError(t, svc.Advance(ctx, a, domain.FlipDisplayed))
	require.NoError(t, svc.Advance(ctx, b, domain.FlipError))

	done := svc.DequeueCompleted(ctx)
	require.Len(t, done, 2)
	require.Equal(t, a, done[0].ID)
	require.Equal(t, b, done[1].ID)

	snap, err := svc.Pipe(domain.PipeB)
	require.NoError(t, err)
	require.Empty(t, snap.Flips)
	require.Zero(t, snap.RefCount)

	c := stats.ByPipe()[domain.PipeB]
	require.Equal(t, int64(2), c[domain.EventFlipQueued])
	require.Equal(t, int64(1), c[domain.EventFlipDisplayed])
	require.Equal(t, int64(1), c[domain.EventFlipError])
}

func TestFlipService_NotifyDropsInvalidTransition(t *testing.T) {
	svc, stats := newTestFlips(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.RegisterBuffer(testBuffer("fb0")))
	id, err := svc.Enqueue(ctx, domain.PipeA, "fb0")
	require.NoError(t, err)

	// Queued -> Displayed pula o ControllerUpdated
	require.False(t, svc.Notify(ctx, id, domain.FlipDisplayed))
	f, ok := svc.Queue.Get(id)
	require.True(t, ok)
	require.Equal(t, domain.FlipQueued, f.State)

	require.True(t, svc.Notify(ctx, id, domain.FlipControllerUpdated))
	require.True(t, svc.Notify(ctx, id, domain.FlipDisplayed))
	svc.DequeueCompleted(ctx)

	// notificação atrasada de um flip que já saiu da fila
	require.False(t, svc.Notify(ctx, id, domain.FlipDisplayed))

	// a fila continua aceitando pedidos
	_, err = svc.Enqueue(ctx, domain.PipeA, "fb0")
	require.NoError(t, err)

	require.Equal(t, int64(2), stats.Total()[domain.EventFlipDropped])
	require.Equal(t, int64(1), stats.ByPipe()[domain.PipeA][domain.EventFlipDropped])
}

func TestFlipService_AdvanceIsStrict(t *testing.T) {
	svc, _ := newTestFlips(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.RegisterBuffer(testBuffer("fb0")))
	id, err := svc.Enqueue(ctx, domain.PipeA, "fb0")
	require.NoError(t, err)

	require.ErrorIs(t, svc.Advance(ctx, id, domain.FlipDisplayed), domain.ErrInvalidTransition)
	require.ErrorIs(t, svc.Advance(ctx, 999, domain.FlipError), domain.ErrUnknownFlip)
}

func TestFlipService_BufferBusyWhileReferenced(t *testing.T) {
	svc, _ := newTestFlips(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.RegisterBuffer(testBuffer("fb0")))
	id, err := svc.Enqueue(ctx, domain.PipeC, "fb0")
	require.NoError(t, err)

	require.ErrorIs(t, svc.UnregisterBuffer("fb0"), domain.ErrBufferBusy)
	require.ErrorIs(t, svc.RegisterBuffer(testBuffer("fb0")), domain.ErrBufferBusy)

	// terminal mas ainda não retirado: continua referenciado
	require.NoError(t, svc.Advance(ctx, id, domain.FlipError))
	require.ErrorIs(t, svc.UnregisterBuffer("fb0"), domain.ErrBufferBusy)

	svc.DequeueCompleted(ctx)
	require.NoError(t, svc.UnregisterBuffer("fb0"))
	require.ErrorIs(t, svc.UnregisterBuffer("fb0"), domain.ErrUnknownBuffer)
}

func TestFlipService_InactivePipeAndFullQueueAreRejected(t *testing.T) {
	svc, stats := newTestFlips(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.RegisterBuffer(testBuffer("fb0")))
	require.NoError(t, svc.SetActive(domain.PipeA, false))

	_, err := svc.Enqueue(ctx, domain.PipeA, "fb0")
	require.ErrorIs(t, err, domain.ErrPipeInactive)

	for i := 0; i < domain.DefaultFlipDepth; i++ {
		_, err := svc.Enqueue(ctx, domain.PipeB, "fb0")
		require.NoError(t, err)
	}
	_, err = svc.Enqueue(ctx, domain.PipeB, "fb0")
	require.ErrorIs(t, err, domain.ErrPipeFull)

	require.Equal(t, int64(2), stats.Total()[domain.EventFlipRejected])
}

func TestFlipService_PacerThrottlesBySwapInterval(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	pacer := infra.NewPacer(60, 1, infra.WithPacerClock(clock))
	svc, _ := newTestFlips(t, pacer)
	ctx := context.Background()

	require.NoError(t, svc.RegisterBuffer(testBuffer("fb0")))
	require.NoError(t, svc.SetSwapInterval(domain.PipeA, 2))

	_, err := svc.Enqueue(ctx, domain.PipeA, "fb0")
	require.NoError(t, err)

	_, err = svc.Enqueue(ctx, domain.PipeA, "fb0")
	require.ErrorIs(t, err, domain.ErrFlipThrottled)
	require.True(t, domain.IsBackpressure(err))

	// 60Hz com swap interval 2: um flip a cada 1/30s
	wait := svc.RetryAfter(domain.PipeA)
	require.InDelta(t, float64(time.Second/30), float64(wait), float64(time.Millisecond))

	now = now.Add(wait + time.Millisecond)
	_, err = svc.Enqueue(ctx, domain.PipeA, "fb0")
	require.NoError(t, err)

	snap, err := svc.Pipe(domain.PipeA)
	require.NoError(t, err)
	require.Equal(t, uint32(2), snap.SwapInterval)

	require.ErrorIs(t, svc.SetSwapInterval(domain.PipeA, 0), domain.ErrConfig)
}

func TestFlipService_RejectedByQueueKeepsPacerToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	pacer := infra.NewPacer(60, 1, infra.WithPacerClock(clock))
	svc, stats := newTestFlips(t, pacer)
	ctx := context.Background()

	require.NoError(t, svc.RegisterBuffer(testBuffer("fb0")))

	// pipe inativo: o motivo reportado é a inatividade, não o pacer
	require.NoError(t, svc.SetActive(domain.PipeB, false))
	_, err := svc.Enqueue(ctx, domain.PipeB, "fb0")
	require.ErrorIs(t, err, domain.ErrPipeInactive)
	_, err = svc.Enqueue(ctx, domain.PipeB, "fb0")
	require.ErrorIs(t, err, domain.ErrPipeInactive)

	// reativado com o relógio parado: o primeiro pedido ainda tem a vez
	require.NoError(t, svc.SetActive(domain.PipeB, true))
	_, err = svc.Enqueue(ctx, domain.PipeB, "fb0")
	require.NoError(t, err)
	_, err = svc.Enqueue(ctx, domain.PipeB, "fb0")
	require.ErrorIs(t, err, domain.ErrFlipThrottled)

	// pipe ativo que ficou inativo depois de gastar a vez
	_, err = svc.Enqueue(ctx, domain.PipeA, "fb0")
	require.NoError(t, err)
	require.NoError(t, svc.SetActive(domain.PipeA, false))
	_, err = svc.Enqueue(ctx, domain.PipeA, "fb0")
	require.ErrorIs(t, err, domain.ErrPipeInactive)

	require.Equal(t, int64(3), stats.ByPipe()[domain.PipeB][domain.EventFlipRejected])
}

func TestFlipService_FullPipeKeepsPacerToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	pacer := infra.NewPacer(60, domain.DefaultFlipDepth, infra.WithPacerClock(clock))
	svc, _ := newTestFlips(t, pacer)
	ctx := context.Background()

	require.NoError(t, svc.RegisterBuffer(testBuffer("fb0")))

	var ids []domain.FlipID
	for i := 0; i < domain.DefaultFlipDepth; i++ {
		id, err := svc.Enqueue(ctx, domain.PipeC, "fb0")
		require.NoError(t, err)
		ids = append(ids, id)
	}

	// fila cheia e pacer esgotado: a fila responde primeiro
	_, err := svc.Enqueue(ctx, domain.PipeC, "fb0")
	require.ErrorIs(t, err, domain.ErrPipeFull)

	// um período depois há exatamente uma vez de novo
	now = now.Add(time.Second/60 + time.Millisecond)
	_, err = svc.Enqueue(ctx, domain.PipeC, "fb0")
	require.ErrorIs(t, err, domain.ErrPipeFull)

	require.NoError(t, svc.Advance(ctx, ids[0], domain.FlipError))
	svc.DequeueCompleted(ctx)
	_, err = svc.Enqueue(ctx, domain.PipeC, "fb0")
	require.NoError(t, err)
	_, err = svc.Enqueue(ctx, domain.PipeC, "fb0")
	require.ErrorIs(t, err, domain.ErrPipeFull)
}

func TestFlipService_MultiPlaneFlip(t *testing.T) {
	svc, _ := newTestFlips(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.RegisterBuffer(testBuffer("y")))
	require.NoError(t, svc.RegisterBuffer(testBuffer("uv")))

	_, err := svc.Enqueue(ctx, domain.PipeA, "y", "cursor")
	require.ErrorIs(t, err, domain.ErrUnknownBuffer)
	_, err = svc.Enqueue(ctx, domain.PipeA)
	require.ErrorIs(t, err, domain.ErrConfig)
	_, err = svc.Enqueue(ctx, domain.PipeA, "y", "y")
	require.ErrorIs(t, err, domain.ErrConfig)

	id, err := svc.Enqueue(ctx, domain.PipeA, "y", "uv")
	require.NoError(t, err)
	f, ok := svc.Queue.Get(id)
	require.True(t, ok)
	require.Equal(t, []string{"y", "uv"}, f.Buffers)

	// os dois planos ficam presos até o flip sair da fila
	require.ErrorIs(t, svc.UnregisterBuffer("y"), domain.ErrBufferBusy)
	require.ErrorIs(t, svc.UnregisterBuffer("uv"), domain.ErrBufferBusy)

	require.NoError(t, svc.Advance(ctx, id, domain.FlipControllerUpdated))
	require.NoError(t, svc.Advance(ctx, id, domain.FlipDisplayed))
	done := svc.DequeueCompleted(ctx)
	require.Len(t, done, 1)
	require.Equal(t, []string{"y", "uv"}, done[0].Buffers)

	require.NoError(t, svc.UnregisterBuffer("y"))
	require.NoError(t, svc.UnregisterBuffer("uv"))
}
