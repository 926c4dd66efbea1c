package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"hwctl-rmgr/hwctl/rmgr/domain"

	"github.com/stretchr/testify/require"
)

func TestMemoryStatsStore_CountsByClassAndPipe(t *testing.T) {
	s := NewMemoryStatsStore()
	ctx := context.Background()

	_ = s.Record(ctx, domain.StatsEvent{Kind: domain.EventAcquire, Class: domain.ClassLUT, Pipe: -1})
	_ = s.Record(ctx, domain.StatsEvent{Kind: domain.EventAcquire, Class: domain.ClassLUT, Pipe: -1})
	_ = s.Record(ctx, domain.StatsEvent{Kind: domain.EventExhausted, Class: domain.ClassIBuf, Pipe: -1})
	_ = s.Record(ctx, domain.StatsEvent{Kind: domain.EventFlipQueued, Pipe: domain.PipeB})

	require.Equal(t, int64(2), s.Total()[domain.EventAcquire])
	require.Equal(t, int64(2), s.ByClass()[domain.ClassLUT][domain.EventAcquire])
	require.Equal(t, int64(1), s.ByClass()[domain.ClassIBuf][domain.EventExhausted])
	require.Equal(t, int64(1), s.ByPipe()[domain.PipeB][domain.EventFlipQueued])
	require.NotContains(t, s.ByPipe(), domain.PipeID(-1))
}

func TestMemoryStatsStore_WithoutPipes(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackPipes(false))
	_ = s.Record(context.Background(), domain.StatsEvent{Kind: domain.EventFlipQueued, Pipe: domain.PipeA})
	require.Empty(t, s.ByPipe())
	require.Equal(t, int64(1), s.Total()[domain.EventFlipQueued])
}

type failingStats struct{}

func (failingStats) Record(context.Context, domain.StatsEvent) error { return errors.New("down") }

func TestMultiStatsStore_RecordsEverywhere(t *testing.T) {
	mem := NewMemoryStatsStore()
	m := MultiStatsStore{failingStats{}, nil, mem}

	err := m.Record(context.Background(), domain.StatsEvent{Kind: domain.EventRelease, Class: domain.ClassSID, Pipe: -1})
	require.EqualError(t, err, "down")
	require.Equal(t, int64(1), mem.Total()[domain.EventRelease])
}

func TestRedisStatsStore_Keys(t *testing.T) {
	s := NewRedisStatsStore(nil, WithStatsPrefix("hw:stats:"), WithStatsTrackPipes(true))
	at := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

	keys := s.Keys(domain.StatsEvent{Kind: domain.EventAcquire, Class: domain.ClassDMAChannel, Pipe: -1, At: at})
	require.Equal(t, []string{"hw:stats:total", "hw:stats:minute:202610140930", "hw:stats:class:dma_channel"}, keys)

	keys = s.Keys(domain.StatsEvent{Kind: domain.EventFlipDisplayed, Pipe: domain.PipeC, At: at})
	require.Equal(t, []string{"hw:stats:total", "hw:stats:minute:202610140930", "hw:stats:pipe:C"}, keys)

	flat := NewRedisStatsStore(nil, WithStatsBucket("none"))
	require.Equal(t, []string{"rmgr:stats:total"}, flat.Keys(domain.StatsEvent{Kind: domain.EventFlipQueued, Pipe: domain.PipeA, At: at}))
}

func TestRedisStatsStore_NilClientIsNoop(t *testing.T) {
	s := NewRedisStatsStore(nil)
	require.NoError(t, s.Record(context.Background(), domain.StatsEvent{Kind: domain.EventAcquire}))
}
