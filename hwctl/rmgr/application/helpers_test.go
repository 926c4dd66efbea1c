package application

import (
	"testing"

	"hwctl-rmgr/hwctl/rmgr/domain"
	"hwctl-rmgr/hwctl/rmgr/infra"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type testPools struct {
	lut  *infra.SlotPool
	ibuf *infra.RegionPool
	dma  *infra.SlotPool
	sid  *infra.SlotPool
}

// newTestISYS monta um ISYS pequeno: 1 backend com 2 entradas long e 1 short,
// 1KiB de ibuf, 2 canais de DMA e 2 SIDs no stream2mmio 0.
func newTestISYS(t *testing.T) (*ISYS, testPools) {
	t.Helper()

	var p testPools
	var err error
	p.lut, err = infra.NewLUTPool([]int{2}, []int{1})
	require.NoError(t, err)
	p.ibuf, err = infra.NewRegionPool(infra.RegionConfig{Size: 1024, MaxHandles: 4, Align: domain.DefaultIBufAlign})
	require.NoError(t, err)
	p.dma, err = infra.NewDMAPool([]int{2})
	require.NoError(t, err)
	p.sid, err = infra.NewSIDPool([]int{2})
	require.NoError(t, err)

	isys, err := NewISYS(zerolog.Nop(), p.lut, p.ibuf, p.dma, p.sid)
	require.NoError(t, err)
	return isys, p
}
