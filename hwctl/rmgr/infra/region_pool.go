package infra

import (
	"fmt"
	"sync"

	"hwctl-rmgr/hwctl/rmgr/domain"

	"github.com/google/btree"
)

// RegionConfig configura o pool de regiões do input buffer.
type RegionConfig struct {
	// Size é o tamanho total do input buffer em bytes.
	Size uint32
	// MaxHandles limita quantas regiões podem estar em uso ao mesmo tempo.
	MaxHandles int
	// Align é o alinhamento (potência de 2) de início e tamanho das regiões.
	Align uint32
}

func (c RegionConfig) validate() error {
	if c.Size == 0 || c.Size > domain.MaxIBufBytes {
		return fmt.Errorf("%w: ibuf: size %d out of range 1..%d", domain.ErrConfig, c.Size, domain.MaxIBufBytes)
	}
	if c.MaxHandles <= 0 || c.MaxHandles > domain.MaxIBufHandles {
		return fmt.Errorf("%w: ibuf: handles %d out of range 1..%d", domain.ErrConfig, c.MaxHandles, domain.MaxIBufHandles)
	}
	if c.Align == 0 || c.Align&(c.Align-1) != 0 || c.Size%c.Align != 0 {
		return fmt.Errorf("%w: ibuf: alignment %d must be a power of two dividing the size", domain.ErrConfig, c.Align)
	}
	return nil
}

type region struct {
	addr uint32
	size uint32
}

// RegionPool entrega regiões contíguas do input buffer.
//
// Estratégia best-fit: escolhe a menor região livre que cabe o pedido
// (empate pelo menor endereço) e devolve o resto para a lista livre.
// No release a região é fundida com as vizinhas livres, então a lista
// livre nunca tem duas regiões adjacentes.
type RegionPool struct {
	mu     sync.Mutex
	cfg    RegionConfig
	bySize *btree.BTreeG[region]
	byAddr *btree.BTreeG[region]
	owned  map[uint32]uint32 // addr -> size
	used   uint32
	closed bool
}

func NewRegionPool(cfg RegionConfig) (*RegionPool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	p := &RegionPool{
		cfg: cfg,
		bySize: btree.NewG[region](8, func(a, b region) bool {
			if a.size != b.size {
				return a.size < b.size
			}
			return a.addr < b.addr
		}),
		byAddr: btree.NewG[region](8, func(a, b region) bool {
			return a.addr < b.addr
		}),
		owned: make(map[uint32]uint32, cfg.MaxHandles),
	}
	p.insertFree(region{addr: 0, size: cfg.Size})
	return p, nil
}

func (p *RegionPool) Class() domain.Class { return domain.ClassIBuf }

// Acquire implementa domain.ResourcePool. O tamanho é arredondado para o
// alinhamento; o slot retornado traz o tamanho efetivo.
func (p *RegionPool) Acquire(sel domain.Selector) (domain.Slot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || sel.Size == 0 || len(p.owned) >= p.cfg.MaxHandles {
		return domain.Slot{}, false
	}
	size64 := (uint64(sel.Size) + uint64(p.cfg.Align) - 1) &^ (uint64(p.cfg.Align) - 1)
	if size64 > uint64(p.cfg.Size) {
		return domain.Slot{}, false
	}
	size := uint32(size64)

	var (
		best  region
		found bool
	)
	p.bySize.AscendGreaterOrEqual(region{size: size}, func(r region) bool {
		best, found = r, true
		return false
	})
	if !found {
		return domain.Slot{}, false
	}

	p.removeFree(best)
	if best.size > size {
		p.insertFree(region{addr: best.addr + size, size: best.size - size})
	}
	p.owned[best.addr] = size
	p.used += size

	return domain.Slot{Class: domain.ClassIBuf, Addr: best.addr, Size: size}, true
}

// Release implementa domain.ResourcePool. A região é identificada pelo
// endereço inicial; se Size vier preenchido tem que bater com o adquirido.
func (p *RegionPool) Release(slot domain.Slot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || slot.Class != domain.ClassIBuf {
		return fmt.Errorf("%w: %s", domain.ErrInvalidHandle, slot)
	}
	size, ok := p.owned[slot.Addr]
	if !ok || (slot.Size != 0 && slot.Size != size) {
		return fmt.Errorf("%w: %s not owned", domain.ErrInvalidHandle, slot)
	}
	delete(p.owned, slot.Addr)
	p.used -= size

	r := region{addr: slot.Addr, size: size}

	// funde com a vizinha de baixo
	var prev region
	havePrev := false
	p.byAddr.DescendLessOrEqual(region{addr: r.addr}, func(x region) bool {
		prev, havePrev = x, true
		return false
	})
	if havePrev && prev.addr+prev.size == r.addr {
		p.removeFree(prev)
		r = region{addr: prev.addr, size: prev.size + r.size}
	}

	// funde com a vizinha de cima
	var next region
	haveNext := false
	p.byAddr.AscendGreaterOrEqual(region{addr: r.addr + r.size}, func(x region) bool {
		next, haveNext = x, true
		return false
	})
	if haveNext && r.addr+r.size == next.addr {
		p.removeFree(next)
		r.size += next.size
	}

	p.insertFree(r)
	return nil
}

func (p *RegionPool) Stats() domain.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	largest := 0
	if max, ok := p.bySize.Max(); ok {
		largest = int(max.size)
	}
	return domain.PoolStats{
		Class:       domain.ClassIBuf,
		Capacity:    int(p.cfg.Size),
		InUse:       int(p.used),
		Free:        int(p.cfg.Size - p.used),
		Owned:       len(p.owned),
		LargestFree: largest,
	}
}

// FreeRegions retorna a lista livre ordenada por endereço.
func (p *RegionPool) FreeRegions() []domain.Slot {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.Slot, 0, p.byAddr.Len())
	p.byAddr.Ascend(func(r region) bool {
		out = append(out, domain.Slot{Class: domain.ClassIBuf, Addr: r.addr, Size: r.size})
		return true
	})
	return out
}

// Close implementa domain.ResourcePool.
func (p *RegionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	leaked := len(p.owned)
	p.bySize.Clear(false)
	p.byAddr.Clear(false)
	p.owned = nil
	p.used = 0
	p.closed = true

	if leaked > 0 {
		return fmt.Errorf("%w: ibuf: %d regions still owned", domain.ErrResourceLeak, leaked)
	}
	return nil
}

// insertFree e removeFree precisam do lock.
func (p *RegionPool) insertFree(r region) {
	p.bySize.ReplaceOrInsert(r)
	p.byAddr.ReplaceOrInsert(r)
}

func (p *RegionPool) removeFree(r region) {
	p.bySize.Delete(r)
	p.byAddr.Delete(r)
}

var _ domain.ResourcePool = (*RegionPool)(nil)
