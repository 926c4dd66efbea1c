package infra

import (
	"fmt"
	"sort"
	"sync"

	"hwctl-rmgr/hwctl/rmgr/domain"
)

// GroupCapacity define quantos slots um grupo (backend, id de DMA, id de
// stream2mmio) tem e o máximo que o hardware suporta.
type GroupCapacity struct {
	Group      uint32
	PacketType domain.PacketType
	Slots      int
	Max        int
}

type slotKey struct {
	group  uint32
	packet domain.PacketType
}

// SlotPool é um pool de slots indexados por inteiro, um bitmap por grupo.
// A seleção é first-fit: sempre o menor índice livre do grupo.
type SlotPool struct {
	mu       sync.Mutex
	class    domain.Class
	byPacket bool
	groups   map[slotKey]*ownedBitmap
	capacity int
	closed   bool
}

// NewSlotPool cria o pool. Falha com ErrConfig se não houver grupos, se algum
// grupo tiver zero slots ou passar do máximo do hardware.
func NewSlotPool(class domain.Class, groups []GroupCapacity) (*SlotPool, error) {
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: %s: no groups configured", domain.ErrConfig, class)
	}
	p := &SlotPool{
		class:    class,
		byPacket: class == domain.ClassLUT,
		groups:   make(map[slotKey]*ownedBitmap, len(groups)),
	}
	for _, g := range groups {
		if g.Slots <= 0 || g.Slots > g.Max {
			return nil, fmt.Errorf("%w: %s group %d: capacity %d out of range 1..%d",
				domain.ErrConfig, class, g.Group, g.Slots, g.Max)
		}
		k := p.key(g.Group, g.PacketType)
		if _, dup := p.groups[k]; dup {
			return nil, fmt.Errorf("%w: %s group %d configured twice", domain.ErrConfig, class, g.Group)
		}
		p.groups[k] = newOwnedBitmap(g.Slots)
		p.capacity += g.Slots
	}
	return p, nil
}

// NewLUTPool cria o pool de entradas de LUT do CSI-RX. long/short têm uma
// posição por backend.
func NewLUTPool(long, short []int) (*SlotPool, error) {
	if len(long) == 0 || len(long) > domain.NumCSIRXBackends || len(short) != len(long) {
		return nil, fmt.Errorf("%w: lut: need 1..%d backends with long and short entries",
			domain.ErrConfig, domain.NumCSIRXBackends)
	}
	var groups []GroupCapacity
	for b := range long {
		groups = append(groups,
			GroupCapacity{Group: uint32(b), PacketType: domain.PacketLong, Slots: long[b], Max: domain.MaxLUTEntries},
			GroupCapacity{Group: uint32(b), PacketType: domain.PacketShort, Slots: short[b], Max: domain.MaxLUTEntries},
		)
	}
	return NewSlotPool(domain.ClassLUT, groups)
}

// NewDMAPool cria o pool de canais de DMA, uma posição por id de DMA.
func NewDMAPool(channels []int) (*SlotPool, error) {
	if len(channels) == 0 || len(channels) > domain.NumDMAIDs {
		return nil, fmt.Errorf("%w: dma: need 1..%d dma ids", domain.ErrConfig, domain.NumDMAIDs)
	}
	groups := make([]GroupCapacity, 0, len(channels))
	for id, n := range channels {
		groups = append(groups, GroupCapacity{Group: uint32(id), Slots: n, Max: domain.MaxDMAChannels})
	}
	return NewSlotPool(domain.ClassDMAChannel, groups)
}

// NewSIDPool cria o pool de SIDs, uma posição por instância de stream2mmio.
func NewSIDPool(sids []int) (*SlotPool, error) {
	if len(sids) == 0 || len(sids) > domain.NumStream2MMIO {
		return nil, fmt.Errorf("%w: sid: need 1..%d stream2mmio ids", domain.ErrConfig, domain.NumStream2MMIO)
	}
	groups := make([]GroupCapacity, 0, len(sids))
	for id, n := range sids {
		groups = append(groups, GroupCapacity{Group: uint32(id), Slots: n, Max: domain.MaxSIDs[id]})
	}
	return NewSlotPool(domain.ClassSID, groups)
}

func (p *SlotPool) key(group uint32, packet domain.PacketType) slotKey {
	if !p.byPacket {
		packet = 0
	}
	return slotKey{group: group, packet: packet}
}

func (p *SlotPool) Class() domain.Class { return p.class }

// Acquire implementa domain.ResourcePool. Retorna ok=false se o grupo não
// existe ou está cheio.
func (p *SlotPool) Acquire(sel domain.Selector) (domain.Slot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return domain.Slot{}, false
	}
	k := p.key(sel.Group, sel.PacketType)
	bm, ok := p.groups[k]
	if !ok {
		return domain.Slot{}, false
	}
	i, ok := bm.firstFree()
	if !ok {
		return domain.Slot{}, false
	}
	bm.set(i)
	return domain.Slot{Class: p.class, Group: k.group, PacketType: k.packet, Index: uint32(i)}, true
}

// Release implementa domain.ResourcePool. Slot de outra classe, grupo
// desconhecido ou índice livre resultam em ErrInvalidHandle sem mexer no estado.
func (p *SlotPool) Release(slot domain.Slot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || slot.Class != p.class {
		return fmt.Errorf("%w: %s", domain.ErrInvalidHandle, slot)
	}
	bm, ok := p.groups[p.key(slot.Group, slot.PacketType)]
	if !ok || !bm.isSet(int(slot.Index)) {
		return fmt.Errorf("%w: %s not owned", domain.ErrInvalidHandle, slot)
	}
	bm.clear(int(slot.Index))
	return nil
}

func (p *SlotPool) Stats() domain.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	used := p.inUse()
	return domain.PoolStats{
		Class:    p.class,
		Capacity: p.capacity,
		InUse:    used,
		Free:     p.capacity - used,
		Owned:    used,
	}
}

// Owned lista os slots em uso, ordenados por grupo e índice.
func (p *SlotPool) Owned() []domain.Slot {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []domain.Slot
	for k, bm := range p.groups {
		for i := 0; i < bm.n; i++ {
			if bm.isSet(i) {
				out = append(out, domain.Slot{Class: p.class, Group: k.group, PacketType: k.packet, Index: uint32(i)})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		if a.PacketType != b.PacketType {
			return a.PacketType < b.PacketType
		}
		return a.Index < b.Index
	})
	return out
}

// Close implementa domain.ResourcePool.
func (p *SlotPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	leaked := p.inUse()
	for _, bm := range p.groups {
		bm.reset()
	}
	p.closed = true

	if leaked > 0 {
		return fmt.Errorf("%w: %s: %d slots still owned", domain.ErrResourceLeak, p.class, leaked)
	}
	return nil
}

// inUse precisa do lock.
func (p *SlotPool) inUse() int {
	n := 0
	for _, bm := range p.groups {
		n += bm.used
	}
	return n
}

var _ domain.ResourcePool = (*SlotPool)(nil)
