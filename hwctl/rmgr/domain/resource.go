package domain

import "fmt"

// Class identifica o tipo de recurso de hardware gerenciado por um pool.
type Class string

const (
	ClassLUT        Class = "lut"
	ClassIBuf       Class = "ibuf"
	ClassDMAChannel Class = "dma_channel"
	ClassSID        Class = "sid"
)

// Classes lista as classes na ordem em que um stream as adquire.
var Classes = []Class{ClassLUT, ClassIBuf, ClassDMAChannel, ClassSID}

func ParseClass(s string) (Class, error) {
	for _, c := range Classes {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown resource class %q", ErrConfig, s)
}

// PacketType é o tipo de pacote MIPI roteado por uma entrada de LUT.
type PacketType uint32

const (
	PacketLong PacketType = iota
	PacketShort
)

func (p PacketType) String() string {
	if p == PacketShort {
		return "short"
	}
	return "long"
}

// Selector é a chave de seleção de um acquire.
//
// O significado de cada campo depende da classe:
//   - lut: Group = backend do CSI-RX, PacketType = long/short
//   - ibuf: Size = bytes pedidos
//   - dma_channel: Group = id do DMA
//   - sid: Group = id do stream2mmio
type Selector struct {
	Group      uint32     `json:"group"`
	PacketType PacketType `json:"packet_type"`
	Size       uint32     `json:"size"`
}

// Slot é um recurso adquirido. É um valor: a posse é registrada no pool,
// não no struct.
type Slot struct {
	Class      Class      `json:"class"`
	Group      uint32     `json:"group"`
	PacketType PacketType `json:"packet_type"`
	// Index é a entrada de LUT, o canal de DMA ou o SID.
	Index uint32 `json:"index"`
	// Addr/Size descrevem a região de ibuf.
	Addr uint32 `json:"addr"`
	Size uint32 `json:"size"`
}

func (s Slot) String() string {
	if s.Class == ClassIBuf {
		return fmt.Sprintf("%s[0x%04x+%d]", s.Class, s.Addr, s.Size)
	}
	if s.Class == ClassLUT {
		return fmt.Sprintf("%s[%d/%s/%d]", s.Class, s.Group, s.PacketType, s.Index)
	}
	return fmt.Sprintf("%s[%d/%d]", s.Class, s.Group, s.Index)
}

// PoolStats: Capacity/InUse/Free contam slots, ou bytes no caso do ibuf.
// Owned é sempre o número de handles em uso.
type PoolStats struct {
	Class    Class `json:"class"`
	Capacity int   `json:"capacity"`
	InUse    int   `json:"in_use"`
	Free     int   `json:"free"`
	Owned    int   `json:"owned"`
	// LargestFree só faz sentido para pools por tamanho (ibuf).
	LargestFree int `json:"largest_free,omitempty"`
}

// ResourcePool representa um conjunto de recursos com capacidade fixa.
//
// A semântica é: Acquire nunca bloqueia. Se não houver vaga que atenda o
// selector, retorna ok=false e o chamador decide (retry, backpressure).
// Release de um slot que não está em uso retorna ErrInvalidHandle e não
// altera o estado do pool.
type ResourcePool interface {
	Class() Class
	Acquire(sel Selector) (Slot, bool)
	Release(slot Slot) error
	Stats() PoolStats
	// Close libera o estado do pool. Se ainda houver slots em uso retorna
	// ErrResourceLeak, mas o pool fica fechado de qualquer forma.
	Close() error
}
