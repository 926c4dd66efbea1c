package domain

import "fmt"

// MaxContextCount é o máximo de contextos de plano que compartilham um buffer.
const MaxContextCount = 3

type BufferSource string

const (
	BufferAlloc  BufferSource = "alloc"
	BufferImport BufferSource = "import"
	BufferSystem BufferSource = "system"
)

type FlipOp string

const (
	FlipSurface FlipOp = "surface"
	FlipContext FlipOp = "context"
)

// PlaneContext descreve um plano (primário, sprite, overlay) que exibe o buffer.
type PlaneContext struct {
	Plane  string `json:"plane"`
	Pipe   PipeID `json:"pipe"`
	X      int32  `json:"x"`
	Y      int32  `json:"y"`
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

// Buffer é o descritor de um buffer de display. O flip referencia o buffer
// pelo Handle; a lista de buffers vive numa tabela separada.
type Buffer struct {
	Handle      string         `json:"handle"`
	PixelFormat string         `json:"pixel_format"`
	Size        uint32         `json:"size"`
	ByteStride  uint32         `json:"byte_stride"`
	Width       uint32         `json:"width"`
	Height      uint32         `json:"height"`
	Contiguous  bool           `json:"contiguous"`
	Source      BufferSource   `json:"source"`
	FlipOp      FlipOp         `json:"flip_op"`
	Contexts    []PlaneContext `json:"contexts,omitempty"`
}

func (b Buffer) Validate() error {
	if b.Handle == "" {
		return fmt.Errorf("%w: buffer handle is required", ErrConfig)
	}
	if b.Width == 0 || b.Height == 0 {
		return fmt.Errorf("%w: buffer %s has zero dimensions", ErrConfig, b.Handle)
	}
	if b.ByteStride != 0 && b.Size != 0 && uint64(b.ByteStride)*uint64(b.Height) > uint64(b.Size) {
		return fmt.Errorf("%w: buffer %s stride*height exceeds size", ErrConfig, b.Handle)
	}
	switch b.Source {
	case "", BufferAlloc, BufferImport, BufferSystem:
	default:
		return fmt.Errorf("%w: buffer %s has unknown source %q", ErrConfig, b.Handle, b.Source)
	}
	switch b.FlipOp {
	case "", FlipSurface, FlipContext:
	default:
		return fmt.Errorf("%w: buffer %s has unknown flip op %q", ErrConfig, b.Handle, b.FlipOp)
	}
	if len(b.Contexts) > MaxContextCount {
		return fmt.Errorf("%w: buffer %s has %d contexts (max %d)", ErrConfig, b.Handle, len(b.Contexts), MaxContextCount)
	}
	return nil
}
