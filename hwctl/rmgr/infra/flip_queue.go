package infra

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"hwctl-rmgr/hwctl/rmgr/domain"
)

// QueueConfig configura as filas de flip.
type QueueConfig struct {
	Pipes int
	// Depth é o máximo de pedidos por pipe, contando os terminais que ainda
	// não foram retirados com DequeueCompleted.
	Depth int
}

type pipeQueue struct {
	active       bool
	swapInterval uint32
	flips        []*domain.Flip // ordem de inserção
	refs         map[string]int // buffer -> pedidos na fila
}

// FlipQueues é uma coleção de filas de flip, uma por pipe, atrás de um único
// lock (como o lock de fila do display controller).
type FlipQueues struct {
	mu     sync.Mutex
	depth  int
	pipes  []*pipeQueue
	index  map[domain.FlipID]*domain.Flip
	nextID domain.FlipID
	seq    uint64
	now    func() time.Time
}

type QueueOption func(*FlipQueues)

// WithClock troca a fonte de tempo (útil para testes).
func WithClock(now func() time.Time) QueueOption {
	return func(q *FlipQueues) { q.now = now }
}

// NewFlipQueues cria as filas. Todos os pipes começam ativos com swap interval 1.
func NewFlipQueues(cfg QueueConfig, opts ...QueueOption) (*FlipQueues, error) {
	if cfg.Pipes <= 0 || cfg.Pipes > domain.MaxPipes {
		return nil, fmt.Errorf("%w: flip queue: pipes %d out of range 1..%d", domain.ErrConfig, cfg.Pipes, domain.MaxPipes)
	}
	if cfg.Depth <= 0 || cfg.Depth > domain.MaxFlipDepth {
		return nil, fmt.Errorf("%w: flip queue: depth %d out of range 1..%d", domain.ErrConfig, cfg.Depth, domain.MaxFlipDepth)
	}
	q := &FlipQueues{
		depth: cfg.Depth,
		pipes: make([]*pipeQueue, cfg.Pipes),
		index: make(map[domain.FlipID]*domain.Flip),
		now:   time.Now,
	}
	for i := range q.pipes {
		q.pipes[i] = &pipeQueue{active: true, swapInterval: 1, refs: make(map[string]int)}
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// pipe precisa do lock.
func (q *FlipQueues) pipe(id domain.PipeID) (*pipeQueue, error) {
	if id < 0 || int(id) >= len(q.pipes) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPipe, id)
	}
	return q.pipes[id], nil
}

// admit precisa do lock.
func (q *FlipQueues) admit(pipe domain.PipeID) (*pipeQueue, error) {
	pq, err := q.pipe(pipe)
	if err != nil {
		return nil, err
	}
	if !pq.active {
		return nil, fmt.Errorf("%w: %s", domain.ErrPipeInactive, pipe)
	}
	if len(pq.flips) >= q.depth {
		return nil, fmt.Errorf("%w: %s has %d pending", domain.ErrPipeFull, pipe, len(pq.flips))
	}
	return pq, nil
}

// Admit implementa domain.FlipQueue.
func (q *FlipQueues) Admit(pipe domain.PipeID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, err := q.admit(pipe)
	return err
}

// Enqueue implementa domain.FlipQueue. Um flip referencia um ou mais
// buffers distintos; cada handle conta uma referência por flip.
func (q *FlipQueues) Enqueue(pipe domain.PipeID, buffers ...string) (domain.FlipID, error) {
	if err := checkBuffers(buffers); err != nil {
		return 0, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	pq, err := q.admit(pipe)
	if err != nil {
		return 0, err
	}

	q.nextID++
	q.seq++
	now := q.now()
	f := &domain.Flip{
		ID:        q.nextID,
		Pipe:      pipe,
		Buffers:   append([]string(nil), buffers...),
		State:     domain.FlipQueued,
		Seq:       q.seq,
		QueuedAt:  now,
		UpdatedAt: now,
	}
	pq.flips = append(pq.flips, f)
	for _, b := range f.Buffers {
		pq.refs[b]++
	}
	q.index[f.ID] = f
	return f.ID, nil
}

func checkBuffers(buffers []string) error {
	if len(buffers) == 0 {
		return fmt.Errorf("%w: flip without buffer", domain.ErrConfig)
	}
	for i, b := range buffers {
		if b == "" {
			return fmt.Errorf("%w: flip with empty buffer handle", domain.ErrConfig)
		}
		for _, prev := range buffers[:i] {
			if prev == b {
				return fmt.Errorf("%w: buffer %s repeated in flip", domain.ErrConfig, b)
			}
		}
	}
	return nil
}

// Advance implementa domain.FlipQueue. ControllerUpdated só é aceito para o
// pedido não terminal mais antigo do pipe; com isso a exibição segue a ordem
// FIFO e só um pedido por pipe fica em voo.
func (q *FlipQueues) Advance(id domain.FlipID, to domain.FlipState) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	f, ok := q.index[id]
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrUnknownFlip, id)
	}
	if !domain.CanTransition(f.State, to) {
		return fmt.Errorf("%w: flip %d %s -> %s", domain.ErrInvalidTransition, id, f.State, to)
	}
	if to == domain.FlipControllerUpdated {
		for _, other := range q.pipes[f.Pipe].flips {
			if other == f {
				break
			}
			if !other.State.Terminal() {
				return fmt.Errorf("%w: flip %d behind flip %d (%s) on %s",
					domain.ErrInvalidTransition, id, other.ID, other.State, f.Pipe)
			}
		}
	}
	f.State = to
	f.UpdatedAt = q.now()
	return nil
}

// DequeueCompleted implementa domain.FlipQueue. A referência do buffer é
// liberada aqui, quando a fila deixa de ser dona do pedido.
func (q *FlipQueues) DequeueCompleted() []domain.Flip {
	q.mu.Lock()
	defer q.mu.Unlock()

	var done []domain.Flip
	for _, pq := range q.pipes {
		kept := pq.flips[:0]
		for _, f := range pq.flips {
			if !f.State.Terminal() {
				kept = append(kept, f)
				continue
			}
			done = append(done, *f)
			delete(q.index, f.ID)
			for _, b := range f.Buffers {
				if pq.refs[b]--; pq.refs[b] <= 0 {
					delete(pq.refs, b)
				}
			}
		}
		for i := len(kept); i < len(pq.flips); i++ {
			pq.flips[i] = nil
		}
		pq.flips = kept
	}
	sort.Slice(done, func(i, j int) bool { return done[i].Seq < done[j].Seq })
	return done
}

// SetActive implementa domain.FlipQueue. Pedidos já na fila não são afetados.
func (q *FlipQueues) SetActive(pipe domain.PipeID, active bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	pq, err := q.pipe(pipe)
	if err != nil {
		return err
	}
	pq.active = active
	return nil
}

func (q *FlipQueues) SetSwapInterval(pipe domain.PipeID, interval uint32) error {
	if interval == 0 {
		return fmt.Errorf("%w: swap interval must be >= 1", domain.ErrConfig)
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	pq, err := q.pipe(pipe)
	if err != nil {
		return err
	}
	pq.swapInterval = interval
	return nil
}

func (q *FlipQueues) Get(id domain.FlipID) (domain.Flip, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	f, ok := q.index[id]
	if !ok {
		return domain.Flip{}, false
	}
	return copyFlip(f), true
}

func (q *FlipQueues) Pipe(pipe domain.PipeID) (domain.PipeSnapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pq, err := q.pipe(pipe)
	if err != nil {
		return domain.PipeSnapshot{}, err
	}
	snap := domain.PipeSnapshot{
		Pipe:         pipe,
		Active:       pq.active,
		SwapInterval: pq.swapInterval,
		Depth:        q.depth,
		RefCount:     len(pq.refs),
		Flips:        make([]domain.Flip, 0, len(pq.flips)),
	}
	for _, f := range pq.flips {
		snap.Flips = append(snap.Flips, copyFlip(f))
	}
	return snap, nil
}

func (q *FlipQueues) BufferRefs(buffer string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, pq := range q.pipes {
		n += pq.refs[buffer]
	}
	return n
}

var _ domain.FlipQueue = (*FlipQueues)(nil)

// copyFlip evita que o chamador altere a lista de buffers da fila.
func copyFlip(f *domain.Flip) domain.Flip {
	out := *f
	out.Buffers = append([]string(nil), f.Buffers...)
	return out
}
