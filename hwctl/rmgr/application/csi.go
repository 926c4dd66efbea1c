package application

import (
	"fmt"
	"sync"

	"hwctl-rmgr/hwctl/rmgr/domain"
)

// CSIReceiver registra quais threads do SP consomem cada porta CSI2.
type CSIReceiver struct {
	mu      sync.Mutex
	threads uint32
	ports   []uint32 // bitmask de threads por porta
}

func NewCSIReceiver(ports, threads int) (*CSIReceiver, error) {
	if ports <= 0 || ports > domain.NumCSIPorts {
		return nil, fmt.Errorf("%w: csi: ports %d out of range 1..%d", domain.ErrConfig, ports, domain.NumCSIPorts)
	}
	if threads <= 0 || threads > domain.MaxSPThreads {
		return nil, fmt.Errorf("%w: csi: threads %d out of range 1..%d", domain.ErrConfig, threads, domain.MaxSPThreads)
	}
	return &CSIReceiver{threads: uint32(threads), ports: make([]uint32, ports)}, nil
}

func (r *CSIReceiver) check(port, thread uint32) error {
	if int(port) >= len(r.ports) || thread >= r.threads {
		return fmt.Errorf("%w: csi port %d thread %d", domain.ErrConfig, port, thread)
	}
	return nil
}

// Register falha com ErrInvalidHandle se a thread já está registrada na porta.
func (r *CSIReceiver) Register(port, thread uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.check(port, thread); err != nil {
		return err
	}
	bit := uint32(1) << thread
	if r.ports[port]&bit != 0 {
		return fmt.Errorf("%w: csi port %d thread %d already registered", domain.ErrInvalidHandle, port, thread)
	}
	r.ports[port] |= bit
	return nil
}

func (r *CSIReceiver) Unregister(port, thread uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.check(port, thread); err != nil {
		return err
	}
	bit := uint32(1) << thread
	if r.ports[port]&bit == 0 {
		return fmt.Errorf("%w: csi port %d thread %d not registered", domain.ErrInvalidHandle, port, thread)
	}
	r.ports[port] &^= bit
	return nil
}

// Registered lista as threads registradas na porta, em ordem crescente.
func (r *CSIReceiver) Registered(port uint32) ([]uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if int(port) >= len(r.ports) {
		return nil, fmt.Errorf("%w: csi port %d", domain.ErrConfig, port)
	}
	out := []uint32{}
	for t := uint32(0); t < r.threads; t++ {
		if r.ports[port]&(1<<t) != 0 {
			out = append(out, t)
		}
	}
	return out, nil
}
