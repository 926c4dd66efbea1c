package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PipeID identifica um pipe do display controller (A, B, C).
type PipeID int

const (
	PipeA PipeID = iota
	PipeB
	PipeC

	MaxPipes = 3
)

func (p PipeID) String() string {
	if p >= 0 && p < MaxPipes {
		return string(rune('A' + int(p)))
	}
	return fmt.Sprintf("pipe(%d)", int(p))
}

type FlipID uint64

// FlipState é o estado de um pedido de flip.
//
//	Queued -> ControllerUpdated -> Displayed
//	   \_____________\_____________-> Error
type FlipState int

const (
	FlipQueued FlipState = iota
	FlipControllerUpdated
	FlipDisplayed
	FlipError
)

var flipStateNames = map[FlipState]string{
	FlipQueued:            "queued",
	FlipControllerUpdated: "controller_updated",
	FlipDisplayed:         "displayed",
	FlipError:             "error",
}

func (s FlipState) String() string {
	if n, ok := flipStateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func ParseFlipState(s string) (FlipState, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for st, n := range flipStateNames {
		if n == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown flip state %q", ErrConfig, s)
}

func (s FlipState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *FlipState) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	st, err := ParseFlipState(name)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Terminal: Displayed e Error removem o pedido da fila.
func (s FlipState) Terminal() bool {
	return s == FlipDisplayed || s == FlipError
}

// CanTransition aplica a máquina de estados. Só avança; Error vale a partir
// de qualquer estado não terminal.
func CanTransition(from, to FlipState) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case FlipError:
		return true
	case FlipControllerUpdated:
		return from == FlipQueued
	case FlipDisplayed:
		return from == FlipControllerUpdated
	}
	return false
}

// Flip é um pedido de troca de buffer em um pipe.
type Flip struct {
	ID   FlipID `json:"id"`
	Pipe PipeID `json:"pipe"`
	// Buffers são os handles exibidos pelo flip (um por plano). Os
	// descritores ficam na tabela de buffers, fora do flip.
	Buffers []string  `json:"buffers"`
	State   FlipState `json:"state"`
	// Seq é a ordem global de inserção.
	Seq       uint64    `json:"seq"`
	QueuedAt  time.Time `json:"queued_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PipeSnapshot é uma cópia do estado de um pipe.
type PipeSnapshot struct {
	Pipe         PipeID `json:"pipe"`
	Active       bool   `json:"active"`
	SwapInterval uint32 `json:"swap_interval"`
	Depth        int    `json:"depth"`
	// RefCount é o número de buffers em voo no pipe.
	RefCount int    `json:"ref_count"`
	Flips    []Flip `json:"flips"`
}

// FlipQueue sequencia flips por pipe.
//
// Pedidos de um mesmo pipe são exibidos estritamente em ordem FIFO; no máximo
// um pedido por pipe pode estar em voo na fronteira de atualização do hardware.
type FlipQueue interface {
	// Admit verifica se o pipe aceitaria um novo pedido agora (pipe válido,
	// ativo, abaixo da profundidade), sem enfileirar nada.
	Admit(pipe PipeID) error
	Enqueue(pipe PipeID, buffers ...string) (FlipID, error)
	Advance(id FlipID, to FlipState) error
	// DequeueCompleted remove e retorna todos os pedidos em estado terminal,
	// na ordem de inserção.
	DequeueCompleted() []Flip
	SetActive(pipe PipeID, active bool) error
	SetSwapInterval(pipe PipeID, interval uint32) error

	Get(id FlipID) (Flip, bool)
	Pipe(pipe PipeID) (PipeSnapshot, error)
	// BufferRefs conta os flips que ainda referenciam o buffer, em qualquer pipe.
	BufferRefs(buffer string) int
}

// FlipPacer limita a taxa de flips por pipe conforme o swap interval.
type FlipPacer interface {
	Allow(pipe PipeID) bool
	RetryAfter(pipe PipeID) time.Duration
	SetSwapInterval(pipe PipeID, interval uint32)
}
