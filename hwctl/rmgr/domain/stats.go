package domain

import (
	"context"
	"time"
)

// EventKind é o tipo de evento registrado nas estatísticas.
type EventKind string

const (
	EventAcquire        EventKind = "acquire"
	EventExhausted      EventKind = "exhausted"
	EventRelease        EventKind = "release"
	EventInvalidRelease EventKind = "invalid_release"
	EventFlipQueued     EventKind = "flip_queued"
	EventFlipRejected   EventKind = "flip_rejected"
	EventFlipDisplayed  EventKind = "flip_displayed"
	EventFlipError      EventKind = "flip_error"
	EventFlipDropped    EventKind = "flip_transition_dropped"
)

// StatsEvent representa um evento de recurso ou de flip.
//
// Class é preenchido para eventos de recurso, Pipe para eventos de flip
// (-1 quando não se aplica).
type StatsEvent struct {
	Kind  EventKind
	Class Class
	Pipe  PipeID

	At time.Time
}

// StatsStore é a estratégia de persistência para as estatísticas.
//
// Implementações podem armazenar em Redis, memória, etc.
// Os serviços tratam erro como best-effort (não derrubam a operação).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
