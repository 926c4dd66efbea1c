package application

import (
	"context"
	"time"

	"hwctl-rmgr/hwctl/rmgr/domain"

	"github.com/rs/zerolog"
)

// record grava o evento em best-effort: erro de stats só vira log.
func record(ctx context.Context, stats domain.StatsStore, log zerolog.Logger, ev domain.StatsEvent) {
	if stats == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if err := stats.Record(ctx, ev); err != nil {
		log.Debug().Err(err).Str("kind", string(ev.Kind)).Msg("stats record failed")
	}
}

func resourceEvent(kind domain.EventKind, class domain.Class) domain.StatsEvent {
	return domain.StatsEvent{Kind: kind, Class: class, Pipe: -1}
}

func flipEvent(kind domain.EventKind, pipe domain.PipeID) domain.StatsEvent {
	return domain.StatsEvent{Kind: kind, Pipe: pipe}
}
