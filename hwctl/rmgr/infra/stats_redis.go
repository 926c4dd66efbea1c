package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hwctl-rmgr/hwctl/rmgr/domain"

	"github.com/redis/go-redis/v9"
)

type RedisStatsStore struct {
	rdb *redis.Client

	prefix string
	// ttl aplica apenas em chaves de série temporal.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackPipes bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackPipes(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackPipes = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "rmgr:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Keys retorna as chaves que um evento incrementa, na ordem do pipeline.
func (s *RedisStatsStore) Keys(ev domain.StatsEvent) []string {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	keys := []string{s.prefix + ":total"}
	if s.bucket == "minute" {
		keys = append(keys, fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504")))
	}
	if ev.Class != "" {
		keys = append(keys, s.prefix+":class:"+string(ev.Class))
	} else if s.trackPipes && ev.Pipe >= 0 {
		keys = append(keys, s.prefix+":pipe:"+ev.Pipe.String())
	}
	return keys
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	field := string(ev.Kind)
	pipe := s.rdb.Pipeline()
	for i, key := range s.Keys(ev) {
		pipe.HIncrBy(ctx, key, field, 1)
		// só o bucket por minuto (sempre a segunda chave) expira
		if i == 1 && s.bucket == "minute" && s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}
