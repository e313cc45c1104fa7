package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"homework-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore grava contadores de decisão em hashes do Redis.
//
// Só estatística: o estado do limiter continua em memória do processo.
type RedisStatsStore struct {
	rdb redis.Cmdable

	prefix string
	// ttl aplica apenas em chaves de série temporal / por key.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackKeys bool
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

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "homework:ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := string(ev.Reason)
	if field == "" {
		field = string(domain.ReasonLimited)
		if ev.Allowed {
			field = string(domain.ReasonAdmitted)
		}
	}

	pipe := s.rdb.Pipeline()
	for _, k := range s.keysFor(ev, at) {
		pipe.HIncrBy(ctx, k.name, k.fieldPrefix+field, 1)
		if k.expires && s.ttl > 0 {
			pipe.Expire(ctx, k.name, s.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record ratelimit stats: %w", err)
	}
	return nil
}

type statsKey struct {
	name        string
	fieldPrefix string
	expires     bool
}

// keysFor lista os hashes que o evento incrementa.
func (s *RedisStatsStore) keysFor(ev domain.StatsEvent, at time.Time) []statsKey {
	keys := []statsKey{{name: s.prefix + ":total"}}

	if s.bucket == "minute" {
		keys = append(keys, statsKey{
			name:    fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504")),
			expires: true,
		})
	}

	route := strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path))
	if route != "" {
		keys = append(keys, statsKey{name: s.prefix + ":route", fieldPrefix: route + ":"})
	}

	if s.trackKeys {
		if k := strings.TrimSpace(string(ev.Key)); k != "" {
			keys = append(keys, statsKey{name: s.prefix + ":key:" + k, expires: true})
		}
	}
	return keys
}
