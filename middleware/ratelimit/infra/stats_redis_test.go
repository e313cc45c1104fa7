package infra

import (
	"context"
	"testing"
	"time"

	"homework-gateway/middleware/ratelimit/domain"
)

func TestRedisStatsStore_NilClientIsNoop(t *testing.T) {
	var s *RedisStatsStore
	if err := s.Record(context.Background(), domain.StatsEvent{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	s = NewRedisStatsStore(nil)
	if err := s.Record(context.Background(), domain.StatsEvent{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestRedisStatsStore_KeysFor(t *testing.T) {
	s := NewRedisStatsStore(nil, WithStatsPrefix("hw:stats:"), WithStatsTrackKeys(true))
	at := time.Date(2025, 3, 25, 14, 7, 0, 0, time.UTC)

	keys := s.keysFor(domain.StatsEvent{Key: "1.2.3.4", Method: "POST", Path: "/api/chat"}, at)

	want := []statsKey{
		{name: "hw:stats:total"},
		{name: "hw:stats:minute:202503251407", expires: true},
		{name: "hw:stats:route", fieldPrefix: "POST /api/chat:"},
		{name: "hw:stats:key:1.2.3.4", expires: true},
	}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d: %+v", len(want), len(keys), keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("key %d: expected %+v, got %+v", i, want[i], keys[i])
		}
	}
}

func TestRedisStatsStore_BucketNoneOnlyTotal(t *testing.T) {
	s := NewRedisStatsStore(nil, WithStatsBucket(" NONE "))

	keys := s.keysFor(domain.StatsEvent{Key: "k"}, time.Now())
	if len(keys) != 1 || keys[0].name != "homework:ratelimit:stats:total" {
		t.Fatalf("expected only total key, got %+v", keys)
	}
}
