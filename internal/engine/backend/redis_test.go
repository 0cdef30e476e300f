package backend

import (
	"errors"
	"testing"

	redis "github.com/redis/go-redis/v9"
)

func TestReplyOfStringSlice(t *testing.T) {
	cmd := redis.NewStringSliceResult([]string{"a", "b"}, nil)
	r := replyOf(cmd)
	if r.Err != nil || len(r.Members) != 2 || r.Members[0] != "a" {
		t.Fatalf("unexpected reply: %+v", r)
	}
}

func TestReplyOfInt(t *testing.T) {
	cmd := redis.NewIntResult(7, nil)
	r := replyOf(cmd)
	if r.Err != nil || r.N != 7 {
		t.Fatalf("unexpected reply: %+v", r)
	}
}

func TestReplyOfMissingKey(t *testing.T) {
	cmd := redis.NewStringResult("", redis.Nil)
	r := replyOf(cmd)
	if r.Err != nil {
		t.Fatalf("redis.Nil should map to Missing, not Err: %+v", r)
	}
	if !r.Missing {
		t.Fatalf("expected Missing reply, got %+v", r)
	}
}

func TestReplyOfError(t *testing.T) {
	boom := errors.New("connection reset")
	cmd := redis.NewStringResult("", boom)
	r := replyOf(cmd)
	if !errors.Is(r.Err, boom) {
		t.Fatalf("expected wrapped error, got %+v", r)
	}
}

func TestCmdConstructors(t *testing.T) {
	if c := ZAdd("k", 10, "m"); c.op != opZAdd || c.Key() != "k" || c.score != 10 || c.member != "m" {
		t.Fatalf("ZAdd built %+v", c)
	}
	if c := ZRangeByScore("k", 1, 2); c.op != opZRangeByScore || c.min != 1 || c.max != 2 {
		t.Fatalf("ZRangeByScore built %+v", c)
	}
	if c := Expire("k", 600); c.op != opExpire || c.ttl != 600 {
		t.Fatalf("Expire built %+v", c)
	}
}

func TestNewRedisRequiresHost(t *testing.T) {
	if _, err := NewRedis(Config{}); err == nil {
		t.Fatal("expected error for missing host")
	}
}
