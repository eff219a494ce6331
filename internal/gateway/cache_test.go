package gateway

import (
	"testing"
	"time"
)

func TestCache_HitWithinTTL(t *testing.T) {
	c := NewCache(time.Minute)
	c.Put("https://example.com/v", TranscriptResult{Content: "hello"})

	got, ok := c.Get("https://example.com/v")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Content != "hello" {
		t.Errorf("unexpected content %q", got.Content)
	}
	if !got.Cached {
		t.Error("expected cached flag set on hits")
	}
}

func TestCache_MissAfterExpiry(t *testing.T) {
	c := NewCache(time.Millisecond)
	c.Put("u", TranscriptResult{Content: "hello"})

	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("u"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestCache_MissUnknownURL(t *testing.T) {
	c := NewCache(time.Minute)
	if _, ok := c.Get("never-stored"); ok {
		t.Error("expected miss for unknown URL")
	}
}

func TestCache_SweepEvictsExpired(t *testing.T) {
	c := NewCache(time.Millisecond)
	c.Put("a", TranscriptResult{})
	c.Put("b", TranscriptResult{})

	time.Sleep(5 * time.Millisecond)
	c.sweep(time.Now())
	if c.Len() != 0 {
		t.Errorf("expected sweep to evict all entries, %d left", c.Len())
	}
}

func TestKeyring_Order(t *testing.T) {
	fixed := newKeyring([]string{"a", "b", "c"}, ModeFixed)
	for i := 0; i < 2; i++ {
		order := fixed.order()
		if order[0] != "a" || order[1] != "b" || order[2] != "c" {
			t.Errorf("fixed order changed: %v", order)
		}
	}

	rr := newKeyring([]string{"a", "b", "c"}, ModeRoundRobin)
	starts := []string{rr.order()[0], rr.order()[0], rr.order()[0], rr.order()[0]}
	want := []string{"a", "b", "c", "a"}
	for i := range want {
		if starts[i] != want[i] {
			t.Errorf("round-robin start %d = %q, want %q", i, starts[i], want[i])
		}
	}
}
