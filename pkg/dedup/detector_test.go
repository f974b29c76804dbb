package dedup

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestDetector(t *testing.T, window time.Duration) (*Detector, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	d := NewDetector(window, WithClock(clock.Now))
	t.Cleanup(func() { d.Close() })
	return d, clock
}

func TestNewDetector(t *testing.T) {
	d := NewDetector(24 * time.Hour)
	defer d.Close()

	if d.seen == nil {
		t.Error("expected seen map to be initialized")
	}
	if d.Window() != 24*time.Hour {
		t.Errorf("expected window 24h, got %v", d.Window())
	}
	if d.interval != DefaultPurgeInterval {
		t.Errorf("expected default purge interval, got %v", d.interval)
	}
}

func TestDetector_Seen(t *testing.T) {
	d, clock := newTestDetector(t, time.Hour)

	if d.Seen("stmt-1") {
		t.Error("first occurrence should not be a duplicate")
	}
	if !d.Seen("stmt-1") {
		t.Error("second occurrence should be a duplicate")
	}
	if d.Seen("stmt-2") {
		t.Error("other key should not be a duplicate")
	}

	clock.Advance(59 * time.Minute)
	if !d.Seen("stmt-1") {
		t.Error("expected duplicate inside the window")
	}

	// A repeat does not extend the window
	clock.Advance(time.Minute)
	if d.Seen("stmt-1") {
		t.Error("expected key to expire after the window")
	}
}

func TestDetector_Contains(t *testing.T) {
	d, clock := newTestDetector(t, time.Hour)

	if d.Contains("stmt-1") {
		t.Error("unexpected key")
	}
	if d.Contains("stmt-1") {
		t.Error("Contains must not record the key")
	}

	d.Seen("stmt-1")
	if !d.Contains("stmt-1") {
		t.Error("expected key to be contained")
	}

	clock.Advance(2 * time.Hour)
	if d.Contains("stmt-1") {
		t.Error("expired key should not be contained")
	}
}

func TestDetector_Forget(t *testing.T) {
	d, _ := newTestDetector(t, time.Hour)

	d.Seen("stmt-1")
	d.Forget("stmt-1")

	if d.Seen("stmt-1") {
		t.Error("forgotten key should not be a duplicate")
	}
}

func TestDetector_Purge(t *testing.T) {
	d, clock := newTestDetector(t, time.Hour)

	d.Seen("old")
	clock.Advance(30 * time.Minute)
	d.Seen("new")
	clock.Advance(45 * time.Minute)

	if n := d.Purge(); n != 1 {
		t.Errorf("expected 1 purged key, got %d", n)
	}
	if d.Len() != 1 {
		t.Errorf("expected 1 remaining key, got %d", d.Len())
	}
	if !d.Contains("new") {
		t.Error("expected unexpired key to survive")
	}
}

func TestDetector_PurgeLoop(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	d := NewDetector(time.Minute, WithClock(clock.Now), WithPurgeInterval(5*time.Millisecond))
	defer d.Close()

	d.Seen("stmt-1")
	clock.Advance(time.Hour)

	deadline := time.Now().Add(2 * time.Second)
	for d.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected purge loop to remove the expired key")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDetector_CloseTwice(t *testing.T) {
	d := NewDetector(time.Hour)

	if err := d.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}
}

func TestDetector_Concurrent(t *testing.T) {
	d, _ := newTestDetector(t, time.Hour)

	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !d.Seen("same") {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if fresh != 1 {
		t.Errorf("expected exactly one first occurrence, got %d", fresh)
	}
}

func TestChecksum(t *testing.T) {
	a := Checksum([]byte("<Document/>"))
	b := Checksum([]byte("<Document/>"))
	c := Checksum([]byte("<Document />"))

	if a != b {
		t.Error("checksum should be deterministic")
	}
	if a == c {
		t.Error("different content should hash differently")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(a))
	}
}

func TestKey(t *testing.T) {
	if Key("MSG-1", "abc") != "MSG-1|abc" {
		t.Errorf("unexpected key %q", Key("MSG-1", "abc"))
	}
	if Key("", "abc") == Key("abc", "") {
		t.Error("keys with swapped parts should differ")
	}
}
