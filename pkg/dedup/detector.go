package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// DefaultPurgeInterval is how often expired keys are removed
const DefaultPurgeInterval = time.Hour

// Detector remembers keys for a time window
type Detector struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration

	interval time.Duration
	now      func() time.Time

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Option configures a Detector
type Option func(*Detector)

// WithPurgeInterval sets how often expired keys are removed
func WithPurgeInterval(d time.Duration) Option {
	return func(det *Detector) {
		det.interval = d
	}
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(det *Detector) {
		det.now = now
	}
}

// NewDetector creates a detector and starts its purge loop
func NewDetector(window time.Duration, opts ...Option) *Detector {
	d := &Detector{
		seen:     make(map[string]time.Time),
		window:   window,
		interval: DefaultPurgeInterval,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	go d.purgeLoop()

	return d
}

// Window returns the duplicate detection window
func (d *Detector) Window() time.Duration {
	return d.window
}

// Seen records key and reports whether it was already recorded within the
// window. A repeat does not extend the window.
func (d *Detector) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if at, ok := d.seen[key]; ok && now.Sub(at) < d.window {
		return true
	}
	d.seen[key] = now
	return false
}

// Contains reports whether key was recorded within the window without recording it
func (d *Detector) Contains(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	at, ok := d.seen[key]
	return ok && d.now().Sub(at) < d.window
}

// Forget removes key, e.g. after processing it failed
func (d *Detector) Forget(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.seen, key)
}

// Len returns the number of remembered keys, expired ones included until purged
func (d *Detector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.seen)
}

// Purge removes expired keys and returns how many were removed
func (d *Detector) Purge() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	removed := 0
	for key, at := range d.seen {
		if now.Sub(at) >= d.window {
			delete(d.seen, key)
			removed++
		}
	}
	return removed
}

// Close stops the purge loop. It is safe to call more than once.
func (d *Detector) Close() error {
	d.once.Do(func() {
		close(d.stop)
	})
	<-d.done
	return nil
}

func (d *Detector) purgeLoop() {
	defer close(d.done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.Purge()
		case <-d.stop:
			return
		}
	}
}

// Checksum returns the hex SHA-256 of content
func Checksum(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// Key combines a message identification and a checksum. Either may be empty.
func Key(messageID, checksum string) string {
	return messageID + "|" + checksum
}
