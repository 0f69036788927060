package engine

import (
	"sync"
	"time"
)

const maxDeliveryKeys = 10000

// DeliveryLog tracks which measurements have been delivered to the engine.
// A key seen again inside the window is a redelivery from another ingest
// path. A key whose evaluation failed may be delivered once more and is
// then evaluated again.
type DeliveryLog struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	failed map[string]struct{}
}

func NewDeliveryLog() *DeliveryLog {
	return &DeliveryLog{
		seen:   make(map[string]time.Time),
		failed: make(map[string]struct{}),
	}
}

func (d *DeliveryLog) Seen(key string, now time.Time, window time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ts, ok := d.seen[key]; ok && now.Sub(ts) <= window {
		return true
	}
	d.seen[key] = now
	if len(d.seen) > maxDeliveryKeys {
		for k, ts := range d.seen {
			if now.Sub(ts) > window {
				delete(d.seen, k)
			}
		}
	}
	return false
}

func (d *DeliveryLog) Forget(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
}

func (d *DeliveryLog) MarkFailed(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	if len(d.failed) < maxDeliveryKeys {
		d.failed[key] = struct{}{}
	}
}

// TakeRetry reports whether key failed earlier and clears the mark.
func (d *DeliveryLog) TakeRetry(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.failed[key]; !ok {
		return false
	}
	delete(d.failed, key)
	return true
}

func (d *DeliveryLog) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]time.Time)
	d.failed = make(map[string]struct{})
}
