package services

import (
	"sync"
	"time"

	"github.com/example/remotefix/internal/models"
)

// PaymentStatus is the polling view of an order.
type PaymentStatus struct {
	Status    string `json:"status"`
	PaymentID string `json:"payment_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Amount    int64  `json:"amount,omitempty"`
}

type statusEntry struct {
	status    PaymentStatus
	expiresAt time.Time
}

// StatusCache is a process-local mirror of last-known order statuses used
// to answer polling without hitting the database. It is advisory only: the
// Payment table stays the source of truth and the cache is rebuilt from it
// on misses. Entries that reached a terminal status are evicted after the
// retention TTL.
type StatusCache struct {
	mu      sync.RWMutex
	entries map[string]statusEntry
	ttl     time.Duration
	stop    chan struct{}
	once    sync.Once
}

// NewStatusCache creates a cache whose terminal entries live for ttl.
func NewStatusCache(ttl time.Duration) *StatusCache {
	c := &StatusCache{
		entries: make(map[string]statusEntry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go c.janitor()
	return c
}

// Set records the last-known status for an order.
func (c *StatusCache) Set(orderID string, status PaymentStatus) {
	if orderID == "" {
		return
	}

	entry := statusEntry{status: status}
	if isTerminalStatus(status.Status) && c.ttl > 0 {
		entry.expiresAt = time.Now().Add(c.ttl)
	}

	c.mu.Lock()
	c.entries[orderID] = entry
	c.mu.Unlock()
}

// Get returns the cached status for an order, if present and not expired.
func (c *StatusCache) Get(orderID string) (PaymentStatus, bool) {
	c.mu.RLock()
	entry, ok := c.entries[orderID]
	c.mu.RUnlock()

	if !ok {
		return PaymentStatus{}, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, orderID)
		c.mu.Unlock()
		return PaymentStatus{}, false
	}
	return entry.status, true
}

// Len reports the number of cached entries.
func (c *StatusCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the eviction janitor.
func (c *StatusCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *StatusCache) janitor() {
	interval := c.ttl
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for id, entry := range c.entries {
				if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
					delete(c.entries, id)
				}
			}
			c.mu.Unlock()
		}
	}
}

func isTerminalStatus(status string) bool {
	return status == models.PaymentStatusCaptured || status == models.PaymentStatusFailed
}
