package storage

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Engine is a struct that represents the storage engine
type Engine struct {
	partitions []*partition
	numShards  uint64
	clock      Clock
	log        *slog.Logger
}

type item struct {
	value     []byte
	expiresAt time.Time
}

func (it item) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && !now.Before(it.expiresAt)
}

type partition struct {
	data map[string]item
	mu   sync.RWMutex
}

// DefaultShards is the number of partitions used when none is configured
const DefaultShards = 16

// Option configures an Engine
type Option func(*Engine)

// WithShards sets the number of partitions. Values below 1 are ignored.
func WithShards(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.numShards = uint64(n)
		}
	}
}

// WithClock replaces the wall clock, mostly for tests
func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// NewEngine creates a new Engine
func NewEngine(log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		numShards: DefaultShards,
		clock:     realClock{},
		log:       log,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.partitions = make([]*partition, e.numShards)
	for i := range e.partitions {
		e.partitions[i] = &partition{
			data: make(map[string]item),
		}
	}

	return e
}

// getPartition returns the partition for a given key
func (e *Engine) getPartition(key string) *partition {
	return e.partitions[xxhash.Sum64String(key)%e.numShards]
}

// Set sets a key-value pair in the engine. Any previous expiry is dropped.
func (e *Engine) Set(key string, value []byte) {
	p := e.getPartition(key)

	p.mu.Lock()
	p.data[key] = item{value: bytes.Clone(value)}
	p.mu.Unlock()
}

// SetWithOptions applies a conditional, expiring write atomically with respect
// to other operations on the same key.
func (e *Engine) SetWithOptions(key string, value []byte, opts SetOptions) SetResult {
	p := e.getPartition(key)
	now := e.clock.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	old, exists := p.data[key]
	if exists && old.expired(now) {
		delete(p.data, key)
		exists = false
	}

	var res SetResult
	if opts.ReturnOld && exists {
		res.Old = old.value
		res.HadOld = true
	}

	switch opts.Condition {
	case IfNotExists:
		if exists {
			return res
		}
	case IfExists:
		if !exists {
			return res
		}
	}

	next := item{value: bytes.Clone(value)}
	switch {
	case opts.KeepTTL && exists:
		next.expiresAt = old.expiresAt
	case !opts.ExpireAt.IsZero():
		next.expiresAt = opts.ExpireAt
	case opts.TTL > 0:
		next.expiresAt = now.Add(opts.TTL)
	}

	res.Applied = true
	if next.expired(now) {
		// A deadline already in the past behaves like an immediate expiry.
		delete(p.data, key)
		return res
	}
	p.data[key] = next

	return res
}

// Get gets a value from the engine. The returned slice must not be modified.
func (e *Engine) Get(key string) ([]byte, bool) {
	p := e.getPartition(key)
	now := e.clock.Now()

	p.mu.RLock()
	it, exists := p.data[key]
	p.mu.RUnlock()

	if !exists {
		return nil, false
	}
	if it.expired(now) {
		e.evict(p, key, now)
		return nil, false
	}

	return it.value, true
}

// evict removes key if it is still expired at now
func (e *Engine) evict(p *partition, key string, now time.Time) {
	p.mu.Lock()
	if it, ok := p.data[key]; ok && it.expired(now) {
		delete(p.data, key)
	}
	p.mu.Unlock()
}

// Delete deletes keys from the engine and returns how many were present
func (e *Engine) Delete(keys ...string) int {
	now := e.clock.Now()
	removed := 0

	for _, key := range keys {
		p := e.getPartition(key)

		p.mu.Lock()
		if it, ok := p.data[key]; ok {
			delete(p.data, key)
			if !it.expired(now) {
				removed++
			}
		}
		p.mu.Unlock()
	}

	return removed
}

// Exists counts the given keys that are present. A key listed twice counts twice.
func (e *Engine) Exists(keys ...string) int {
	count := 0
	for _, key := range keys {
		if _, ok := e.Get(key); ok {
			count++
		}
	}

	return count
}

// TTL returns the time left before key expires
func (e *Engine) TTL(key string) (time.Duration, error) {
	p := e.getPartition(key)
	now := e.clock.Now()

	p.mu.RLock()
	it, exists := p.data[key]
	p.mu.RUnlock()

	if !exists {
		return 0, ErrKeyNotFound
	}
	if it.expired(now) {
		e.evict(p, key, now)
		return 0, ErrKeyNotFound
	}
	if it.expiresAt.IsZero() {
		return 0, ErrNoExpiry
	}

	return it.expiresAt.Sub(now), nil
}

// Len returns the number of keys that have not expired
func (e *Engine) Len() int {
	now := e.clock.Now()
	n := 0

	for _, p := range e.partitions {
		p.mu.RLock()
		for _, it := range p.data {
			if !it.expired(now) {
				n++
			}
		}
		p.mu.RUnlock()
	}

	return n
}

// Clear removes all keys from the engine
func (e *Engine) Clear() {
	for _, p := range e.partitions {
		p.mu.Lock()
		p.data = make(map[string]item)
		p.mu.Unlock()
	}
}

// DeleteExpired removes every expired key and returns how many were removed
func (e *Engine) DeleteExpired() int {
	now := e.clock.Now()
	removed := 0

	for _, p := range e.partitions {
		p.mu.Lock()
		for key, it := range p.data {
			if it.expired(now) {
				delete(p.data, key)
				removed++
			}
		}
		p.mu.Unlock()
	}

	return removed
}

// RunExpiryCycle sweeps expired keys every interval until ctx is done
func (e *Engine) RunExpiryCycle(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := e.DeleteExpired(); n > 0 {
				e.log.Debug("Expired keys removed", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
