package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func setupTest(_ *testing.T) (*Engine, *fakeClock) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	clock := newFakeClock()

	return NewEngine(logger, WithClock(clock)), clock
}

func TestEngine(t *testing.T) {
	t.Run("NewEngine", func(t *testing.T) {
		engine, _ := setupTest(t)
		assert.NotNil(t, engine)
		assert.Len(t, engine.partitions, DefaultShards)
		assert.Equal(t, 0, engine.Len())
	})

	t.Run("NewEngine with shards", func(t *testing.T) {
		engine := NewEngine(slog.Default(), WithShards(4))
		assert.Len(t, engine.partitions, 4)

		engine = NewEngine(slog.Default(), WithShards(0))
		assert.Len(t, engine.partitions, DefaultShards)
	})

	t.Run("Set and Get operations", func(t *testing.T) {
		engine, _ := setupTest(t)

		engine.Set("key1", []byte("value1"))

		value, exists := engine.Get("key1")
		assert.True(t, exists)
		assert.Equal(t, []byte("value1"), value)

		// Тест получения несуществующего ключа
		value, exists = engine.Get("nonexistent")
		assert.False(t, exists)
		assert.Nil(t, value)
	})

	t.Run("Set overwrites", func(t *testing.T) {
		engine, _ := setupTest(t)

		engine.Set("key1", []byte("a"))
		engine.Set("key1", []byte("b"))

		value, _ := engine.Get("key1")
		assert.Equal(t, []byte("b"), value)
		assert.Equal(t, 1, engine.Len())
	})

	t.Run("Set copies the value", func(t *testing.T) {
		engine, _ := setupTest(t)

		buf := []byte("abc")
		engine.Set("key1", buf)
		buf[0] = 'x'

		value, _ := engine.Get("key1")
		assert.Equal(t, []byte("abc"), value)
	})

	t.Run("Binary values round trip", func(t *testing.T) {
		engine, _ := setupTest(t)

		raw := []byte{0, '\r', '\n', 0xff, ' '}
		engine.Set("bin", raw)

		value, ok := engine.Get("bin")
		require.True(t, ok)
		assert.Equal(t, raw, value)
	})

	t.Run("Delete operation", func(t *testing.T) {
		engine, _ := setupTest(t)

		engine.Set("key1", []byte("value1"))

		assert.Equal(t, 1, engine.Delete("key1"))

		// Проверка что значение удалено
		value, exists := engine.Get("key1")
		assert.False(t, exists)
		assert.Nil(t, value)

		// Repeating the delete is a no-op
		assert.Equal(t, 0, engine.Delete("key1"))
	})

	t.Run("Delete several keys", func(t *testing.T) {
		engine, _ := setupTest(t)

		engine.Set("a", []byte("1"))
		engine.Set("b", []byte("2"))

		assert.Equal(t, 2, engine.Delete("a", "b", "c"))
		assert.Equal(t, 0, engine.Len())
	})

	t.Run("Exists", func(t *testing.T) {
		engine, _ := setupTest(t)

		engine.Set("a", []byte("1"))

		assert.Equal(t, 1, engine.Exists("a"))
		assert.Equal(t, 0, engine.Exists("b"))
		assert.Equal(t, 2, engine.Exists("a", "a", "b"))
	})

	t.Run("Clear", func(t *testing.T) {
		engine, _ := setupTest(t)

		for i := 0; i < 50; i++ {
			engine.Set(fmt.Sprintf("key%d", i), []byte("v"))
		}
		assert.Equal(t, 50, engine.Len())

		engine.Clear()
		assert.Equal(t, 0, engine.Len())
	})

	t.Run("Concurrent operations", func(t *testing.T) {
		engine, _ := setupTest(t)

		done := make(chan bool)
		const iterations = 100

		go func() {
			for i := 0; i < iterations; i++ {
				engine.Set("key", []byte("value"))
				engine.Get("key")
			}
			done <- true
		}()

		go func() {
			for i := 0; i < iterations; i++ {
				engine.Get("key")
				engine.Delete("key")
			}
			done <- true
		}()

		<-done
		<-done
	})

	t.Run("Concurrent writers on distinct keys", func(t *testing.T) {
		engine, _ := setupTest(t)

		const writers = 8
		const perWriter = 200

		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					engine.Set(fmt.Sprintf("w%d-k%d", w, i), []byte(fmt.Sprintf("w%d-v%d", w, i)))
				}
			}(w)
		}
		wg.Wait()

		require.Equal(t, writers*perWriter, engine.Len())
		for w := 0; w < writers; w++ {
			for i := 0; i < perWriter; i++ {
				value, ok := engine.Get(fmt.Sprintf("w%d-k%d", w, i))
				require.True(t, ok)
				require.Equal(t, fmt.Sprintf("w%d-v%d", w, i), string(value))
			}
		}
	})
}

func TestEngineSetWithOptions(t *testing.T) {
	t.Run("NX only writes absent keys", func(t *testing.T) {
		engine, _ := setupTest(t)

		res := engine.SetWithOptions("k", []byte("1"), SetOptions{Condition: IfNotExists})
		assert.True(t, res.Applied)

		res = engine.SetWithOptions("k", []byte("2"), SetOptions{Condition: IfNotExists})
		assert.False(t, res.Applied)

		value, _ := engine.Get("k")
		assert.Equal(t, []byte("1"), value)
	})

	t.Run("XX only writes present keys", func(t *testing.T) {
		engine, _ := setupTest(t)

		res := engine.SetWithOptions("k", []byte("1"), SetOptions{Condition: IfExists})
		assert.False(t, res.Applied)
		assert.Equal(t, 0, engine.Exists("k"))

		engine.Set("k", []byte("1"))
		res = engine.SetWithOptions("k", []byte("2"), SetOptions{Condition: IfExists})
		assert.True(t, res.Applied)

		value, _ := engine.Get("k")
		assert.Equal(t, []byte("2"), value)
	})

	t.Run("ReturnOld", func(t *testing.T) {
		engine, _ := setupTest(t)

		res := engine.SetWithOptions("k", []byte("1"), SetOptions{ReturnOld: true})
		assert.True(t, res.Applied)
		assert.False(t, res.HadOld)

		res = engine.SetWithOptions("k", []byte("2"), SetOptions{ReturnOld: true})
		assert.True(t, res.HadOld)
		assert.Equal(t, []byte("1"), res.Old)

		// Old value is reported even when NX blocks the write
		res = engine.SetWithOptions("k", []byte("3"), SetOptions{ReturnOld: true, Condition: IfNotExists})
		assert.False(t, res.Applied)
		assert.Equal(t, []byte("2"), res.Old)
	})

	t.Run("TTL expires the key", func(t *testing.T) {
		engine, clock := setupTest(t)

		engine.SetWithOptions("k", []byte("v"), SetOptions{TTL: 10 * time.Second})

		ttl, err := engine.TTL("k")
		require.NoError(t, err)
		assert.Equal(t, 10*time.Second, ttl)

		clock.Advance(9 * time.Second)
		_, ok := engine.Get("k")
		assert.True(t, ok)

		clock.Advance(time.Second)
		_, ok = engine.Get("k")
		assert.False(t, ok)

		_, err = engine.TTL("k")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("ExpireAt in the past removes the key", func(t *testing.T) {
		engine, clock := setupTest(t)

		engine.Set("k", []byte("v"))
		res := engine.SetWithOptions("k", []byte("w"), SetOptions{ExpireAt: clock.Now().Add(-time.Second)})
		assert.True(t, res.Applied)
		assert.Equal(t, 0, engine.Exists("k"))
	})

	t.Run("KeepTTL keeps the deadline", func(t *testing.T) {
		engine, clock := setupTest(t)

		engine.SetWithOptions("k", []byte("v"), SetOptions{TTL: time.Minute})
		clock.Advance(20 * time.Second)
		engine.SetWithOptions("k", []byte("w"), SetOptions{KeepTTL: true})

		ttl, err := engine.TTL("k")
		require.NoError(t, err)
		assert.Equal(t, 40*time.Second, ttl)

		value, _ := engine.Get("k")
		assert.Equal(t, []byte("w"), value)
	})

	t.Run("Plain Set drops the deadline", func(t *testing.T) {
		engine, _ := setupTest(t)

		engine.SetWithOptions("k", []byte("v"), SetOptions{TTL: time.Minute})
		engine.Set("k", []byte("w"))

		_, err := engine.TTL("k")
		assert.ErrorIs(t, err, ErrNoExpiry)
	})

	t.Run("Expired key does not block NX", func(t *testing.T) {
		engine, clock := setupTest(t)

		engine.SetWithOptions("k", []byte("v"), SetOptions{TTL: time.Second})
		clock.Advance(2 * time.Second)

		res := engine.SetWithOptions("k", []byte("w"), SetOptions{Condition: IfNotExists})
		assert.True(t, res.Applied)
	})
}

func TestEngineExpiry(t *testing.T) {
	t.Run("TTL of missing and persistent keys", func(t *testing.T) {
		engine, _ := setupTest(t)

		_, err := engine.TTL("missing")
		assert.ErrorIs(t, err, ErrKeyNotFound)

		engine.Set("k", []byte("v"))
		_, err = engine.TTL("k")
		assert.ErrorIs(t, err, ErrNoExpiry)
	})

	t.Run("Delete of an expired key counts nothing", func(t *testing.T) {
		engine, clock := setupTest(t)

		engine.SetWithOptions("k", []byte("v"), SetOptions{TTL: time.Second})
		clock.Advance(time.Second)

		assert.Equal(t, 0, engine.Delete("k"))
	})

	t.Run("DeleteExpired sweeps", func(t *testing.T) {
		engine, clock := setupTest(t)

		for i := 0; i < 10; i++ {
			engine.SetWithOptions(fmt.Sprintf("t%d", i), []byte("v"), SetOptions{TTL: time.Second})
		}
		engine.Set("persistent", []byte("v"))

		assert.Equal(t, 0, engine.DeleteExpired())

		clock.Advance(time.Second)
		assert.Equal(t, 1, engine.Len())
		assert.Equal(t, 10, engine.DeleteExpired())
		assert.Equal(t, 1, engine.Len())
	})

	t.Run("RunExpiryCycle stops with context", func(t *testing.T) {
		engine := NewEngine(slog.Default())
		engine.SetWithOptions("k", []byte("v"), SetOptions{TTL: time.Millisecond})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			engine.RunExpiryCycle(ctx, 5*time.Millisecond)
			close(done)
		}()

		require.Eventually(t, func() bool {
			return storedKeys(engine) == 0
		}, time.Second, 5*time.Millisecond)

		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("expiry cycle did not stop")
		}
	})
}

// storedKeys counts map entries including expired ones that were not swept yet
func storedKeys(e *Engine) int {
	total := 0
	for _, p := range e.partitions {
		p.mu.RLock()
		total += len(p.data)
		p.mu.RUnlock()
	}
	return total
}
