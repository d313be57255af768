package storage

import (
	"errors"
	"time"
)

var (
	// ErrKeyNotFound is returned when the key does not exist or has expired
	ErrKeyNotFound = errors.New("key not found")
	// ErrNoExpiry is returned by TTL when the key exists but never expires
	ErrNoExpiry = errors.New("key has no associated expiry")
)

// Storage is an interface that defines the storage operations
type Storage interface {
	// Set sets a key-value pair in the storage, dropping any expiry
	Set(key string, value []byte)
	// SetWithOptions performs a conditional and/or expiring write
	SetWithOptions(key string, value []byte, opts SetOptions) SetResult
	// Get gets a value from the storage
	Get(key string) ([]byte, bool)
	// Delete deletes keys from the storage and returns how many were removed
	Delete(keys ...string) int
	// Exists returns how many of the given keys are present
	Exists(keys ...string) int
	// TTL returns the time left before the key expires
	TTL(key string) (time.Duration, error)
	// Len returns the number of live keys
	Len() int
	// Clear removes all keys from the storage
	Clear()
}

// Condition restricts when a SetWithOptions call is applied
type Condition uint8

const (
	// Always writes regardless of the key's presence
	Always Condition = iota
	// IfNotExists writes only when the key is absent (NX)
	IfNotExists
	// IfExists writes only when the key is present (XX)
	IfExists
)

// SetOptions controls a SetWithOptions call.
//
// At most one of TTL, ExpireAt and KeepTTL is expected to be set. A zero TTL
// and zero ExpireAt with KeepTTL unset stores a persistent key.
type SetOptions struct {
	Condition Condition
	TTL       time.Duration
	ExpireAt  time.Time
	KeepTTL   bool
	ReturnOld bool
}

// SetResult reports the outcome of a SetWithOptions call
type SetResult struct {
	// Applied is false when the condition prevented the write
	Applied bool
	// Old holds the previous value when ReturnOld was requested and one existed
	Old    []byte
	HadOld bool
}

// Clock is the time source used for expiry decisions
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
