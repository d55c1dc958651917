// Package store provides the key/value persistence contract and driver abstractions.
//
// Every higher-level component funnels through whole-value reads and writes on this
// interface. There are no multi-key transactions: two writers performing
// read-modify-write on the same key from different processes resolve as
// last-write-wins. Within one process, KeyLocker serializes writers per key.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Common errors for store operations.
var (
	// ErrStorage matches every *OpError via errors.Is.
	ErrStorage = errors.New("storage error")
	ErrClosed  = errors.New("store closed")
)

// Store is the scoped key/value contract used by the social core.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Keys lists every key currently stored.
	Keys(ctx context.Context) ([]string, error)
}

// Driver is a Store backed by a concrete persistence medium.
type Driver interface {
	Store

	// Init prepares the backend (open files, create tables, ping servers).
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (memory, json, sqlite, valkey, badger).
	Name() string
}

// OpError describes a failed backend operation.
type OpError struct {
	Driver string
	Op     string
	Key    string
	Err    error
}

func (e *OpError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %s: %v", e.Driver, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s %q: %v", e.Driver, e.Op, e.Key, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Is makes every OpError match ErrStorage.
func (e *OpError) Is(target error) bool { return target == ErrStorage }

// Fail builds an *OpError; a nil err yields nil.
func Fail(driver, op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Driver: driver, Op: op, Key: key, Err: err}
}
