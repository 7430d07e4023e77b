// Package storage keeps the last hardware reading received for every signal.
package storage

import (
	"context"
	"fmt"
	"time"
)

// Store defines the persistence operations of the vehicle signal service.
type Store interface {
	// Put records r as the latest reading of r.Name. ReceivedAt is set when
	// zero and Count is set to the number of readings seen for the name.
	Put(ctx context.Context, r *Reading) error

	// Get returns the latest reading of name or a *NotFoundError.
	Get(ctx context.Context, name string) (*Reading, error)

	// List returns the latest reading of every signal, sorted by name.
	List(ctx context.Context) ([]*Reading, error)

	// Close releases the backend.
	Close() error
}

// Reading is the persisted state of one signal.
type Reading struct {
	Name       string    `json:"name"`
	Value      float64   `json:"value"`
	ReceivedAt time.Time `json:"received_at"`
	Count      uint64    `json:"count"`
}

// NotFoundError indicates that no reading exists for the signal.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("signal not found: %s", e.Name)
}

// StorageUnavailableError indicates that the storage backend is unavailable.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Cause
}

// SerializationError indicates a failure in data serialization/deserialization.
type SerializationError struct {
	Operation string
	Cause     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s: %v", e.Operation, e.Cause)
}

func (e *SerializationError) Unwrap() error {
	return e.Cause
}
