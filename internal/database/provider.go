package database

import (
	"context"
	"errors"
)

var (
	postgresThresholdStore func() ThresholdStore
	postgresInitialized    bool
)

// ErrNotInitialized is returned when no storage backend has been registered.
var ErrNotInitialized = errors.New("PostgreSQL backend not initialized: DATABASE_URL is required")

// RegisterPostgresBackend registers PostgreSQL repository constructors.
// This is called after postgres.Initialize to avoid import cycles.
func RegisterPostgresBackend(thresholds func() ThresholdStore) {
	postgresThresholdStore = thresholds
	postgresInitialized = thresholds != nil
}

// IsInitialized returns whether the PostgreSQL backend has been initialized.
func IsInitialized() bool {
	return postgresInitialized
}

// GetThresholdStore returns the ThresholdStore of the PostgreSQL backend
func GetThresholdStore(ctx context.Context) (ThresholdStore, error) {
	if !postgresInitialized {
		return nil, ErrNotInitialized
	}
	return postgresThresholdStore(), nil
}
