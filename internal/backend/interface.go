package backend

import (
	"context"

	"slotledger/internal/ledger"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// PingFunc probes the backend for readiness.
type PingFunc func(ctx context.Context) error

// BackendResult contains the store instance and its lifecycle hooks
type BackendResult struct {
	Store   ledger.Store
	Ping    PingFunc
	Cleanup CleanupFunc
}

// Factory creates ledger stores based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
