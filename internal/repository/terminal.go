package repository

import (
	"context"
	"time"

	"todaride/internal/domain"
)

// TerminalRepository defines the persistence operations for terminals.
type TerminalRepository interface {
	// Create persists a new terminal.
	Create(ctx context.Context, terminal *domain.Terminal) error

	// GetByID retrieves a terminal by ID.
	GetByID(ctx context.Context, id string) (*domain.Terminal, error)

	// GetByIDForUpdate retrieves a terminal by ID and locks it until the
	// transaction ends. Queue operations take this lock first.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Terminal, error)

	// AdjustQueued adds delta to the queued counter, never going below zero.
	AdjustQueued(ctx context.Context, id string, delta int, now time.Time) (*domain.Terminal, error)
}
