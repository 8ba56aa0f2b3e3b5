package repositories

import (
	"context"

	"github.com/SscSPs/movement_intake/internal/core/domain"
)

// MovementReader defines read operations for movement data
type MovementReader interface {
	// FindMovementByID retrieves a persisted movement by its unique identifier.
	FindMovementByID(ctx context.Context, movementID string) (*domain.Movement, error)
}

// MovementWriter defines write operations for movement data
type MovementWriter interface {
	// SaveMovement persists a new movement.
	SaveMovement(ctx context.Context, movement domain.Movement) error

	// UpdateMovement overwrites an existing movement, keeping its creation audit fields.
	UpdateMovement(ctx context.Context, movement domain.Movement) error
}

// MovementRepositoryFacade combines all movement-related repository interfaces
type MovementRepositoryFacade interface {
	MovementReader
	MovementWriter
}
