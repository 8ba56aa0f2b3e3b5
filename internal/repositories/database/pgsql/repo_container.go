package pgsql

import (
	"github.com/jackc/pgx/v5/pgxpool"

	portsrepo "github.com/SscSPs/movement_intake/internal/core/ports/repositories"
)

func NewRepositoryProvider(dbPool *pgxpool.Pool) portsrepo.RepositoryProvider {
	return portsrepo.RepositoryProvider{
		RegistryRepo: newPgxRegistryRepository(dbPool),
		MovementRepo: newPgxMovementRepository(dbPool),
	}
}
