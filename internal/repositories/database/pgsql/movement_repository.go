package pgsql

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SscSPs/movement_intake/internal/apperrors"
	"github.com/SscSPs/movement_intake/internal/core/domain"
	portsrepo "github.com/SscSPs/movement_intake/internal/core/ports/repositories"
	"github.com/SscSPs/movement_intake/internal/models"
	"github.com/SscSPs/movement_intake/internal/utils/mapping"
)

const uniqueViolation = "23505"

type PgxMovementRepository struct {
	BaseRepository
}

// newPgxMovementRepository creates a new repository for movement data.
func newPgxMovementRepository(pool *pgxpool.Pool) portsrepo.MovementRepositoryFacade {
	return &PgxMovementRepository{BaseRepository: BaseRepository{Pool: pool}}
}

// Ensure PgxMovementRepository implements portsrepo.MovementRepositoryFacade
var _ portsrepo.MovementRepositoryFacade = (*PgxMovementRepository)(nil)

const movementColumns = `
	movement_id, insert_date, flow_date, movement_type, company_id, core_id, reason_id,
	entity_type, customer_id, supplier_id, resource_id, office_id, iban_id,
	amount, vat_type, vat_amount, vat_overridden, status_id, tag_id,
	document_number, notes, source_document_ref,
	created_at, created_by, last_updated_at, last_updated_by`

// SaveMovement inserts a new movement.
func (r *PgxMovementRepository) SaveMovement(ctx context.Context, movement domain.Movement) error {
	m := mapping.ToModelMovement(movement)
	query := `INSERT INTO movements (` + movementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26);`

	_, err := r.Pool.Exec(ctx, query,
		m.MovementID, m.InsertDate, m.FlowDate, m.MovementType, m.CompanyID, m.CoreID, m.ReasonID,
		m.EntityType, m.CustomerID, m.SupplierID, m.ResourceID, m.OfficeID, m.IbanID,
		m.Amount, m.VatType, m.VatAmount, m.VatOverridden, m.StatusID, m.TagID,
		m.DocumentNumber, m.Notes, m.SourceDocumentRef,
		m.CreatedAt, m.CreatedBy, m.LastUpdatedAt, m.LastUpdatedBy,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperrors.ErrDuplicate
		}
		return apperrors.NewAppError(500, "failed to insert movement "+m.MovementID, err)
	}
	return nil
}

// UpdateMovement overwrites a movement inside a transaction, locking the row first so a
// concurrent edit of the same movement waits for this one.
func (r *PgxMovementRepository) UpdateMovement(ctx context.Context, movement domain.Movement) error {
	m := mapping.ToModelMovement(movement)

	return r.inTx(ctx, func(tx pgx.Tx) error {
		var locked string
		err := tx.QueryRow(ctx, `SELECT movement_id FROM movements WHERE movement_id = $1 FOR UPDATE;`, m.MovementID).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.ErrNotFound
			}
			return apperrors.NewAppError(500, "failed to lock movement "+m.MovementID, err)
		}

		query := `
			UPDATE movements SET
				insert_date = $2, flow_date = $3, movement_type = $4, company_id = $5, core_id = $6, reason_id = $7,
				entity_type = $8, customer_id = $9, supplier_id = $10, resource_id = $11, office_id = $12, iban_id = $13,
				amount = $14, vat_type = $15, vat_amount = $16, vat_overridden = $17, status_id = $18, tag_id = $19,
				document_number = $20, notes = $21, source_document_ref = $22,
				last_updated_at = $23, last_updated_by = $24
			WHERE movement_id = $1;`
		_, err = tx.Exec(ctx, query,
			m.MovementID, m.InsertDate, m.FlowDate, m.MovementType, m.CompanyID, m.CoreID, m.ReasonID,
			m.EntityType, m.CustomerID, m.SupplierID, m.ResourceID, m.OfficeID, m.IbanID,
			m.Amount, m.VatType, m.VatAmount, m.VatOverridden, m.StatusID, m.TagID,
			m.DocumentNumber, m.Notes, m.SourceDocumentRef,
			m.LastUpdatedAt, m.LastUpdatedBy,
		)
		if err != nil {
			return apperrors.NewAppError(500, "failed to update movement "+m.MovementID, err)
		}
		return nil
	})
}

// FindMovementByID retrieves a movement by its ID.
func (r *PgxMovementRepository) FindMovementByID(ctx context.Context, movementID string) (*domain.Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM movements WHERE movement_id = $1;`

	var m models.Movement
	err := r.Pool.QueryRow(ctx, query, movementID).Scan(
		&m.MovementID, &m.InsertDate, &m.FlowDate, &m.MovementType, &m.CompanyID, &m.CoreID, &m.ReasonID,
		&m.EntityType, &m.CustomerID, &m.SupplierID, &m.ResourceID, &m.OfficeID, &m.IbanID,
		&m.Amount, &m.VatType, &m.VatAmount, &m.VatOverridden, &m.StatusID, &m.TagID,
		&m.DocumentNumber, &m.Notes, &m.SourceDocumentRef,
		&m.CreatedAt, &m.CreatedBy, &m.LastUpdatedAt, &m.LastUpdatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to find movement by ID "+movementID, err)
	}

	movement := mapping.ToDomainMovement(m)
	return &movement, nil
}
