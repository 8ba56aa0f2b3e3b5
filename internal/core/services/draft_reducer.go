package services

import (
	"fmt"
	"strings"

	"github.com/SscSPs/movement_intake/internal/apperrors"
	"github.com/SscSPs/movement_intake/internal/core/domain"
	"github.com/SscSPs/movement_intake/internal/utils/accounting"
	"github.com/shopspring/decimal"
)

// DraftReducer applies writes to a MovementDraft. Every write goes through the dependency
// graph, and writes to amount or vatType re-derive the VAT amount.
type DraftReducer struct {
	graph *DependencyGraph
}

// NewDraftReducer creates a reducer over the given dependency graph.
func NewDraftReducer(graph *DependencyGraph) *DraftReducer {
	return &DraftReducer{graph: graph}
}

// Apply performs a user edit. Edits that name an unknown reference, a reference owned by
// another company, or a counterparty the movement type forbids are rejected before any
// mutation and wrap apperrors.ErrValidation.
func (r *DraftReducer) Apply(d *domain.MovementDraft, edit domain.FieldEdit, reg *domain.Registry) error {
	if !edit.Field.IsKnown() {
		return fmt.Errorf("%w: unknown field %q", apperrors.ErrValidation, edit.Field)
	}
	value := strings.TrimSpace(edit.Value)
	if edit.Field == domain.FieldSourceDocumentRef && value != "" {
		return fmt.Errorf("%w: %s is set by document ingestion only", apperrors.ErrValidation, edit.Field)
	}
	if value != "" {
		if err := checkEdit(d, edit.Field, value, reg); err != nil {
			return err
		}
	}
	return r.Write(d, edit.Field, value, domain.OriginUser, reg)
}

// Write stores raw into f with the given provenance and runs the post-mutation passes.
func (r *DraftReducer) Write(d *domain.MovementDraft, f domain.Field, raw string, origin domain.Origin, reg *domain.Registry) error {
	if raw != "" {
		// Picking a counterparty selects its branch first, which resets the other branches.
		if kind, ok := entityKindOf(f); ok && d.EntityType != kind {
			if err := r.Write(d, domain.FieldEntityType, string(kind), origin, reg); err != nil {
				return err
			}
		}
	}

	changed, err := d.Set(f, raw)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	if raw != "" {
		d.SetOrigin(f, origin)
	}

	if f == domain.FieldVatAmount {
		if raw == "" {
			RecomputeVAT(d, true)
		} else {
			d.VatOverridden = true
		}
	}
	if !changed {
		return nil
	}

	r.graph.Propagate(d, f, reg)
	if f == domain.FieldAmount || f == domain.FieldVatType {
		RecomputeVAT(d, true)
	}
	return nil
}

// RecomputeVAT derives vatAmount from amount and vatType. A user override survives unless
// force is set, which is the case whenever amount or vatType itself changed.
func RecomputeVAT(d *domain.MovementDraft, force bool) {
	if d.VatOverridden && !force {
		return
	}
	if !d.Amount.Valid {
		d.Clear(domain.FieldVatAmount)
		return
	}
	breakdown := accounting.ComputeVAT(d.Amount.Decimal, d.VatType)
	d.VatAmount = decimal.NullDecimal{Decimal: breakdown.VAT, Valid: true}
	d.VatOverridden = false
	d.SetOrigin(domain.FieldVatAmount, domain.OriginDerived)
}

// DraftFromMovement pre-populates a draft from a persisted movement for edit mode.
func DraftFromMovement(m domain.Movement) *domain.MovementDraft {
	d := domain.NewMovementDraft()
	d.MovementID = m.MovementID
	d.InsertDate = m.InsertDate
	d.FlowDate = m.FlowDate
	d.Type = m.Type
	d.CompanyID = m.CompanyID
	d.CoreID = m.CoreID
	d.ReasonID = m.ReasonID
	d.EntityType = m.EntityType
	d.CustomerID = m.CustomerID
	d.SupplierID = m.SupplierID
	d.ResourceID = m.ResourceID
	d.OfficeID = m.OfficeID
	d.IbanID = m.IbanID
	d.Amount = decimal.NullDecimal{Decimal: m.Amount, Valid: true}
	d.VatType = domain.NormalizeVatCode(m.VatType)
	d.StatusID = m.StatusID
	d.TagID = m.TagID
	d.DocumentNumber = m.DocumentNumber
	d.Notes = m.Notes
	d.SourceDocumentRef = m.SourceDocumentRef

	for _, f := range domain.AllFields {
		d.SetOrigin(f, domain.OriginLoaded)
	}

	derived := accounting.ComputeVAT(m.Amount, d.VatType).VAT
	d.VatAmount = decimal.NullDecimal{Decimal: m.VatAmount, Valid: true}
	d.VatOverridden = m.VatOverridden || !m.VatAmount.Equal(derived)
	if !d.VatOverridden {
		d.SetOrigin(domain.FieldVatAmount, domain.OriginDerived)
	}
	return d
}

func entityKindOf(f domain.Field) (domain.EntityType, bool) {
	switch f {
	case domain.FieldCustomer:
		return domain.EntityCustomer, true
	case domain.FieldSupplier:
		return domain.EntitySupplier, true
	case domain.FieldResource:
		return domain.EntityResource, true
	}
	return domain.EntityUnset, false
}

func checkEdit(d *domain.MovementDraft, f domain.Field, value string, reg *domain.Registry) error {
	if reg.Indexes(f) && !reg.Knows(f, value) {
		return fmt.Errorf("%w: unknown %s %q", apperrors.ErrValidation, f, value)
	}
	if owner, ok := reg.OwnerOf(f, value); ok && owner != d.CompanyID {
		return fmt.Errorf("%w: %s %q does not belong to company %q", apperrors.ErrValidation, f, value, d.CompanyID)
	}

	kind, isEntity := entityKindOf(f)
	if f == domain.FieldEntityType {
		kind, isEntity = domain.EntityType(strings.ToLower(value)), true
	}
	if !isEntity {
		return nil
	}
	if (kind == domain.EntityCustomer && d.Type == domain.Expense) ||
		(kind == domain.EntitySupplier && d.Type == domain.Income) {
		return fmt.Errorf("%w: a %s cannot be linked to an %s movement", apperrors.ErrValidation, kind, d.Type)
	}
	return nil
}
