package mapping

import (
	"github.com/SscSPs/movement_intake/internal/core/domain"
	"github.com/SscSPs/movement_intake/internal/models"
)

// ToModelMovement converts a domain Movement to a model Movement
func ToModelMovement(d domain.Movement) models.Movement {
	return models.Movement{
		MovementID:        d.MovementID,
		InsertDate:        d.InsertDate,
		FlowDate:          d.FlowDate,
		MovementType:      string(d.Type),
		CompanyID:         d.CompanyID,
		CoreID:            d.CoreID,
		ReasonID:          d.ReasonID,
		EntityType:        nullable(string(d.EntityType)),
		CustomerID:        nullable(d.CustomerID),
		SupplierID:        nullable(d.SupplierID),
		ResourceID:        nullable(d.ResourceID),
		OfficeID:          nullable(d.OfficeID),
		IbanID:            nullable(d.IbanID),
		Amount:            d.Amount,
		VatType:           nullable(string(d.VatType)),
		VatAmount:         d.VatAmount,
		VatOverridden:     d.VatOverridden,
		StatusID:          d.StatusID,
		TagID:             nullable(d.TagID),
		DocumentNumber:    nullable(d.DocumentNumber),
		Notes:             nullable(d.Notes),
		SourceDocumentRef: nullable(d.SourceDocumentRef),
		AuditFields:       models.AuditFields(d.AuditFields),
	}
}

// ToDomainMovement converts a model Movement to a domain Movement
func ToDomainMovement(m models.Movement) domain.Movement {
	return domain.Movement{
		MovementID:        m.MovementID,
		InsertDate:        m.InsertDate,
		FlowDate:          m.FlowDate,
		Type:              domain.MovementType(m.MovementType),
		CompanyID:         m.CompanyID,
		CoreID:            m.CoreID,
		ReasonID:          m.ReasonID,
		EntityType:        domain.EntityType(deref(m.EntityType)),
		CustomerID:        deref(m.CustomerID),
		SupplierID:        deref(m.SupplierID),
		ResourceID:        deref(m.ResourceID),
		OfficeID:          deref(m.OfficeID),
		IbanID:            deref(m.IbanID),
		Amount:            m.Amount,
		VatType:           domain.VatCode(deref(m.VatType)),
		VatAmount:         m.VatAmount,
		VatOverridden:     m.VatOverridden,
		StatusID:          m.StatusID,
		TagID:             deref(m.TagID),
		DocumentNumber:    deref(m.DocumentNumber),
		Notes:             deref(m.Notes),
		SourceDocumentRef: deref(m.SourceDocumentRef),
		AuditFields:       domain.AuditFields(m.AuditFields),
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
