package dto

import (
	"time"

	"github.com/SscSPs/movement_intake/internal/core/domain"
)

// MovementResponse defines the data returned for a committed movement.
type MovementResponse struct {
	MovementID        string              `json:"movementID"`
	InsertDate        string              `json:"insertDate"`
	FlowDate          string              `json:"flowDate"`
	Type              domain.MovementType `json:"type"`
	CompanyID         string              `json:"companyID"`
	CoreID            string              `json:"coreID"`
	ReasonID          string              `json:"reasonID"`
	EntityType        domain.EntityType   `json:"entityType,omitempty"`
	CustomerID        string              `json:"customerID,omitempty"`
	SupplierID        string              `json:"supplierID,omitempty"`
	ResourceID        string              `json:"resourceID,omitempty"`
	OfficeID          string              `json:"officeID,omitempty"`
	IbanID            string              `json:"ibanID,omitempty"`
	Amount            string              `json:"amount"`
	VatType           domain.VatCode      `json:"vatType,omitempty"`
	VatAmount         string              `json:"vatAmount"`
	VatOverridden     bool                `json:"vatOverridden"`
	StatusID          string              `json:"statusID"`
	TagID             string              `json:"tagID,omitempty"`
	DocumentNumber    string              `json:"documentNumber,omitempty"`
	Notes             string              `json:"notes,omitempty"`
	SourceDocumentRef string              `json:"sourceDocumentRef,omitempty"`
	CreatedAt         time.Time           `json:"createdAt"`
	CreatedBy         string              `json:"createdBy"`
	LastUpdatedAt     time.Time           `json:"lastUpdatedAt"`
	LastUpdatedBy     string              `json:"lastUpdatedBy"`
}

// ToMovementResponse converts a domain.Movement to MovementResponse DTO
func ToMovementResponse(m *domain.Movement) MovementResponse {
	return MovementResponse{
		MovementID:        m.MovementID,
		InsertDate:        m.InsertDate.Format(domain.DateLayout),
		FlowDate:          m.FlowDate.Format(domain.DateLayout),
		Type:              m.Type,
		CompanyID:         m.CompanyID,
		CoreID:            m.CoreID,
		ReasonID:          m.ReasonID,
		EntityType:        m.EntityType,
		CustomerID:        m.CustomerID,
		SupplierID:        m.SupplierID,
		ResourceID:        m.ResourceID,
		OfficeID:          m.OfficeID,
		IbanID:            m.IbanID,
		Amount:            m.Amount.StringFixed(2),
		VatType:           m.VatType,
		VatAmount:         m.VatAmount.StringFixed(2),
		VatOverridden:     m.VatOverridden,
		StatusID:          m.StatusID,
		TagID:             m.TagID,
		DocumentNumber:    m.DocumentNumber,
		Notes:             m.Notes,
		SourceDocumentRef: m.SourceDocumentRef,
		CreatedAt:         m.CreatedAt,
		CreatedBy:         m.CreatedBy,
		LastUpdatedAt:     m.LastUpdatedAt,
		LastUpdatedBy:     m.LastUpdatedBy,
	}
}
