package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementType tells whether a movement is money coming in or going out.
type MovementType string

const (
	Income  MovementType = "income"
	Expense MovementType = "expense"
)

// IsValid reports whether t is one of the known movement types.
func (t MovementType) IsValid() bool {
	return t == Income || t == Expense
}

// EntityType identifies which kind of counterparty a movement is linked to.
// The zero value means no counterparty has been chosen yet.
type EntityType string

const (
	EntityUnset    EntityType = ""
	EntityCustomer EntityType = "customer"
	EntitySupplier EntityType = "supplier"
	EntityResource EntityType = "resource"
)

// IsValid reports whether e is a known entity type, unset included.
func (e EntityType) IsValid() bool {
	switch e {
	case EntityUnset, EntityCustomer, EntitySupplier, EntityResource:
		return true
	}
	return false
}

// VatCode is the closed enumeration of VAT treatments a movement can carry.
type VatCode string

const (
	Vat22     VatCode = "iva_22"
	Vat10     VatCode = "iva_10"
	Vat4      VatCode = "iva_4"
	VatArt74  VatCode = "iva_art_74"
	VatExempt VatCode = "esente"
)

// KnownVatCodes lists the recognised VAT codes in display order.
var KnownVatCodes = []VatCode{Vat22, Vat10, Vat4, VatArt74, VatExempt}

// NormalizeVatCode maps any unknown code to VatExempt. The empty code stays empty.
func NormalizeVatCode(code VatCode) VatCode {
	if code == "" {
		return ""
	}
	for _, known := range KnownVatCodes {
		if code == known {
			return code
		}
	}
	return VatExempt
}

// Movement is a committed financial movement as handed to the persistence collaborator.
type Movement struct {
	MovementID        string          `json:"movementID" validate:"required"`
	InsertDate        time.Time       `json:"insertDate" validate:"required"`
	FlowDate          time.Time       `json:"flowDate" validate:"required,gtefield=InsertDate"`
	Type              MovementType    `json:"type" validate:"required,oneof=income expense"`
	CompanyID         string          `json:"companyID" validate:"required"`
	CoreID            string          `json:"coreID" validate:"required"`
	ReasonID          string          `json:"reasonID" validate:"required"`
	EntityType        EntityType      `json:"entityType" validate:"omitempty,oneof=customer supplier resource"`
	CustomerID        string          `json:"customerID" validate:"excluded_with=SupplierID"`
	SupplierID        string          `json:"supplierID" validate:"excluded_with=CustomerID"`
	ResourceID        string          `json:"resourceID"`
	OfficeID          string          `json:"officeID"`
	IbanID            string          `json:"ibanID"`
	Amount            decimal.Decimal `json:"amount"`
	VatType           VatCode         `json:"vatType" validate:"omitempty,oneof=iva_22 iva_10 iva_4 iva_art_74 esente"`
	VatAmount         decimal.Decimal `json:"vatAmount"`
	VatOverridden     bool            `json:"vatOverridden"`
	StatusID          string          `json:"statusID" validate:"required"`
	TagID             string          `json:"tagID"`
	DocumentNumber    string          `json:"documentNumber" validate:"max=100"`
	Notes             string          `json:"notes" validate:"max=2000"`
	SourceDocumentRef string          `json:"sourceDocumentRef"`
	AuditFields
}
