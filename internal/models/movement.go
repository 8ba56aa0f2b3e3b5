package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Movement is the movements table row. Optional references are NULL in the database.
type Movement struct {
	MovementID        string          `json:"movementID"`
	InsertDate        time.Time       `json:"insertDate"`
	FlowDate          time.Time       `json:"flowDate"`
	MovementType      string          `json:"movementType"`
	CompanyID         string          `json:"companyID"`
	CoreID            string          `json:"coreID"`
	ReasonID          string          `json:"reasonID"`
	EntityType        *string         `json:"entityType"`
	CustomerID        *string         `json:"customerID"`
	SupplierID        *string         `json:"supplierID"`
	ResourceID        *string         `json:"resourceID"`
	OfficeID          *string         `json:"officeID"`
	IbanID            *string         `json:"ibanID"`
	Amount            decimal.Decimal `json:"amount"`
	VatType           *string         `json:"vatType"`
	VatAmount         decimal.Decimal `json:"vatAmount"`
	VatOverridden     bool            `json:"vatOverridden"`
	StatusID          string          `json:"statusID"`
	TagID             *string         `json:"tagID"`
	DocumentNumber    *string         `json:"documentNumber"`
	Notes             *string         `json:"notes"`
	SourceDocumentRef *string         `json:"sourceDocumentRef"`
	AuditFields
}
