package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Field names a single writable attribute of a MovementDraft.
type Field string

const (
	FieldInsertDate        Field = "insertDate"
	FieldFlowDate          Field = "flowDate"
	FieldType              Field = "type"
	FieldCompany           Field = "companyId"
	FieldCore              Field = "coreId"
	FieldReason            Field = "reasonId"
	FieldEntityType        Field = "entityType"
	FieldCustomer          Field = "customerId"
	FieldSupplier          Field = "supplierId"
	FieldResource          Field = "resourceId"
	FieldOffice            Field = "officeId"
	FieldIban              Field = "ibanId"
	FieldAmount            Field = "amount"
	FieldVatType           Field = "vatType"
	FieldVatAmount         Field = "vatAmount"
	FieldStatus            Field = "statusId"
	FieldTag               Field = "tagId"
	FieldDocumentNumber    Field = "documentNumber"
	FieldNotes             Field = "notes"
	FieldSourceDocumentRef Field = "sourceDocumentRef"
)

// AllFields lists every draft field.
var AllFields = []Field{
	FieldInsertDate, FieldFlowDate, FieldType, FieldCompany, FieldCore, FieldReason,
	FieldEntityType, FieldCustomer, FieldSupplier, FieldResource, FieldOffice, FieldIban,
	FieldAmount, FieldVatType, FieldVatAmount, FieldStatus, FieldTag, FieldDocumentNumber,
	FieldNotes, FieldSourceDocumentRef,
}

// CompanyScopedFields hold references that are only valid under the draft's company.
var CompanyScopedFields = []Field{FieldCore, FieldResource, FieldOffice, FieldIban}

// IsKnown reports whether f names a draft field.
func (f Field) IsKnown() bool {
	for _, known := range AllFields {
		if f == known {
			return true
		}
	}
	return false
}

// Origin records who produced the current value of a draft field.
type Origin string

const (
	OriginNone       Origin = ""
	OriginUser       Origin = "user"
	OriginExtraction Origin = "extraction"
	OriginLoaded     Origin = "loaded"
	OriginDerived    Origin = "derived"
)

// MovementDraft is the in-progress movement record. The zero value is an empty draft.
// Empty strings, zero dates and invalid NullDecimals mean "unset".
type MovementDraft struct {
	MovementID string `json:"movementID,omitempty"` // set when editing a persisted movement

	InsertDate        time.Time           `json:"insertDate"`
	FlowDate          time.Time           `json:"flowDate"`
	Type              MovementType        `json:"type"`
	CompanyID         string              `json:"companyId"`
	CoreID            string              `json:"coreId"`
	ReasonID          string              `json:"reasonId"`
	EntityType        EntityType          `json:"entityType"`
	CustomerID        string              `json:"customerId"`
	SupplierID        string              `json:"supplierId"`
	ResourceID        string              `json:"resourceId"`
	OfficeID          string              `json:"officeId"`
	IbanID            string              `json:"ibanId"`
	Amount            decimal.NullDecimal `json:"amount"`
	VatType           VatCode             `json:"vatType"`
	VatAmount         decimal.NullDecimal `json:"vatAmount"`
	VatOverridden     bool                `json:"vatOverridden"`
	StatusID          string              `json:"statusId"`
	TagID             string              `json:"tagId"`
	DocumentNumber    string              `json:"documentNumber"`
	Notes             string              `json:"notes"`
	SourceDocumentRef string              `json:"sourceDocumentRef"`

	origins map[Field]Origin
}

// NewMovementDraft returns an empty draft.
func NewMovementDraft() *MovementDraft {
	return &MovementDraft{origins: make(map[Field]Origin)}
}

// Origin returns who wrote the current value of f.
func (d *MovementDraft) Origin(f Field) Origin {
	if d.IsEmpty(f) {
		return OriginNone
	}
	return d.origins[f]
}

// SetOrigin records the provenance of f's current value.
func (d *MovementDraft) SetOrigin(f Field, o Origin) {
	if d.origins == nil {
		d.origins = make(map[Field]Origin)
	}
	if o == OriginNone {
		delete(d.origins, f)
		return
	}
	d.origins[f] = o
}

// Origins returns a copy of the provenance of every non-empty field.
func (d *MovementDraft) Origins() map[Field]Origin {
	out := make(map[Field]Origin, len(d.origins))
	for f, o := range d.origins {
		if !d.IsEmpty(f) {
			out[f] = o
		}
	}
	return out
}

// Clone returns a deep copy of the draft.
func (d *MovementDraft) Clone() *MovementDraft {
	c := *d
	c.origins = make(map[Field]Origin, len(d.origins))
	for f, o := range d.origins {
		c.origins[f] = o
	}
	return &c
}

// refField returns a pointer to the string backing a reference or text field.
func (d *MovementDraft) refField(f Field) *string {
	switch f {
	case FieldCompany:
		return &d.CompanyID
	case FieldCore:
		return &d.CoreID
	case FieldReason:
		return &d.ReasonID
	case FieldCustomer:
		return &d.CustomerID
	case FieldSupplier:
		return &d.SupplierID
	case FieldResource:
		return &d.ResourceID
	case FieldOffice:
		return &d.OfficeID
	case FieldIban:
		return &d.IbanID
	case FieldStatus:
		return &d.StatusID
	case FieldTag:
		return &d.TagID
	case FieldDocumentNumber:
		return &d.DocumentNumber
	case FieldNotes:
		return &d.Notes
	case FieldSourceDocumentRef:
		return &d.SourceDocumentRef
	}
	return nil
}

// IsEmpty reports whether f is at its unset value.
func (d *MovementDraft) IsEmpty(f Field) bool {
	switch f {
	case FieldInsertDate:
		return d.InsertDate.IsZero()
	case FieldFlowDate:
		return d.FlowDate.IsZero()
	case FieldType:
		return d.Type == ""
	case FieldEntityType:
		return d.EntityType == EntityUnset
	case FieldAmount:
		return !d.Amount.Valid
	case FieldVatType:
		return d.VatType == ""
	case FieldVatAmount:
		return !d.VatAmount.Valid
	}
	if p := d.refField(f); p != nil {
		return *p == ""
	}
	return true
}

// Clear resets f to its unset value and forgets its provenance. Clearing is idempotent.
func (d *MovementDraft) Clear(f Field) {
	switch f {
	case FieldInsertDate:
		d.InsertDate = time.Time{}
	case FieldFlowDate:
		d.FlowDate = time.Time{}
	case FieldType:
		d.Type = ""
	case FieldEntityType:
		d.EntityType = EntityUnset
	case FieldAmount:
		d.Amount = decimal.NullDecimal{}
	case FieldVatType:
		d.VatType = ""
	case FieldVatAmount:
		d.VatAmount = decimal.NullDecimal{}
		d.VatOverridden = false
	default:
		if p := d.refField(f); p != nil {
			*p = ""
		}
	}
	d.SetOrigin(f, OriginNone)
}

// Get renders f in its canonical string form. Unset fields render as "".
func (d *MovementDraft) Get(f Field) string {
	switch f {
	case FieldInsertDate:
		return formatDate(d.InsertDate)
	case FieldFlowDate:
		return formatDate(d.FlowDate)
	case FieldType:
		return string(d.Type)
	case FieldEntityType:
		return string(d.EntityType)
	case FieldAmount:
		return formatDecimal(d.Amount)
	case FieldVatType:
		return string(d.VatType)
	case FieldVatAmount:
		return formatDecimal(d.VatAmount)
	}
	if p := d.refField(f); p != nil {
		return *p
	}
	return ""
}

// Set parses raw and writes it into f. An empty raw clears the field.
// It reports whether the stored value actually changed; provenance is left to the caller.
func (d *MovementDraft) Set(f Field, raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if d.IsEmpty(f) {
			return false, nil
		}
		d.Clear(f)
		return true, nil
	}

	switch f {
	case FieldInsertDate, FieldFlowDate:
		t, err := time.Parse(DateLayout, raw)
		if err != nil {
			return false, fmt.Errorf("field %s: invalid date %q: %w", f, raw, err)
		}
		target := &d.InsertDate
		if f == FieldFlowDate {
			target = &d.FlowDate
		}
		if target.Equal(t) {
			return false, nil
		}
		*target = t
		return true, nil
	case FieldType:
		t := MovementType(strings.ToLower(raw))
		if !t.IsValid() {
			return false, fmt.Errorf("field %s: unknown movement type %q", f, raw)
		}
		if d.Type == t {
			return false, nil
		}
		d.Type = t
		return true, nil
	case FieldEntityType:
		e := EntityType(strings.ToLower(raw))
		if !e.IsValid() {
			return false, fmt.Errorf("field %s: unknown entity type %q", f, raw)
		}
		if d.EntityType == e {
			return false, nil
		}
		d.EntityType = e
		return true, nil
	case FieldAmount, FieldVatAmount:
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return false, fmt.Errorf("field %s: invalid decimal %q: %w", f, raw, err)
		}
		return d.SetDecimal(f, v), nil
	case FieldVatType:
		code := NormalizeVatCode(VatCode(strings.ToLower(raw)))
		if d.VatType == code {
			return false, nil
		}
		d.VatType = code
		return true, nil
	}

	p := d.refField(f)
	if p == nil {
		return false, fmt.Errorf("unknown field %q", f)
	}
	if *p == raw {
		return false, nil
	}
	*p = raw
	return true, nil
}

// SetDecimal writes a decimal field (amount or vatAmount) and reports whether it changed.
func (d *MovementDraft) SetDecimal(f Field, v decimal.Decimal) bool {
	target := &d.Amount
	if f == FieldVatAmount {
		target = &d.VatAmount
	}
	if target.Valid && target.Decimal.Equal(v) {
		return false
	}
	*target = decimal.NullDecimal{Decimal: v, Valid: true}
	return true
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

func formatDecimal(v decimal.NullDecimal) string {
	if !v.Valid {
		return ""
	}
	return v.Decimal.StringFixed(2)
}
