package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/SscSPs/movement_intake/internal/apperrors"
	"github.com/SscSPs/movement_intake/internal/core/domain"
	"github.com/SscSPs/movement_intake/internal/utils/accounting"
)

var movementValidate = newMovementValidator()

func newMovementValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// movementFromDraft turns a draft into the movement handed to persistence.
// A missing vatAmount is derived from amount and vatType.
func movementFromDraft(d *domain.MovementDraft) domain.Movement {
	m := domain.Movement{
		MovementID:        d.MovementID,
		InsertDate:        d.InsertDate,
		FlowDate:          d.FlowDate,
		Type:              d.Type,
		CompanyID:         d.CompanyID,
		CoreID:            d.CoreID,
		ReasonID:          d.ReasonID,
		EntityType:        d.EntityType,
		CustomerID:        d.CustomerID,
		SupplierID:        d.SupplierID,
		ResourceID:        d.ResourceID,
		OfficeID:          d.OfficeID,
		IbanID:            d.IbanID,
		Amount:            d.Amount.Decimal,
		VatType:           domain.NormalizeVatCode(d.VatType),
		VatOverridden:     d.VatOverridden,
		StatusID:          d.StatusID,
		TagID:             d.TagID,
		DocumentNumber:    d.DocumentNumber,
		Notes:             d.Notes,
		SourceDocumentRef: d.SourceDocumentRef,
	}
	if d.VatAmount.Valid {
		m.VatAmount = d.VatAmount.Decimal
	} else {
		m.VatAmount = accounting.ComputeVAT(m.Amount, m.VatType).VAT
		m.VatOverridden = false
	}
	return m
}

// validateMovement checks a movement about to be committed against the draft invariants and
// the registry snapshot. All problems are reported at once, wrapped in apperrors.ErrValidation.
func validateMovement(m domain.Movement, amountSet bool, reg *domain.Registry) error {
	var problems []string

	if err := movementValidate.Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
		}
		for _, fe := range verrs {
			problems = append(problems, describeFieldError(fe))
		}
	}

	if !amountSet || !m.Amount.GreaterThan(decimal.Zero) {
		problems = append(problems, "amount must be greater than zero")
	}

	switch {
	case m.Type == domain.Income && m.SupplierID != "":
		problems = append(problems, "an income movement cannot reference a supplier")
	case m.Type == domain.Expense && m.CustomerID != "":
		problems = append(problems, "an expense movement cannot reference a customer")
	}

	refs := map[domain.EntityType]string{
		domain.EntityCustomer: m.CustomerID,
		domain.EntitySupplier: m.SupplierID,
		domain.EntityResource: m.ResourceID,
	}
	for kind, id := range refs {
		if kind == m.EntityType {
			if id == "" {
				problems = append(problems, fmt.Sprintf("entityType is %s but no %s is selected", kind, kind))
			}
			continue
		}
		if id != "" {
			problems = append(problems, fmt.Sprintf("a %s is selected but entityType is %q", kind, m.EntityType))
		}
	}

	if !m.VatOverridden && m.VatAmount.Sub(accounting.ComputeVAT(m.Amount, m.VatType).VAT).Abs().GreaterThan(decimal.Zero) {
		problems = append(problems, "vatAmount differs from the computed VAT and is not marked as overridden")
	}

	if reg != nil {
		problems = append(problems, checkReferences(m, reg)...)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

func checkReferences(m domain.Movement, reg *domain.Registry) []string {
	var problems []string
	refs := []struct {
		field domain.Field
		id    string
	}{
		{domain.FieldCompany, m.CompanyID},
		{domain.FieldCore, m.CoreID},
		{domain.FieldReason, m.ReasonID},
		{domain.FieldCustomer, m.CustomerID},
		{domain.FieldSupplier, m.SupplierID},
		{domain.FieldResource, m.ResourceID},
		{domain.FieldOffice, m.OfficeID},
		{domain.FieldIban, m.IbanID},
		{domain.FieldStatus, m.StatusID},
		{domain.FieldTag, m.TagID},
	}
	for _, ref := range refs {
		if ref.id == "" {
			continue
		}
		if !reg.Knows(ref.field, ref.id) {
			problems = append(problems, fmt.Sprintf("%s %q does not exist", ref.field, ref.id))
			continue
		}
		if owner, ok := reg.OwnerOf(ref.field, ref.id); ok && owner != m.CompanyID {
			problems = append(problems, fmt.Sprintf("%s %q belongs to another company", ref.field, ref.id))
		}
	}
	return problems
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gtefield":
		return fmt.Sprintf("%s must not be before insertDate", fe.Field())
	case "excluded_with":
		return "customerId and supplierId cannot both be set"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}
