package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/SscSPs/movement_intake/internal/core/domain"
	"github.com/SscSPs/movement_intake/internal/utils/accounting"
	"github.com/shopspring/decimal"
)

// MergeOutcome reports what a merge did to the draft.
type MergeOutcome struct {
	Written     []domain.Field
	Kept        []domain.Field
	Resolution  *domain.EntityResolution
	Annotations []domain.Annotation
}

// Merger folds an extraction result into a draft without overwriting user intent.
type Merger struct {
	reducer *DraftReducer
	graph   *DependencyGraph
}

// NewMerger creates a merger that writes through the given reducer and graph.
func NewMerger(reducer *DraftReducer, graph *DependencyGraph) *Merger {
	return &Merger{reducer: reducer, graph: graph}
}

// extracted is the channel-independent view of an extraction result.
type extracted struct {
	movementType     domain.MovementType
	flowDate         time.Time
	amount           decimal.NullDecimal
	documentNumber   string
	notes            string
	vatCode          domain.VatCode
	vatAmount        decimal.NullDecimal
	counterparty     *domain.EntityCandidate
	counterpartyKind domain.EntityType
	annotations      []domain.Annotation
}

// Merge applies one successful extraction to d:
//  1. direct fields are written only where the draft holds nothing the user or the persisted
//     movement put there;
//  2. the counterparty goes through the entity resolver under the same rule;
//  3. confidence and parser notes become annotations;
//  4. VAT is re-derived once, after every direct write has landed.
func (m *Merger) Merge(d *domain.MovementDraft, result domain.ExtractionResult, reg *domain.Registry) MergeOutcome {
	var x extracted
	switch r := result.(type) {
	case *domain.StructuredExtraction:
		x = normalizeStructured(r.Invoice, d, reg)
	case *domain.UnstructuredExtraction:
		x = normalizeUnstructured(r.Data, d)
	default:
		return MergeOutcome{}
	}

	var out MergeOutcome
	write := func(f domain.Field, apply func() bool) {
		if !writable(d, f) {
			out.Kept = append(out.Kept, f)
			out.Annotations = append(out.Annotations, domain.Annotation{
				Kind:    domain.AnnotationFieldKept,
				Field:   f,
				Message: fmt.Sprintf("kept the existing %s; the document suggests a different value", f),
			})
			return
		}
		if !apply() {
			return
		}
		d.SetOrigin(f, domain.OriginExtraction)
		out.Written = append(out.Written, f)
		m.graph.Propagate(d, f, reg)
	}
	set := func(f domain.Field, raw string) func() bool {
		return func() bool {
			changed, err := d.Set(f, raw)
			return err == nil && changed
		}
	}

	if x.movementType != "" && x.movementType != d.Type {
		if conflictsWithChosenCounterparty(d, x.movementType) {
			out.Kept = append(out.Kept, domain.FieldType)
			out.Annotations = append(out.Annotations, domain.Annotation{
				Kind:    domain.AnnotationFieldKept,
				Field:   domain.FieldType,
				Message: fmt.Sprintf("the document looks like an %s but a counterparty of another kind is already selected", x.movementType),
			})
		} else {
			write(domain.FieldType, set(domain.FieldType, string(x.movementType)))
		}
	}
	if !x.flowDate.IsZero() && !x.flowDate.Equal(d.FlowDate) {
		write(domain.FieldFlowDate, set(domain.FieldFlowDate, x.flowDate.Format(domain.DateLayout)))
	}
	if x.amount.Valid && !(d.Amount.Valid && d.Amount.Decimal.Equal(x.amount.Decimal)) {
		write(domain.FieldAmount, func() bool { return d.SetDecimal(domain.FieldAmount, x.amount.Decimal) })
	}
	if x.documentNumber != "" && x.documentNumber != d.DocumentNumber {
		write(domain.FieldDocumentNumber, set(domain.FieldDocumentNumber, x.documentNumber))
	}
	if x.notes != "" && x.notes != d.Notes {
		write(domain.FieldNotes, set(domain.FieldNotes, x.notes))
	}
	if x.vatCode != "" && x.vatCode != d.VatType {
		write(domain.FieldVatType, set(domain.FieldVatType, string(x.vatCode)))
	}
	vatWritten := false
	if x.vatAmount.Valid && !(d.VatAmount.Valid && d.VatAmount.Decimal.Equal(x.vatAmount.Decimal)) {
		if !vatBelongsToAmount(d, x.amount) {
			out.Kept = append(out.Kept, domain.FieldVatAmount)
			out.Annotations = append(out.Annotations, domain.Annotation{
				Kind:    domain.AnnotationFieldKept,
				Field:   domain.FieldVatAmount,
				Message: fmt.Sprintf("the document's VAT of %s refers to a different amount; VAT follows the current amount", x.vatAmount.Decimal.StringFixed(2)),
			})
		} else {
			write(domain.FieldVatAmount, func() bool {
				d.SetDecimal(domain.FieldVatAmount, x.vatAmount.Decimal)
				d.VatOverridden = true
				vatWritten = true
				return true
			})
		}
	}

	if x.counterparty != nil && !x.counterparty.IsZero() {
		res := m.resolveCounterparty(d, *x.counterparty, x.counterpartyKind, reg, &out)
		out.Resolution = &res
	}

	out.Annotations = append(out.Annotations, x.annotations...)

	if !vatWritten {
		inputsChanged := containsField(out.Written, domain.FieldAmount) || containsField(out.Written, domain.FieldVatType)
		userOverride := d.VatOverridden && isProtected(d.Origin(domain.FieldVatAmount))
		RecomputeVAT(d, inputsChanged && !userOverride)
	}
	return out
}

func (m *Merger) resolveCounterparty(d *domain.MovementDraft, candidate domain.EntityCandidate, kind domain.EntityType, reg *domain.Registry, out *MergeOutcome) domain.EntityResolution {
	var res domain.EntityResolution
	field := domain.FieldSupplier
	if kind == domain.EntityCustomer {
		field = domain.FieldCustomer
	}
	if reg != nil {
		if kind == domain.EntityCustomer {
			res = ResolveEntity(candidate, reg.Customers)
		} else {
			res = ResolveEntity(candidate, reg.Suppliers)
		}
	} else {
		res = domain.EntityResolution{MatchConfidence: domain.MatchNone}
	}

	if res.MatchConfidence != domain.MatchExact {
		out.Annotations = append(out.Annotations, domain.Annotation{
			Kind:    domain.AnnotationEntitySuggestion,
			Field:   field,
			Message: suggestionMessage(kind, candidate, res),
			Suggestion: &domain.EntitySuggestion{
				EntityType: kind,
				Candidate:  candidate,
				Resolution: res,
			},
		})
	}
	if !res.Matched() {
		return res
	}

	if entityChosenByUser(d) {
		out.Kept = append(out.Kept, field)
		return res
	}
	if (kind == domain.EntitySupplier && d.Type == domain.Income) || (kind == domain.EntityCustomer && d.Type == domain.Expense) {
		out.Kept = append(out.Kept, field)
		return res
	}
	if d.Get(field) == res.MatchedID {
		return res
	}
	if err := m.reducer.Write(d, field, res.MatchedID, domain.OriginExtraction, reg); err == nil {
		out.Written = append(out.Written, field)
	}
	return res
}

func suggestionMessage(kind domain.EntityType, c domain.EntityCandidate, res domain.EntityResolution) string {
	label := c.Name
	if c.VatNumber != "" {
		label = fmt.Sprintf("%s (VAT %s)", c.Name, c.VatNumber)
	}
	if res.MatchConfidence == domain.MatchFuzzy {
		return fmt.Sprintf("%s %s matched by name only, please confirm", kind, label)
	}
	return fmt.Sprintf("%s %s is not registered yet", kind, label)
}

// vatBelongsToAmount reports whether an extracted VAT figure may be kept for the draft's current
// amount: the amount must be the one the same document carries, or, when the document has no
// amount, one an earlier extraction wrote.
func vatBelongsToAmount(d *domain.MovementDraft, extracted decimal.NullDecimal) bool {
	if !d.Amount.Valid {
		return false
	}
	if extracted.Valid {
		return d.Amount.Decimal.Equal(extracted.Decimal)
	}
	return d.Origin(domain.FieldAmount) == domain.OriginExtraction
}

// writable reports whether extraction may write f: it is empty or holds a machine value.
func writable(d *domain.MovementDraft, f domain.Field) bool {
	return !isProtected(d.Origin(f))
}

func isProtected(o domain.Origin) bool {
	return o == domain.OriginUser || o == domain.OriginLoaded
}

func entityChosenByUser(d *domain.MovementDraft) bool {
	for _, f := range []domain.Field{domain.FieldEntityType, domain.FieldCustomer, domain.FieldSupplier, domain.FieldResource} {
		if isProtected(d.Origin(f)) {
			return true
		}
	}
	return false
}

func conflictsWithChosenCounterparty(d *domain.MovementDraft, t domain.MovementType) bool {
	if t == domain.Income {
		return isProtected(d.Origin(domain.FieldSupplier)) ||
			(d.EntityType == domain.EntitySupplier && isProtected(d.Origin(domain.FieldEntityType)))
	}
	return isProtected(d.Origin(domain.FieldCustomer)) ||
		(d.EntityType == domain.EntityCustomer && isProtected(d.Origin(domain.FieldEntityType)))
}

func containsField(fields []domain.Field, f domain.Field) bool {
	for _, x := range fields {
		if x == f {
			return true
		}
	}
	return false
}

func normalizeStructured(inv domain.ElectronicInvoice, d *domain.MovementDraft, reg *domain.Registry) extracted {
	x := extracted{
		flowDate:       inv.Invoice.Date,
		documentNumber: strings.TrimSpace(inv.Invoice.DocumentNumber),
		notes:          strings.TrimSpace(inv.Invoice.Description),
		vatAmount:      inv.Invoice.VatAmount,
	}

	switch {
	case inv.Invoice.TotalAmount.Valid:
		x.amount = inv.Invoice.TotalAmount
	case inv.Invoice.NetAmount.Valid && inv.Invoice.VatAmount.Valid:
		x.amount = decimal.NullDecimal{Decimal: inv.Invoice.NetAmount.Decimal.Add(inv.Invoice.VatAmount.Decimal), Valid: true}
	}
	if x.notes == "" && len(inv.Lines) > 0 {
		x.notes = strings.TrimSpace(inv.Lines[0].Description)
	}

	switch len(inv.Invoice.VatRates) {
	case 0:
	case 1:
		if code, ok := accounting.VatCodeForPercent(inv.Invoice.VatRates[0]); ok {
			x.vatCode = code
		}
	default:
		x.annotations = append(x.annotations, domain.Annotation{
			Kind:    domain.AnnotationProcessingNote,
			Field:   domain.FieldVatType,
			Message: fmt.Sprintf("the invoice mixes %d VAT rates; pick the VAT type manually", len(inv.Invoice.VatRates)),
		})
	}

	companyVat := ""
	if company, ok := reg.Company(d.CompanyID); ok {
		companyVat = normalizeVatNumber(company.VatNumber)
	}
	supplier, customer := inv.Supplier, inv.Customer
	switch {
	case companyVat != "" && normalizeVatNumber(customer.VatNumber) == companyVat:
		x.movementType, x.counterparty, x.counterpartyKind = domain.Expense, &supplier, domain.EntitySupplier
	case companyVat != "" && normalizeVatNumber(supplier.VatNumber) == companyVat:
		x.movementType, x.counterparty, x.counterpartyKind = domain.Income, &customer, domain.EntityCustomer
	case !supplier.IsZero():
		x.movementType, x.counterparty, x.counterpartyKind = domain.Expense, &supplier, domain.EntitySupplier
	case !customer.IsZero():
		x.movementType, x.counterparty, x.counterpartyKind = domain.Income, &customer, domain.EntityCustomer
	}
	return x
}

func normalizeUnstructured(ai domain.AIExtraction, d *domain.MovementDraft) extracted {
	x := extracted{
		documentNumber: strings.TrimSpace(ai.DocumentNumber),
		notes:          strings.TrimSpace(ai.Description),
	}
	if t := domain.MovementType(strings.ToLower(strings.TrimSpace(ai.MovementType))); t.IsValid() {
		x.movementType = t
	}
	if v, ok := parseLooseDecimal(ai.Amount); ok && !v.IsZero() {
		x.amount = decimal.NullDecimal{Decimal: v.Abs(), Valid: true}
	}
	if t, ok := parseLooseDate(ai.Date); ok {
		x.flowDate = t
	}
	if v, ok := parseLooseDecimal(ai.VatAmount); ok {
		x.vatAmount = decimal.NullDecimal{Decimal: v.Abs(), Valid: true}
	} else if net, ok := parseLooseDecimal(ai.NetAmount); ok && x.amount.Valid {
		if vat := x.amount.Decimal.Sub(net.Abs()); !vat.IsNegative() {
			x.vatAmount = decimal.NullDecimal{Decimal: vat, Valid: true}
		}
	}
	if rate, ok := parseLooseDecimal(strings.TrimSuffix(strings.TrimSpace(ai.VatRate), "%")); ok {
		if rate.GreaterThan(decimal.Zero) && rate.LessThan(decimal.NewFromInt(1)) {
			rate = rate.Mul(decimal.NewFromInt(100))
		}
		if code, ok := accounting.VatCodeForPercent(rate); ok {
			x.vatCode = code
		}
	}

	direction := x.movementType
	if direction == "" {
		direction = d.Type
	}
	supplierPresent := ai.SupplierInfo != nil && !ai.SupplierInfo.IsZero()
	customerPresent := ai.CustomerInfo != nil && !ai.CustomerInfo.IsZero()
	switch {
	case direction == domain.Income && customerPresent:
		x.counterparty, x.counterpartyKind = ai.CustomerInfo, domain.EntityCustomer
	case direction == domain.Expense && supplierPresent:
		x.counterparty, x.counterpartyKind = ai.SupplierInfo, domain.EntitySupplier
	case direction == "" && supplierPresent:
		x.counterparty, x.counterpartyKind = ai.SupplierInfo, domain.EntitySupplier
	case direction == "" && customerPresent:
		x.counterparty, x.counterpartyKind = ai.CustomerInfo, domain.EntityCustomer
	}

	if ai.Confidence > 0 {
		confidence := ai.Confidence
		x.annotations = append(x.annotations, domain.Annotation{
			Kind:       domain.AnnotationConfidence,
			Message:    fmt.Sprintf("extraction confidence %.0f%%", confidence*100),
			Confidence: &confidence,
		})
	}
	if notes := strings.TrimSpace(ai.ProcessingNotes); notes != "" {
		x.annotations = append(x.annotations, domain.Annotation{
			Kind:    domain.AnnotationProcessingNote,
			Message: notes,
		})
	}
	return x
}

// parseLooseDecimal accepts "1220.00", "1.220,00", "1220,5" and "€ 1 220.00".
func parseLooseDecimal(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	s = strings.NewReplacer("€", "", "EUR", "", " ", "", " ", "").Replace(s)
	if s == "" {
		return decimal.Zero, false
	}
	lastComma, lastDot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastDot > lastComma && lastComma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}

var looseDateLayouts = []string{domain.DateLayout, "02/01/2006", "02-01-2006", "2006/01/02", time.RFC3339}

func parseLooseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range looseDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, mo, day := t.Date()
			return time.Date(y, mo, day, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
