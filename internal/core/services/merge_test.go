package services_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/SscSPs/movement_intake/internal/core/domain"
	"github.com/SscSPs/movement_intake/internal/core/services"
)

type MergeTestSuite struct {
	suite.Suite
	reg     *domain.Registry
	reducer *services.DraftReducer
	merger  *services.Merger
	draft   *domain.MovementDraft
}

func (suite *MergeTestSuite) SetupTest() {
	suite.reg = newTestRegistry()
	graph := services.NewMovementDependencyGraph()
	suite.reducer = services.NewDraftReducer(graph)
	suite.merger = services.NewMerger(suite.reducer, graph)
	suite.draft = domain.NewMovementDraft()
	suite.userEdit(domain.FieldCompany, "c1")
}

func (suite *MergeTestSuite) userEdit(f domain.Field, value string) {
	suite.Require().NoError(suite.reducer.Apply(suite.draft, domain.FieldEdit{Field: f, Value: value}, suite.reg))
}

func (suite *MergeTestSuite) mergeInvoice(inv domain.ElectronicInvoice) services.MergeOutcome {
	return suite.merger.Merge(suite.draft, &domain.StructuredExtraction{Invoice: inv}, suite.reg)
}

func annotationsOfKind(annotations []domain.Annotation, kind domain.AnnotationKind) []domain.Annotation {
	var out []domain.Annotation
	for _, a := range annotations {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

func (suite *MergeTestSuite) TestUserValuesAreKept() {
	suite.userEdit(domain.FieldAmount, "500.00")

	outcome := suite.mergeInvoice(acmeInvoice())

	suite.Equal("500.00", suite.draft.Get(domain.FieldAmount))
	suite.Contains(outcome.Kept, domain.FieldAmount)
	kept := annotationsOfKind(outcome.Annotations, domain.AnnotationFieldKept)
	suite.Require().Len(kept, 1)
	suite.Equal(domain.FieldAmount, kept[0].Field)

	suite.Equal("FT-1", suite.draft.DocumentNumber)
	suite.Equal(domain.OriginExtraction, suite.draft.Origin(domain.FieldDocumentNumber))
	suite.Equal(domain.Expense, suite.draft.Type)
}

func (suite *MergeTestSuite) TestExactSupplierMatchIsWritten() {
	outcome := suite.mergeInvoice(acmeInvoice())

	suite.Require().NotNil(outcome.Resolution)
	suite.Equal(domain.MatchExact, outcome.Resolution.MatchConfidence)
	suite.Equal("sup1", suite.draft.SupplierID)
	suite.Equal(domain.EntitySupplier, suite.draft.EntityType)
	suite.Empty(annotationsOfKind(outcome.Annotations, domain.AnnotationEntitySuggestion))
	suite.Equal("1220.00", suite.draft.Get(domain.FieldAmount))
}

func (suite *MergeTestSuite) TestFuzzyMatchIsWrittenWithSuggestion() {
	inv := acmeInvoice()
	inv.Supplier = domain.EntityCandidate{Name: "acme"}

	outcome := suite.mergeInvoice(inv)

	suite.Equal("sup1", suite.draft.SupplierID)
	suggestions := annotationsOfKind(outcome.Annotations, domain.AnnotationEntitySuggestion)
	suite.Require().Len(suggestions, 1)
	suite.Require().NotNil(suggestions[0].Suggestion)
	suite.Equal(domain.MatchFuzzy, suggestions[0].Suggestion.Resolution.MatchConfidence)
}

func (suite *MergeTestSuite) TestUnknownSupplierOnlySuggests() {
	inv := acmeInvoice()
	inv.Supplier = domain.EntityCandidate{Name: "Omega Srl", VatNumber: "55555555555"}

	outcome := suite.mergeInvoice(inv)

	suite.Empty(suite.draft.SupplierID)
	suite.Equal(domain.MatchNone, outcome.Resolution.MatchConfidence)
	suggestions := annotationsOfKind(outcome.Annotations, domain.AnnotationEntitySuggestion)
	suite.Require().Len(suggestions, 1)
	suite.Equal("Omega Srl", suggestions[0].Suggestion.Candidate.Name)
	suite.Equal(domain.EntitySupplier, suggestions[0].Suggestion.EntityType)
}

func (suite *MergeTestSuite) TestUserChosenCounterpartyIsKept() {
	suite.userEdit(domain.FieldType, "expense")
	suite.userEdit(domain.FieldSupplier, "sup2")

	outcome := suite.mergeInvoice(acmeInvoice())

	suite.Equal("sup2", suite.draft.SupplierID)
	suite.Contains(outcome.Kept, domain.FieldSupplier)
	suite.Equal(domain.MatchExact, outcome.Resolution.MatchConfidence)
}

func (suite *MergeTestSuite) TestSecondExtractionOverwritesFirst() {
	suite.mergeInvoice(acmeInvoice())

	next := acmeInvoice()
	next.Invoice.DocumentNumber = "FT-2"
	next.Invoice.TotalAmount = decimalNull("610.00")
	outcome := suite.mergeInvoice(next)

	suite.Equal("610.00", suite.draft.Get(domain.FieldAmount))
	suite.Equal("FT-2", suite.draft.DocumentNumber)
	suite.Contains(outcome.Written, domain.FieldAmount)
	suite.Empty(outcome.Kept)
}

func (suite *MergeTestSuite) TestIssuedInvoiceBecomesIncome() {
	var inv domain.ElectronicInvoice
	inv.Supplier = domain.EntityCandidate{Name: "Mia Srl", VatNumber: "99999999999"}
	inv.Customer = domain.EntityCandidate{Name: "Gamma Srl", VatNumber: "22222222222"}
	inv.Invoice.TotalAmount = decimalNull("122.00")
	inv.Invoice.VatRates = []decimal.Decimal{decimal.NewFromInt(22)}

	suite.mergeInvoice(inv)

	suite.Equal(domain.Income, suite.draft.Type)
	suite.Equal("cus2", suite.draft.CustomerID)
	suite.Equal(domain.EntityCustomer, suite.draft.EntityType)
	suite.Equal(domain.Vat22, suite.draft.VatType)
	suite.Equal("22.00", suite.draft.Get(domain.FieldVatAmount))
}

func (suite *MergeTestSuite) TestMixedVatRatesLeaveVatTypeToTheUser() {
	inv := acmeInvoice()
	inv.Invoice.VatRates = []decimal.Decimal{decimal.NewFromInt(22), decimal.NewFromInt(10)}

	outcome := suite.mergeInvoice(inv)

	suite.Empty(suite.draft.VatType)
	notes := annotationsOfKind(outcome.Annotations, domain.AnnotationProcessingNote)
	suite.Require().Len(notes, 1)
	suite.Equal(domain.FieldVatType, notes[0].Field)
}

func (suite *MergeTestSuite) TestUserVatTypeDrivesDerivedVat() {
	suite.userEdit(domain.FieldVatType, "iva_22")

	suite.mergeInvoice(acmeInvoice())

	suite.Equal("220.00", suite.draft.Get(domain.FieldVatAmount))
	suite.False(suite.draft.VatOverridden)
}

func (suite *MergeTestSuite) TestLooseUnstructuredValues() {
	ai := domain.AIExtraction{
		Amount:          "1.220,00",
		Date:            "15/03/2024",
		MovementType:    "Expense",
		Description:     "Office chairs",
		VatRate:         "0.22",
		SupplierInfo:    &domain.EntityCandidate{Name: "Beta"},
		Confidence:      0.8,
		ProcessingNotes: "total partially covered by a stamp",
	}

	outcome := suite.merger.Merge(suite.draft, &domain.UnstructuredExtraction{Data: ai}, suite.reg)

	suite.Equal("1220.00", suite.draft.Get(domain.FieldAmount))
	suite.Equal("2024-03-15", suite.draft.Get(domain.FieldFlowDate))
	suite.Equal(domain.Expense, suite.draft.Type)
	suite.Equal(domain.Vat22, suite.draft.VatType)
	suite.Equal("220.00", suite.draft.Get(domain.FieldVatAmount))
	suite.Equal("Office chairs", suite.draft.Notes)
	suite.Equal("sup3", suite.draft.SupplierID)

	confidence := annotationsOfKind(outcome.Annotations, domain.AnnotationConfidence)
	suite.Require().Len(confidence, 1)
	suite.InDelta(0.8, *confidence[0].Confidence, 1e-9)
	suite.Len(annotationsOfKind(outcome.Annotations, domain.AnnotationProcessingNote), 1)
	suite.Len(annotationsOfKind(outcome.Annotations, domain.AnnotationEntitySuggestion), 1)
}

func (suite *MergeTestSuite) TestExtractedVatAmountIsAnOverride() {
	ai := domain.AIExtraction{Amount: "100", VatAmount: "18,03", VatRate: "22"}

	suite.merger.Merge(suite.draft, &domain.UnstructuredExtraction{Data: ai}, suite.reg)

	suite.Equal("18.03", suite.draft.Get(domain.FieldVatAmount))
	suite.True(suite.draft.VatOverridden)
	suite.Equal(domain.OriginExtraction, suite.draft.Origin(domain.FieldVatAmount))
}

func (suite *MergeTestSuite) TestExtractedVatAmountForAnotherAmountIsNotTaken() {
	suite.userEdit(domain.FieldVatType, "iva_22")
	suite.userEdit(domain.FieldAmount, "500.00")
	suite.Require().Equal("90.16", suite.draft.Get(domain.FieldVatAmount))

	ai := domain.AIExtraction{Amount: "123.45", VatAmount: "22.26"}
	outcome := suite.merger.Merge(suite.draft, &domain.UnstructuredExtraction{Data: ai}, suite.reg)

	suite.Equal("500.00", suite.draft.Get(domain.FieldAmount))
	suite.Equal("90.16", suite.draft.Get(domain.FieldVatAmount))
	suite.False(suite.draft.VatOverridden)
	suite.Equal(domain.OriginDerived, suite.draft.Origin(domain.FieldVatAmount))
	suite.ElementsMatch([]domain.Field{domain.FieldAmount, domain.FieldVatAmount}, outcome.Kept)
	suite.NotContains(outcome.Written, domain.FieldVatAmount)
}

func (suite *MergeTestSuite) TestVatOnlyDocumentFollowsAmountProvenance() {
	first := domain.AIExtraction{Amount: "100"}
	suite.merger.Merge(suite.draft, &domain.UnstructuredExtraction{Data: first}, suite.reg)

	second := domain.AIExtraction{VatAmount: "18,03"}
	suite.merger.Merge(suite.draft, &domain.UnstructuredExtraction{Data: second}, suite.reg)

	suite.Equal("18.03", suite.draft.Get(domain.FieldVatAmount))
	suite.True(suite.draft.VatOverridden)

	suite.userEdit(domain.FieldAmount, "200.00")
	suite.merger.Merge(suite.draft, &domain.UnstructuredExtraction{Data: domain.AIExtraction{VatAmount: "9,99"}}, suite.reg)

	suite.NotEqual("9.99", suite.draft.Get(domain.FieldVatAmount))
	suite.False(suite.draft.VatOverridden)
}

func TestMergeTestSuite(t *testing.T) {
	suite.Run(t, new(MergeTestSuite))
}
