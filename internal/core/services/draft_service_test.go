package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/SscSPs/movement_intake/internal/apperrors"
	"github.com/SscSPs/movement_intake/internal/core/domain"
	"github.com/SscSPs/movement_intake/internal/core/services"
)

type DraftServiceTestSuite struct {
	suite.Suite
	ctx      context.Context
	repo     *MockMovementRepository
	storage  *memoryStorage
	observer *countingObserver
	analyzer *scriptedAnalyzer
	service  *services.DraftService
}

func (suite *DraftServiceTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.repo = new(MockMovementRepository)
	suite.storage = newMemoryStorage()
	suite.observer = &countingObserver{}
	suite.analyzer = &scriptedAnalyzer{steps: []analyzerStep{{result: &domain.AIExtraction{Amount: "50,00"}}}}
	suite.service = services.NewDraftService(
		staticRegistry{reg: newTestRegistry()},
		suite.repo,
		suite.storage,
		services.WithInvoiceParser(fakeParser{invoice: acmeInvoice()}),
		services.WithDocumentAnalyzer(suite.analyzer),
		services.WithIntakeObserver(suite.observer),
		services.WithAnalysisTimeout(5*time.Second),
		services.WithClock(fixedClock),
	)
}

func (suite *DraftServiceTestSuite) TearDownTest() {
	suite.service.Wait()
}

func (suite *DraftServiceTestSuite) newDraft(edits ...domain.FieldEdit) string {
	state, err := suite.service.NewDraft(suite.ctx, "c1", "u1")
	suite.Require().NoError(err)
	if len(edits) > 0 {
		_, err = suite.service.ApplyEdits(suite.ctx, state.DraftID, edits)
		suite.Require().NoError(err)
	}
	return state.DraftID
}

func (suite *DraftServiceTestSuite) draft(id string) *domain.DraftState {
	state, err := suite.service.GetDraft(suite.ctx, id)
	suite.Require().NoError(err)
	return state
}

// blockOn makes the next analyzer call wait until the returned release func is called.
func (suite *DraftServiceTestSuite) blockOn(result *domain.AIExtraction) (entered chan struct{}, release func()) {
	entered, gate := make(chan struct{}), make(chan struct{})
	suite.analyzer.steps = []analyzerStep{{result: result, entered: entered, gate: gate}}
	return entered, func() { close(gate) }
}

func (suite *DraftServiceTestSuite) waitEntered(entered chan struct{}) {
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		suite.FailNow("analyzer was never called")
	}
}

func (suite *DraftServiceTestSuite) TestNewDraft() {
	state, err := suite.service.NewDraft(suite.ctx, "c1", "u1")

	suite.Require().NoError(err)
	suite.NotEmpty(state.DraftID)
	suite.Equal("c1", state.Draft.CompanyID)
	suite.Equal("2024-03-15", state.Draft.Get(domain.FieldInsertDate))
	suite.Equal("2024-03-15", state.Draft.Get(domain.FieldFlowDate))
	suite.Equal(domain.OriginUser, state.Origins[domain.FieldCompany])
	suite.Equal(domain.Vat22, state.Draft.VatType)
	suite.Equal(domain.OriginDerived, state.Origins[domain.FieldVatType])
	suite.Equal(domain.IngestionIdle, state.Ingestion.State)

	_, err = suite.service.NewDraft(suite.ctx, "missing", "u1")
	suite.ErrorIs(err, apperrors.ErrValidation)
}

func (suite *DraftServiceTestSuite) TestUnknownDraftIsNotFound() {
	_, err := suite.service.GetDraft(suite.ctx, "nope")
	suite.ErrorIs(err, apperrors.ErrNotFound)
	_, err = suite.service.ApplyEdits(suite.ctx, "nope", []domain.FieldEdit{{Field: domain.FieldNotes, Value: "x"}})
	suite.ErrorIs(err, apperrors.ErrNotFound)
	_, err = suite.service.IngestDocument(suite.ctx, "nope", xmlUpload())
	suite.ErrorIs(err, apperrors.ErrNotFound)
	suite.ErrorIs(suite.service.DiscardDraft(suite.ctx, "nope"), apperrors.ErrNotFound)
}

func (suite *DraftServiceTestSuite) TestApplyEditsStopsAtFirstRejectedEdit() {
	id := suite.newDraft()

	_, err := suite.service.ApplyEdits(suite.ctx, id, []domain.FieldEdit{
		{Field: domain.FieldNotes, Value: "first"},
		{Field: domain.FieldCore, Value: "core2"},
		{Field: domain.FieldReason, Value: "r1"},
	})

	suite.ErrorIs(err, apperrors.ErrValidation)
	state := suite.draft(id)
	suite.Equal("first", state.Draft.Notes)
	suite.Empty(state.Draft.ReasonID)
	suite.Empty(state.Draft.CoreID)
}

func (suite *DraftServiceTestSuite) TestStructuredInvoiceEndToEnd() {
	id := suite.newDraft()

	status, err := suite.service.IngestDocument(suite.ctx, id, xmlUpload())
	suite.Require().NoError(err)
	suite.Equal(domain.IngestionUploading, status.State)
	suite.service.Wait()

	state := suite.draft(id)
	suite.Equal(domain.IngestionCompleted, state.Ingestion.State)
	suite.Equal("sup1", state.Draft.SupplierID)
	suite.Equal(domain.EntitySupplier, state.Draft.EntityType)
	suite.Equal(domain.Expense, state.Draft.Type)
	suite.Equal("1220.00", state.Draft.Get(domain.FieldAmount))
	suite.Equal("220.00", state.Draft.Get(domain.FieldVatAmount))
	suite.Equal("FT-1", state.Draft.DocumentNumber)
	suite.Equal(state.Ingestion.FileRef, state.Draft.SourceDocumentRef)
	suite.Equal(domain.OriginExtraction, state.Origins[domain.FieldAmount])
	suite.Equal(domain.Vat22, state.Draft.VatType)
	suite.Equal(domain.OriginDerived, state.Origins[domain.FieldVatType])
	suite.False(state.Draft.VatOverridden)
	suite.Equal([]domain.MatchConfidence{domain.MatchExact}, suite.observer.resolved)
}

func (suite *DraftServiceTestSuite) TestRejectedDocumentLeavesIngestionIdle() {
	id := suite.newDraft()

	_, err := suite.service.IngestDocument(suite.ctx, id, domain.DocumentUpload{FileName: "a.exe", MediaType: "application/octet-stream", Content: []byte("MZ")})

	suite.ErrorIs(err, apperrors.ErrValidation)
	suite.Equal(domain.IngestionIdle, suite.draft(id).Ingestion.State)
}

func (suite *DraftServiceTestSuite) TestNewFileSupersedesInFlightAnalysis() {
	id := suite.newDraft()
	entered, release := suite.blockOn(&domain.AIExtraction{Amount: "999.00", DocumentNumber: "STALE"})

	_, err := suite.service.IngestDocument(suite.ctx, id, pdfUpload())
	suite.Require().NoError(err)
	suite.waitEntered(entered)

	_, err = suite.service.IngestDocument(suite.ctx, id, xmlUpload())
	suite.Require().NoError(err)
	release()
	suite.service.Wait()

	state := suite.draft(id)
	suite.Equal(domain.IngestionCompleted, state.Ingestion.State)
	suite.Equal(uint64(2), state.Ingestion.Generation)
	suite.Equal("1220.00", state.Draft.Get(domain.FieldAmount))
	suite.Equal("FT-1", state.Draft.DocumentNumber)
	suite.Equal(1, suite.observer.supersededCount())
}

func (suite *DraftServiceTestSuite) TestAnalysisFailureThenRetry() {
	id := suite.newDraft()
	suite.analyzer.steps = []analyzerStep{
		{err: errors.New("model overloaded")},
		{result: &domain.AIExtraction{Amount: "50,00", MovementType: "expense"}},
	}

	_, err := suite.service.IngestDocument(suite.ctx, id, pdfUpload())
	suite.Require().NoError(err)
	suite.service.Wait()

	failed, err := suite.service.GetIngestionStatus(suite.ctx, id)
	suite.Require().NoError(err)
	suite.Equal(domain.IngestionError, failed.State)
	suite.Equal(domain.ErrorKindAnalysis, failed.ErrorKind)
	suite.Contains(failed.Message, "model overloaded")
	suite.NotEmpty(failed.FileRef)
	suite.True(suite.draft(id).Draft.IsEmpty(domain.FieldAmount))

	retried, err := suite.service.RetryIngestion(suite.ctx, id)
	suite.Require().NoError(err)
	suite.Equal(domain.IngestionAnalyzing, retried.State)
	suite.service.Wait()

	state := suite.draft(id)
	suite.Equal(domain.IngestionCompleted, state.Ingestion.State)
	suite.Equal("50.00", state.Draft.Get(domain.FieldAmount))
	suite.Equal(failed.FileRef, state.Draft.SourceDocumentRef)
}

func (suite *DraftServiceTestSuite) TestUploadFailureThenRetry() {
	id := suite.newDraft()
	suite.storage.setFailing(true)

	_, err := suite.service.IngestDocument(suite.ctx, id, pdfUpload())
	suite.Require().NoError(err)
	suite.service.Wait()

	failed, err := suite.service.GetIngestionStatus(suite.ctx, id)
	suite.Require().NoError(err)
	suite.Equal(domain.ErrorKindUpload, failed.ErrorKind)
	suite.Empty(failed.FileRef)

	suite.storage.setFailing(false)
	retried, err := suite.service.RetryIngestion(suite.ctx, id)
	suite.Require().NoError(err)
	suite.Equal(domain.IngestionUploading, retried.State)
	suite.service.Wait()

	suite.Equal("50.00", suite.draft(id).Draft.Get(domain.FieldAmount))
}

func (suite *DraftServiceTestSuite) TestRetryWithoutFailureConflicts() {
	id := suite.newDraft()

	_, err := suite.service.RetryIngestion(suite.ctx, id)

	suite.ErrorIs(err, apperrors.ErrConflict)
}

func (suite *DraftServiceTestSuite) TestCommitCreatesMovement() {
	id := suite.newDraft()
	_, err := suite.service.IngestDocument(suite.ctx, id, xmlUpload())
	suite.Require().NoError(err)
	suite.service.Wait()

	_, err = suite.service.CommitDraft(suite.ctx, id, "u1")
	suite.Require().ErrorIs(err, apperrors.ErrValidation)
	suite.Contains(err.Error(), "coreID is required")

	_, err = suite.service.ApplyEdits(suite.ctx, id, []domain.FieldEdit{
		{Field: domain.FieldCore, Value: "core1"},
		{Field: domain.FieldReason, Value: "r1"},
		{Field: domain.FieldStatus, Value: "st1"},
	})
	suite.Require().NoError(err)

	suite.repo.On("SaveMovement", mock.Anything, mock.MatchedBy(func(m domain.Movement) bool {
		return m.MovementID != "" &&
			m.SupplierID == "sup1" &&
			m.Amount.Equal(decimal.RequireFromString("1220")) &&
			m.VatAmount.Equal(decimal.RequireFromString("220")) &&
			!m.VatOverridden &&
			m.CreatedBy == "u1" && m.LastUpdatedBy == "u1"
	})).Return(nil).Once()

	movement, err := suite.service.CommitDraft(suite.ctx, id, "u1")

	suite.Require().NoError(err)
	suite.Equal("FT-1", movement.DocumentNumber)
	suite.Equal(fixedClock(), movement.CreatedAt)
	suite.Equal([]string{"create"}, suite.observer.commits)
	_, err = suite.service.GetDraft(suite.ctx, id)
	suite.ErrorIs(err, apperrors.ErrNotFound)
	suite.repo.AssertExpectations(suite.T())
}

func (suite *DraftServiceTestSuite) TestCommitFailureKeepsDraft() {
	id := suite.newDraft(
		domain.FieldEdit{Field: domain.FieldType, Value: "expense"},
		domain.FieldEdit{Field: domain.FieldCore, Value: "core1"},
		domain.FieldEdit{Field: domain.FieldReason, Value: "r1"},
		domain.FieldEdit{Field: domain.FieldStatus, Value: "st1"},
		domain.FieldEdit{Field: domain.FieldAmount, Value: "10"},
	)
	suite.repo.On("SaveMovement", mock.Anything, mock.AnythingOfType("domain.Movement")).Return(errors.New("db down")).Once()

	_, err := suite.service.CommitDraft(suite.ctx, id, "u1")

	suite.Error(err)
	suite.Equal("10.00", suite.draft(id).Draft.Get(domain.FieldAmount))
	suite.repo.AssertExpectations(suite.T())
}

func (suite *DraftServiceTestSuite) TestCommitWhileIngestingConflicts() {
	id := suite.newDraft()
	entered, release := suite.blockOn(&domain.AIExtraction{Amount: "1"})
	_, err := suite.service.IngestDocument(suite.ctx, id, pdfUpload())
	suite.Require().NoError(err)
	suite.waitEntered(entered)

	_, err = suite.service.CommitDraft(suite.ctx, id, "u1")

	suite.ErrorIs(err, apperrors.ErrConflict)
	release()
	suite.service.Wait()
	suite.repo.AssertNotCalled(suite.T(), "SaveMovement", mock.Anything, mock.Anything)
}

func (suite *DraftServiceTestSuite) TestDiscardDropsLateResult() {
	id := suite.newDraft()
	entered, release := suite.blockOn(&domain.AIExtraction{Amount: "1"})
	_, err := suite.service.IngestDocument(suite.ctx, id, pdfUpload())
	suite.Require().NoError(err)
	suite.waitEntered(entered)

	suite.Require().NoError(suite.service.DiscardDraft(suite.ctx, id))
	release()
	suite.service.Wait()

	_, err = suite.service.GetDraft(suite.ctx, id)
	suite.ErrorIs(err, apperrors.ErrNotFound)
	suite.Equal(1, suite.observer.supersededCount())
}

func (suite *DraftServiceTestSuite) TestEditModeUpdatesMovement() {
	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	created := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	existing := &domain.Movement{
		MovementID: "m1",
		InsertDate: day,
		FlowDate:   day,
		Type:       domain.Expense,
		CompanyID:  "c1",
		CoreID:     "core1",
		ReasonID:   "r1",
		EntityType: domain.EntitySupplier,
		SupplierID: "sup2",
		Amount:     decimal.RequireFromString("122"),
		VatType:    domain.Vat22,
		VatAmount:  decimal.RequireFromString("22"),
		StatusID:   "st1",
		AuditFields: domain.AuditFields{
			CreatedAt:     created,
			CreatedBy:     "creator",
			LastUpdatedAt: created,
			LastUpdatedBy: "creator",
		},
	}
	suite.repo.On("FindMovementByID", mock.Anything, "m1").Return(existing, nil).Once()
	suite.repo.On("FindMovementByID", mock.Anything, "m404").Return(nil, apperrors.ErrNotFound).Once()

	_, err := suite.service.OpenDraft(suite.ctx, "m404", "u2")
	suite.ErrorIs(err, apperrors.ErrNotFound)

	state, err := suite.service.OpenDraft(suite.ctx, "m1", "u2")
	suite.Require().NoError(err)
	suite.Equal(domain.OriginLoaded, state.Origins[domain.FieldSupplier])

	// the loaded supplier is protected from extraction
	_, err = suite.service.IngestDocument(suite.ctx, state.DraftID, xmlUpload())
	suite.Require().NoError(err)
	suite.service.Wait()
	suite.Equal("sup2", suite.draft(state.DraftID).Draft.SupplierID)
	suite.Equal("122.00", suite.draft(state.DraftID).Draft.Get(domain.FieldAmount))

	_, err = suite.service.ApplyEdits(suite.ctx, state.DraftID, []domain.FieldEdit{{Field: domain.FieldNotes, Value: "corrected"}})
	suite.Require().NoError(err)

	suite.repo.On("UpdateMovement", mock.Anything, mock.MatchedBy(func(m domain.Movement) bool {
		return m.MovementID == "m1" &&
			m.Notes == "corrected" &&
			m.DocumentNumber == "FT-1" &&
			m.CreatedBy == "creator" && m.CreatedAt.Equal(created) &&
			m.LastUpdatedBy == "u2"
	})).Return(nil).Once()

	movement, err := suite.service.CommitDraft(suite.ctx, state.DraftID, "u2")
	suite.Require().NoError(err)
	suite.Equal("m1", movement.MovementID)
	suite.Equal([]string{"update"}, suite.observer.commits)
	suite.repo.AssertExpectations(suite.T())
}

func TestDraftServiceTestSuite(t *testing.T) {
	suite.Run(t, new(DraftServiceTestSuite))
}
