package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/SscSPs/movement_intake/internal/apperrors"
	"github.com/SscSPs/movement_intake/internal/core/domain"
	portssvc "github.com/SscSPs/movement_intake/internal/core/ports/services"
	"github.com/SscSPs/movement_intake/internal/dto"
	"github.com/SscSPs/movement_intake/internal/handlers"
	"github.com/SscSPs/movement_intake/internal/middleware"
)

// --- Mock DraftService ---
type MockDraftService struct {
	mock.Mock
}

func (m *MockDraftService) GetDraft(ctx context.Context, draftID string) (*domain.DraftState, error) {
	args := m.Called(ctx, draftID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DraftState), args.Error(1)
}
func (m *MockDraftService) NewDraft(ctx context.Context, companyID string, userID string) (*domain.DraftState, error) {
	args := m.Called(ctx, companyID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DraftState), args.Error(1)
}
func (m *MockDraftService) OpenDraft(ctx context.Context, movementID string, userID string) (*domain.DraftState, error) {
	args := m.Called(ctx, movementID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DraftState), args.Error(1)
}
func (m *MockDraftService) ApplyEdits(ctx context.Context, draftID string, edits []domain.FieldEdit) (*domain.DraftState, error) {
	args := m.Called(ctx, draftID, edits)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DraftState), args.Error(1)
}
func (m *MockDraftService) DiscardDraft(ctx context.Context, draftID string) error {
	args := m.Called(ctx, draftID)
	return args.Error(0)
}
func (m *MockDraftService) CommitDraft(ctx context.Context, draftID string, userID string) (*domain.Movement, error) {
	args := m.Called(ctx, draftID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Movement), args.Error(1)
}
func (m *MockDraftService) IngestDocument(ctx context.Context, draftID string, doc domain.DocumentUpload) (*domain.IngestionStatus, error) {
	args := m.Called(ctx, draftID, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IngestionStatus), args.Error(1)
}
func (m *MockDraftService) RetryIngestion(ctx context.Context, draftID string) (*domain.IngestionStatus, error) {
	args := m.Called(ctx, draftID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IngestionStatus), args.Error(1)
}
func (m *MockDraftService) GetIngestionStatus(ctx context.Context, draftID string) (*domain.IngestionStatus, error) {
	args := m.Called(ctx, draftID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IngestionStatus), args.Error(1)
}

// Ensure mock implements the interface
var _ portssvc.DraftSvcFacade = (*MockDraftService)(nil)

// --- Mock RegistryService ---
type MockRegistryService struct {
	mock.Mock
}

func (m *MockRegistryService) Snapshot(ctx context.Context) (*domain.Registry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Registry), args.Error(1)
}
func (m *MockRegistryService) Invalidate() {
	m.Called()
}

var _ portssvc.RegistrySvc = (*MockRegistryService)(nil)

// --- Test Suite ---
type DraftHandlerTestSuite struct {
	suite.Suite
	router          *gin.Engine
	mockDraftSvc    *MockDraftService
	mockRegistrySvc *MockRegistryService
	jwtSecret       string
	userID          string
}

func (suite *DraftHandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	suite.router = gin.New()
	suite.jwtSecret = "test-secret-key-that-is-long-enough"
	suite.userID = "user-1"
	suite.mockDraftSvc = new(MockDraftService)
	suite.mockRegistrySvc = new(MockRegistryService)

	uploadLimiter, err := middleware.NewMemoryLimiter("2-M")
	suite.Require().NoError(err)

	v1 := suite.router.Group("/api/v1", middleware.AuthMiddleware(suite.jwtSecret))
	handlers.RegisterDraftRoutes(v1, suite.mockDraftSvc, middleware.RateLimit(uploadLimiter))
	handlers.RegisterRegistryRoutes(v1, suite.mockRegistrySvc)
}

// generateTestToken creates a signed JWT for the test user.
func (suite *DraftHandlerTestSuite) generateTestToken(userID string) string {
	claims := jwt.RegisteredClaims{
		Issuer:    "intake-test",
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(suite.jwtSecret))
	if err != nil {
		suite.FailNow("Failed to sign test token", err.Error())
	}
	return signed
}

func (suite *DraftHandlerTestSuite) serve(req *http.Request) *httptest.ResponseRecorder {
	req.Header.Set("Authorization", "Bearer "+suite.generateTestToken(suite.userID))
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *DraftHandlerTestSuite) jsonRequest(method, path, body string) *http.Request {
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (suite *DraftHandlerTestSuite) uploadRequest(draftID, fileName, contentType string, content []byte) *http.Request {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, fileName))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	suite.Require().NoError(err)
	_, err = part.Write(content)
	suite.Require().NoError(err)
	suite.Require().NoError(mw.Close())

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/drafts/"+draftID+"/document", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func sampleDraftState(id string) *domain.DraftState {
	d := domain.NewMovementDraft()
	d.CompanyID = "c1"
	d.SetOrigin(domain.FieldCompany, domain.OriginUser)
	d.Amount = decimal.NullDecimal{Decimal: decimal.RequireFromString("1220"), Valid: true}
	d.SetOrigin(domain.FieldAmount, domain.OriginExtraction)
	return &domain.DraftState{
		DraftID:   id,
		Draft:     d,
		Origins:   d.Origins(),
		Ingestion: domain.IngestionStatus{State: domain.IngestionCompleted, Generation: 1},
	}
}

// --- Test Cases ---

func (suite *DraftHandlerTestSuite) TestCreateDraft_Success() {
	suite.mockDraftSvc.On("NewDraft", mock.Anything, "c1", suite.userID).Return(sampleDraftState("d1"), nil).Once()

	w := suite.serve(suite.jsonRequest(http.MethodPost, "/api/v1/drafts", `{"companyId":"c1"}`))

	suite.Equal(http.StatusCreated, w.Code)
	var resp dto.DraftResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	suite.Equal("d1", resp.DraftID)
	suite.Equal(dto.DraftFieldResponse{Value: "1220.00", Origin: domain.OriginExtraction}, resp.Fields["amount"])
	suite.Equal(dto.DraftFieldResponse{Value: ""}, resp.Fields["supplierId"])
	suite.Len(resp.Fields, len(domain.AllFields))
	suite.NotNil(resp.Annotations)
	suite.mockDraftSvc.AssertExpectations(suite.T())
}

func (suite *DraftHandlerTestSuite) TestCreateDraft_EmptyBody() {
	suite.mockDraftSvc.On("NewDraft", mock.Anything, "", suite.userID).Return(sampleDraftState("d1"), nil).Once()

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/drafts", nil)
	w := suite.serve(req)

	suite.Equal(http.StatusCreated, w.Code)
	suite.mockDraftSvc.AssertExpectations(suite.T())
}

func (suite *DraftHandlerTestSuite) TestCreateDraft_Unauthorized() {
	req := suite.jsonRequest(http.MethodPost, "/api/v1/drafts", `{}`)
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	suite.Equal(http.StatusUnauthorized, w.Code)
	suite.mockDraftSvc.AssertNotCalled(suite.T(), "NewDraft", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *DraftHandlerTestSuite) TestApplyEdits_PassesEditsInOrder() {
	want := []domain.FieldEdit{
		{Field: domain.FieldType, Value: "expense"},
		{Field: domain.FieldVatAmount, Value: ""},
	}
	suite.mockDraftSvc.On("ApplyEdits", mock.Anything, "d1", want).Return(sampleDraftState("d1"), nil).Once()

	body := `{"edits":[{"field":"type","value":"expense"},{"field":"vatAmount","value":""}]}`
	w := suite.serve(suite.jsonRequest(http.MethodPatch, "/api/v1/drafts/d1", body))

	suite.Equal(http.StatusOK, w.Code)
	suite.mockDraftSvc.AssertExpectations(suite.T())
}

func (suite *DraftHandlerTestSuite) TestApplyEdits_InvalidBody() {
	w := suite.serve(suite.jsonRequest(http.MethodPatch, "/api/v1/drafts/d1", `{"edits":[]}`))

	suite.Equal(http.StatusBadRequest, w.Code)
	suite.mockDraftSvc.AssertNotCalled(suite.T(), "ApplyEdits", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *DraftHandlerTestSuite) TestApplyEdits_RejectedEdit() {
	suite.mockDraftSvc.On("ApplyEdits", mock.Anything, "d1", mock.Anything).
		Return(nil, fmt.Errorf("%w: unknown coreId %q", apperrors.ErrValidation, "x")).Once()

	w := suite.serve(suite.jsonRequest(http.MethodPatch, "/api/v1/drafts/d1", `{"edits":[{"field":"coreId","value":"x"}]}`))

	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Contains(w.Body.String(), "unknown coreId")
}

func (suite *DraftHandlerTestSuite) TestUploadDocument_Accepted() {
	content := []byte("%PDF-1.4 receipt")
	suite.mockDraftSvc.On("IngestDocument", mock.Anything, "d1", mock.MatchedBy(func(doc domain.DocumentUpload) bool {
		return doc.FileName == "receipt.pdf" &&
			doc.MediaType == "application/pdf" &&
			doc.Size == int64(len(content)) &&
			bytes.Equal(doc.Content, content)
	})).Return(&domain.IngestionStatus{State: domain.IngestionUploading, Generation: 1, FileName: "receipt.pdf"}, nil).Once()

	w := suite.serve(suite.uploadRequest("d1", "receipt.pdf", "application/octet-stream", content))

	suite.Equal(http.StatusAccepted, w.Code)
	var resp dto.IngestionStatusResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	suite.Equal(domain.IngestionUploading, resp.State)
	suite.NotNil(resp.Events)
	suite.mockDraftSvc.AssertExpectations(suite.T())
}

func (suite *DraftHandlerTestSuite) TestUploadDocument_MissingFile() {
	w := suite.serve(suite.jsonRequest(http.MethodPost, "/api/v1/drafts/d1/document", `{}`))

	suite.Equal(http.StatusBadRequest, w.Code)
	suite.mockDraftSvc.AssertNotCalled(suite.T(), "IngestDocument", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *DraftHandlerTestSuite) TestUploadDocument_RateLimited() {
	suite.mockDraftSvc.On("IngestDocument", mock.Anything, "d1", mock.Anything).
		Return(&domain.IngestionStatus{State: domain.IngestionUploading}, nil).Twice()

	for i := 0; i < 2; i++ {
		w := suite.serve(suite.uploadRequest("d1", "a.pdf", "application/pdf", []byte("x")))
		suite.Equal(http.StatusAccepted, w.Code)
	}
	w := suite.serve(suite.uploadRequest("d1", "a.pdf", "application/pdf", []byte("x")))

	suite.Equal(http.StatusTooManyRequests, w.Code)
	suite.mockDraftSvc.AssertExpectations(suite.T())
}

func (suite *DraftHandlerTestSuite) TestCommitDraft_Success() {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	movement := &domain.Movement{
		MovementID: "m1",
		InsertDate: day,
		FlowDate:   day,
		Type:       domain.Expense,
		CompanyID:  "c1",
		Amount:     decimal.RequireFromString("1220"),
		VatType:    domain.Vat22,
		VatAmount:  decimal.RequireFromString("220"),
	}
	suite.mockDraftSvc.On("CommitDraft", mock.Anything, "d1", suite.userID).Return(movement, nil).Once()

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/drafts/d1/commit", nil)
	w := suite.serve(req)

	suite.Equal(http.StatusOK, w.Code)
	var resp dto.MovementResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	suite.Equal("m1", resp.MovementID)
	suite.Equal("2024-03-15", resp.FlowDate)
	suite.Equal("1220.00", resp.Amount)
	suite.Equal("220.00", resp.VatAmount)
}

func (suite *DraftHandlerTestSuite) TestCommitDraft_ErrorMapping() {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: coreID is required", apperrors.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: draft d1", apperrors.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: a document is still being analyzing", apperrors.ErrConflict), http.StatusConflict},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		suite.mockDraftSvc.On("CommitDraft", mock.Anything, "d1", suite.userID).Return(nil, tc.err).Once()

		req, _ := http.NewRequest(http.MethodPost, "/api/v1/drafts/d1/commit", nil)
		w := suite.serve(req)

		suite.Equal(tc.code, w.Code, tc.err.Error())
	}
	suite.mockDraftSvc.AssertExpectations(suite.T())
}

func (suite *DraftHandlerTestSuite) TestDiscardDraft() {
	suite.mockDraftSvc.On("DiscardDraft", mock.Anything, "d1").Return(nil).Once()

	req, _ := http.NewRequest(http.MethodDelete, "/api/v1/drafts/d1", nil)
	w := suite.serve(req)

	suite.Equal(http.StatusNoContent, w.Code)
}

func (suite *DraftHandlerTestSuite) TestRetryIngestion_Conflict() {
	suite.mockDraftSvc.On("RetryIngestion", mock.Anything, "d1").
		Return(nil, fmt.Errorf("%w: nothing to retry while ingestion is completed", apperrors.ErrConflict)).Once()

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/drafts/d1/document/retry", nil)
	w := suite.serve(req)

	suite.Equal(http.StatusConflict, w.Code)
}

func (suite *DraftHandlerTestSuite) TestGetIngestionStatus() {
	status := &domain.IngestionStatus{
		State:      domain.IngestionError,
		Generation: 2,
		ErrorKind:  domain.ErrorKindAnalysis,
		Message:    "model overloaded",
	}
	suite.mockDraftSvc.On("GetIngestionStatus", mock.Anything, "d1").Return(status, nil).Once()

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/drafts/d1/ingestion", nil)
	w := suite.serve(req)

	suite.Equal(http.StatusOK, w.Code)
	suite.Contains(w.Body.String(), `"errorKind":"AnalysisFailed"`)
}

func (suite *DraftHandlerTestSuite) TestGetRegistry_ScopedToCompany() {
	reg := domain.NewRegistry(domain.Registry{
		Companies: []domain.Company{{CompanyID: "c1"}, {CompanyID: "c2"}},
		Cores:     []domain.Core{{CoreID: "core1", CompanyID: "c1"}, {CoreID: "core2", CompanyID: "c2"}},
		Suppliers: []domain.Supplier{{SupplierID: "sup1", Name: "ACME S.r.l."}},
	})
	suite.mockRegistrySvc.On("Snapshot", mock.Anything).Return(reg, nil).Once()

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/registry?companyId=c1", nil)
	w := suite.serve(req)

	suite.Equal(http.StatusOK, w.Code)
	var resp dto.RegistryResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	suite.Require().Len(resp.Cores, 1)
	suite.Equal("core1", resp.Cores[0].CoreID)
	suite.Len(resp.Suppliers, 1)
	suite.Len(resp.Companies, 2)
}

func (suite *DraftHandlerTestSuite) TestRefreshRegistry() {
	suite.mockRegistrySvc.On("Invalidate").Return().Once()

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/registry/refresh", nil)
	w := suite.serve(req)

	suite.Equal(http.StatusNoContent, w.Code)
	suite.mockRegistrySvc.AssertExpectations(suite.T())
}

func TestDraftHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(DraftHandlerTestSuite))
}
