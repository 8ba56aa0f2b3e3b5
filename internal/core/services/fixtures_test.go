package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/SscSPs/movement_intake/internal/apperrors"
	"github.com/SscSPs/movement_intake/internal/core/domain"
)

// newTestRegistry builds the registry shared by the service tests.
//
//	c1 "Mia Srl" owns core1, res1, off1, iban1; c2 owns core2, off2.
//	sup1 "ACME S.r.l." and sup2 "Acme Logistics" both fuzzy-match "acme".
func newTestRegistry() *domain.Registry {
	return domain.NewRegistry(domain.Registry{
		Companies: []domain.Company{
			{CompanyID: "c1", Name: "Mia Srl", VatNumber: "99999999999"},
			{CompanyID: "c2", Name: "Altra Spa", VatNumber: "88888888888"},
		},
		Cores:     []domain.Core{{CoreID: "core1", CompanyID: "c1", Name: "Retail"}, {CoreID: "core2", CompanyID: "c2", Name: "Wholesale"}},
		Resources: []domain.Resource{{ResourceID: "res1", CompanyID: "c1", Name: "Van"}},
		Offices:   []domain.Office{{OfficeID: "off1", CompanyID: "c1", Name: "Milano"}, {OfficeID: "off2", CompanyID: "c2", Name: "Roma"}},
		Ibans:     []domain.Iban{{IbanID: "iban1", CompanyID: "c1", Iban: "IT60X0542811101000000123456", BankName: "Banca"}},
		Suppliers: []domain.Supplier{
			{SupplierID: "sup1", Name: "ACME S.r.l.", VatNumber: "01234567890"},
			{SupplierID: "sup2", Name: "Acme Logistics", VatNumber: "11111111111"},
			{SupplierID: "sup3", Name: "Beta Spa", VatNumber: "33333333333"},
		},
		Customers: []domain.Customer{
			{CustomerID: "cus1", Kind: domain.CustomerPrivate, FirstName: "Mario", LastName: "Rossi", TaxCode: "RSSMRA80A01H501U"},
			{CustomerID: "cus2", Kind: domain.CustomerBusiness, CompanyName: "Gamma Srl", VatNumber: "22222222222"},
		},
		Reasons:  []domain.Reason{{ReasonID: "r1", Name: "Consulting"}},
		Statuses: []domain.Status{{StatusID: "st1", Name: "Paid"}},
		Tags:     []domain.Tag{{TagID: "t1", Name: "Q1"}},
	})
}

// staticRegistry serves a fixed snapshot.
type staticRegistry struct {
	reg *domain.Registry
}

func (s staticRegistry) Snapshot(context.Context) (*domain.Registry, error) { return s.reg, nil }
func (s staticRegistry) Invalidate()                                          {}

// --- Mock MovementRepository ---
type MockMovementRepository struct {
	mock.Mock
}

func (m *MockMovementRepository) FindMovementByID(ctx context.Context, movementID string) (*domain.Movement, error) {
	args := m.Called(ctx, movementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Movement), args.Error(1)
}

func (m *MockMovementRepository) SaveMovement(ctx context.Context, movement domain.Movement) error {
	args := m.Called(ctx, movement)
	return args.Error(0)
}

func (m *MockMovementRepository) UpdateMovement(ctx context.Context, movement domain.Movement) error {
	args := m.Called(ctx, movement)
	return args.Error(0)
}

// memoryStorage is an in-memory DocumentStorage that can be told to fail.
type memoryStorage struct {
	mu      sync.Mutex
	docs    map[string]domain.DocumentUpload
	failing bool
	seq     int
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{docs: map[string]domain.DocumentUpload{}}
}

func (s *memoryStorage) Store(_ context.Context, doc domain.DocumentUpload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return "", errStorageDown
	}
	s.seq++
	ref := fmt.Sprintf("mem://%d/%s", s.seq, doc.FileName)
	s.docs[ref] = doc
	return ref, nil
}

func (s *memoryStorage) Fetch(_ context.Context, ref string) (*domain.DocumentUpload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[ref]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &doc, nil
}

func (s *memoryStorage) setFailing(v bool) {
	s.mu.Lock()
	s.failing = v
	s.mu.Unlock()
}

// fakeParser returns a fixed invoice.
type fakeParser struct {
	invoice domain.ElectronicInvoice
}

func (p fakeParser) Parse(context.Context, []byte) (*domain.ElectronicInvoice, error) {
	inv := p.invoice
	return &inv, nil
}

// scriptedAnalyzer answers from a queue of results. A step with a gate blocks until the gate
// is closed; entered is signalled when the call starts.
type scriptedAnalyzer struct {
	mu    sync.Mutex
	steps []analyzerStep
	calls int
}

type analyzerStep struct {
	result  *domain.AIExtraction
	err     error
	entered chan struct{}
	gate    chan struct{}
}

func (a *scriptedAnalyzer) Analyze(ctx context.Context, _ domain.DocumentUpload) (*domain.AIExtraction, error) {
	a.mu.Lock()
	step := a.steps[a.calls%len(a.steps)]
	a.calls++
	a.mu.Unlock()

	if step.entered != nil {
		close(step.entered)
	}
	if step.gate != nil {
		select {
		case <-step.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return step.result, step.err
}

// countingObserver records the signals the tests assert on.
type countingObserver struct {
	mu         sync.Mutex
	superseded int
	commits    []string
	resolved   []domain.MatchConfidence
}

func (o *countingObserver) IngestionTransition(domain.ExtractionChannel, domain.IngestionState, domain.IngestionErrorKind) {
}
func (o *countingObserver) IngestionDuration(domain.ExtractionChannel, time.Duration) {}
func (o *countingObserver) ActiveDrafts(int)                                          {}

func (o *countingObserver) EntityResolved(_ domain.EntityType, c domain.MatchConfidence) {
	o.mu.Lock()
	o.resolved = append(o.resolved, c)
	o.mu.Unlock()
}

func (o *countingObserver) SupersededDiscarded() {
	o.mu.Lock()
	o.superseded++
	o.mu.Unlock()
}

func (o *countingObserver) DraftCommitted(mode string) {
	o.mu.Lock()
	o.commits = append(o.commits, mode)
	o.mu.Unlock()
}

func (o *countingObserver) supersededCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.superseded
}

var errStorageDown = errors.New("storage unavailable")

func decimalNull(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

// acmeInvoice is the e-invoice of the end-to-end scenario.
func acmeInvoice() domain.ElectronicInvoice {
	var inv domain.ElectronicInvoice
	inv.Supplier = domain.EntityCandidate{Name: "Acme Srl", VatNumber: "01234567890"}
	inv.Invoice.DocumentNumber = "FT-1"
	inv.Invoice.TotalAmount = decimalNull("1220.00")
	return inv
}

func xmlUpload() domain.DocumentUpload {
	return domain.DocumentUpload{FileName: "ft-1.xml", MediaType: "application/xml", Content: []byte("<FatturaElettronica/>")}
}

func pdfUpload() domain.DocumentUpload {
	return domain.DocumentUpload{FileName: "receipt.pdf", MediaType: "application/pdf", Content: []byte("%PDF-1.4")}
}
