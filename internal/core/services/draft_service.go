package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/SscSPs/movement_intake/internal/apperrors"
	"github.com/SscSPs/movement_intake/internal/core/domain"
	portsrepo "github.com/SscSPs/movement_intake/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/movement_intake/internal/core/ports/services"
)

const (
	defaultDraftTTL        = 2 * time.Hour
	defaultDraftCacheSize  = 1024
	defaultAnalysisTimeout = 90 * time.Second
)

// draftSession owns one MovementDraft. Every read and write of the draft, its tracker and
// its annotations happens under mu.
type draftSession struct {
	mu          sync.Mutex
	id          string
	draft       *domain.MovementDraft
	tracker     *IngestionTracker
	annotations []domain.Annotation
	original    *domain.Movement // set in edit mode
	discarded   atomic.Bool
}

// DraftService hosts draft sessions: field edits, document ingestion and commit.
type DraftService struct {
	BaseService
	sessions  *expirable.LRU[string, *draftSession]
	registry  portssvc.RegistrySvc
	movements portsrepo.MovementRepositoryFacade
	storage   portssvc.DocumentStorage
	analyzer  portssvc.DocumentAnalyzer
	parser    portssvc.InvoiceParser
	observer  portssvc.IntakeObserver
	reducer   *DraftReducer
	merger    *Merger

	draftTTL        time.Duration
	cacheSize       int
	analysisTimeout time.Duration
	now             func() time.Time
	inflight        sync.WaitGroup
}

// DraftServiceOption is a functional option for configuring the draft service
type DraftServiceOption func(*DraftService)

// WithDocumentAnalyzer sets the AI analyzer used for unstructured documents.
func WithDocumentAnalyzer(a portssvc.DocumentAnalyzer) DraftServiceOption {
	return func(s *DraftService) {
		s.analyzer = a
	}
}

// WithInvoiceParser sets the parser used for structured e-invoices.
func WithInvoiceParser(p portssvc.InvoiceParser) DraftServiceOption {
	return func(s *DraftService) {
		s.parser = p
	}
}

// WithIntakeObserver sets the metrics observer.
func WithIntakeObserver(o portssvc.IntakeObserver) DraftServiceOption {
	return func(s *DraftService) {
		s.observer = o
	}
}

// WithDraftCache sets how long an idle draft lives and how many drafts are kept.
func WithDraftCache(ttl time.Duration, size int) DraftServiceOption {
	return func(s *DraftService) {
		if ttl > 0 {
			s.draftTTL = ttl
		}
		if size > 0 {
			s.cacheSize = size
		}
	}
}

// WithAnalysisTimeout bounds a single extraction call.
func WithAnalysisTimeout(d time.Duration) DraftServiceOption {
	return func(s *DraftService) {
		if d > 0 {
			s.analysisTimeout = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) DraftServiceOption {
	return func(s *DraftService) {
		s.now = now
	}
}

// NewDraftService creates a new draft service with the provided options
func NewDraftService(registry portssvc.RegistrySvc, movements portsrepo.MovementRepositoryFacade, storage portssvc.DocumentStorage, options ...DraftServiceOption) *DraftService {
	graph := NewMovementDependencyGraph()
	reducer := NewDraftReducer(graph)
	svc := &DraftService{
		registry:        registry,
		movements:       movements,
		storage:         storage,
		observer:        noopObserver{},
		reducer:         reducer,
		merger:          NewMerger(reducer, graph),
		draftTTL:        defaultDraftTTL,
		cacheSize:       defaultDraftCacheSize,
		analysisTimeout: defaultAnalysisTimeout,
		now:             time.Now,
	}

	for _, option := range options {
		option(svc)
	}

	svc.sessions = expirable.NewLRU[string, *draftSession](svc.cacheSize, func(_ string, sess *draftSession) {
		// Late ingestion results for an evicted draft must not land anywhere.
		sess.discarded.Store(true)
	}, svc.draftTTL)
	return svc
}

// Ensure DraftService implements the DraftSvcFacade interface
var _ portssvc.DraftSvcFacade = (*DraftService)(nil)

// Wait blocks until every background ingestion attempt has finished.
func (s *DraftService) Wait() {
	s.inflight.Wait()
}

func (s *DraftService) today() time.Time {
	y, m, d := s.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *DraftService) NewDraft(ctx context.Context, companyID string, userID string) (*domain.DraftState, error) {
	reg, err := s.registry.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	d := domain.NewMovementDraft()
	d.InsertDate = s.today()
	d.FlowDate = d.InsertDate
	d.SetOrigin(domain.FieldInsertDate, domain.OriginDerived)
	d.SetOrigin(domain.FieldFlowDate, domain.OriginDerived)
	d.VatType = domain.Vat22
	d.SetOrigin(domain.FieldVatType, domain.OriginDerived)
	if companyID != "" {
		if err := s.reducer.Apply(d, domain.FieldEdit{Field: domain.FieldCompany, Value: companyID}, reg); err != nil {
			s.LogWarn(ctx, "Rejected initial company for new draft", slog.String("company_id", companyID), slog.String("error", err.Error()))
			return nil, err
		}
	}

	sess := s.openSession(d, nil)
	s.LogInfo(ctx, "Draft created", slog.String("draft_id", sess.id), slog.String("user_id", userID))
	return s.stateOf(sess), nil
}

func (s *DraftService) OpenDraft(ctx context.Context, movementID string, userID string) (*domain.DraftState, error) {
	movement, err := s.movements.FindMovementByID(ctx, movementID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.LogError(ctx, err, "Failed to load movement for editing", slog.String("movement_id", movementID))
		}
		return nil, err
	}

	sess := s.openSession(DraftFromMovement(*movement), movement)
	s.LogInfo(ctx, "Draft opened for movement", slog.String("draft_id", sess.id), slog.String("movement_id", movementID), slog.String("user_id", userID))
	return s.stateOf(sess), nil
}

func (s *DraftService) GetDraft(ctx context.Context, draftID string) (*domain.DraftState, error) {
	sess, err := s.session(draftID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.stateOf(sess), nil
}

func (s *DraftService) ApplyEdits(ctx context.Context, draftID string, edits []domain.FieldEdit) (*domain.DraftState, error) {
	sess, err := s.session(draftID)
	if err != nil {
		return nil, err
	}
	reg, err := s.registry.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	for i, edit := range edits {
		if err := s.reducer.Apply(sess.draft, edit, reg); err != nil {
			s.LogWarn(ctx, "Rejected draft edit",
				slog.String("draft_id", draftID),
				slog.String("field", string(edit.Field)),
				slog.Int("index", i),
				slog.String("error", err.Error()))
			return nil, err
		}
	}
	return s.stateOf(sess), nil
}

func (s *DraftService) DiscardDraft(ctx context.Context, draftID string) error {
	sess, err := s.session(draftID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	sess.tracker.Abandon()
	sess.discarded.Store(true)
	sess.mu.Unlock()

	s.sessions.Remove(draftID)
	s.observer.ActiveDrafts(s.sessions.Len())
	s.LogInfo(ctx, "Draft discarded", slog.String("draft_id", draftID))
	return nil
}

func (s *DraftService) CommitDraft(ctx context.Context, draftID string, userID string) (*domain.Movement, error) {
	sess, err := s.session(draftID)
	if err != nil {
		return nil, err
	}
	reg, err := s.registry.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if state := sess.tracker.State(); state.InFlight() {
		sess.mu.Unlock()
		return nil, fmt.Errorf("%w: a document is still being %s", apperrors.ErrConflict, state)
	}

	mode := "create"
	movement := movementFromDraft(sess.draft)
	if sess.original != nil {
		mode = "update"
	} else {
		movement.MovementID = uuid.NewString()
	}
	if err := validateMovement(movement, sess.draft.Amount.Valid, reg); err != nil {
		sess.mu.Unlock()
		s.LogWarn(ctx, "Draft failed commit validation", slog.String("draft_id", draftID), slog.String("error", err.Error()))
		return nil, err
	}
	var previous *domain.AuditFields
	if sess.original != nil {
		previous = &sess.original.AuditFields
	}
	movement.Stamp(previous, userID, s.now().UTC())

	if mode == "update" {
		err = s.movements.UpdateMovement(ctx, movement)
	} else {
		err = s.movements.SaveMovement(ctx, movement)
	}
	if err != nil {
		sess.mu.Unlock()
		s.LogError(ctx, err, "Failed to persist movement", slog.String("draft_id", draftID), slog.String("movement_id", movement.MovementID))
		return nil, err
	}
	sess.discarded.Store(true)
	sess.mu.Unlock()

	s.sessions.Remove(draftID)
	s.observer.DraftCommitted(mode)
	s.observer.ActiveDrafts(s.sessions.Len())
	s.LogInfo(ctx, "Movement committed",
		slog.String("draft_id", draftID),
		slog.String("movement_id", movement.MovementID),
		slog.String("mode", mode))
	return &movement, nil
}

func (s *DraftService) IngestDocument(ctx context.Context, draftID string, doc domain.DocumentUpload) (*domain.IngestionStatus, error) {
	sess, err := s.session(draftID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	previous := sess.tracker.State()
	attempt, err := sess.tracker.Select(doc)
	status := sess.tracker.Status()
	channel := sess.tracker.Channel()
	sess.mu.Unlock()
	if err != nil {
		s.observer.IngestionTransition(channel, previous, domain.ErrorKindValidation)
		s.LogWarn(ctx, "Document rejected", slog.String("draft_id", draftID), slog.String("file_name", doc.FileName), slog.String("error", err.Error()))
		return nil, err
	}
	if previous.InFlight() {
		s.LogInfo(ctx, "New document supersedes in-flight ingestion", slog.String("draft_id", draftID))
	}

	s.observer.IngestionTransition(attempt.Channel, domain.IngestionUploading, "")
	s.launch(ctx, sess, attempt)
	return &status, nil
}

func (s *DraftService) RetryIngestion(ctx context.Context, draftID string) (*domain.IngestionStatus, error) {
	sess, err := s.session(draftID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	attempt, err := sess.tracker.Retry()
	status := sess.tracker.Status()
	sess.mu.Unlock()
	if err != nil {
		return nil, err
	}

	next := domain.IngestionUploading
	if attempt.FileRef != "" {
		next = domain.IngestionAnalyzing
	}
	s.observer.IngestionTransition(attempt.Channel, next, "")
	s.LogInfo(ctx, "Retrying ingestion",
		slog.String("draft_id", draftID),
		slog.Uint64("generation", attempt.Generation),
		slog.Bool("reuses_stored_file", attempt.FileRef != ""))
	s.launch(ctx, sess, attempt)
	return &status, nil
}

func (s *DraftService) GetIngestionStatus(ctx context.Context, draftID string) (*domain.IngestionStatus, error) {
	sess, err := s.session(draftID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	status := sess.tracker.Status()
	return &status, nil
}

// launch runs the attempt in the background. The request context only lends its values,
// not its cancellation: the attempt outlives the HTTP request that started it.
func (s *DraftService) launch(ctx context.Context, sess *draftSession, attempt domain.IngestionAttempt) {
	ctx = context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.runAttempt(ctx, sess, attempt)
	}()
}

func (s *DraftService) runAttempt(ctx context.Context, sess *draftSession, attempt domain.IngestionAttempt) {
	started := s.now()
	logger := s.GetLogger(ctx).With(slog.String("draft_id", sess.id), slog.Uint64("generation", attempt.Generation))

	var doc *domain.DocumentUpload
	ref := attempt.FileRef
	if ref == "" {
		doc = attempt.Document
		stored, err := s.storage.Store(ctx, *doc)
		if err != nil {
			s.fail(ctx, sess, attempt, domain.ErrorKindUpload, fmt.Errorf("%w: %v", apperrors.ErrUploadFailed, err))
			return
		}
		ref = stored
		if !s.advance(sess, attempt, func() error { return sess.tracker.Uploaded(attempt.Generation, ref) }) {
			return
		}
		s.observer.IngestionTransition(attempt.Channel, domain.IngestionAnalyzing, "")
	} else {
		fetched, err := s.storage.Fetch(ctx, ref)
		if err != nil {
			s.fail(ctx, sess, attempt, domain.ErrorKindAnalysis, fmt.Errorf("%w: reading stored document: %v", apperrors.ErrAnalysisFailed, err))
			return
		}
		doc = fetched
	}

	result, err := s.extract(ctx, attempt.Channel, *doc)
	if err != nil {
		s.fail(ctx, sess, attempt, domain.ErrorKindAnalysis, err)
		return
	}

	reg, err := s.registry.Snapshot(ctx)
	if err != nil {
		s.fail(ctx, sess, attempt, domain.ErrorKindAnalysis, fmt.Errorf("%w: registry unavailable: %v", apperrors.ErrAnalysisFailed, err))
		return
	}

	sess.mu.Lock()
	if sess.discarded.Load() || !sess.tracker.IsCurrent(attempt.Generation) {
		sess.mu.Unlock()
		s.observer.SupersededDiscarded()
		logger.Info("Discarded superseded extraction result")
		return
	}
	work := sess.draft.Clone()
	outcome := s.merger.Merge(work, result, reg)
	if ref != "" && work.SourceDocumentRef != ref {
		work.SourceDocumentRef = ref
		work.SetOrigin(domain.FieldSourceDocumentRef, domain.OriginExtraction)
	}
	if err := sess.tracker.Complete(attempt.Generation); err != nil {
		sess.mu.Unlock()
		s.observer.SupersededDiscarded()
		return
	}
	sess.draft = work
	sess.annotations = outcome.Annotations
	resolvedKind := domain.EntitySupplier
	if work.EntityType == domain.EntityCustomer {
		resolvedKind = domain.EntityCustomer
	}
	sess.mu.Unlock()

	s.observer.IngestionTransition(attempt.Channel, domain.IngestionCompleted, "")
	s.observer.IngestionDuration(attempt.Channel, s.now().Sub(started))
	if outcome.Resolution != nil {
		s.observer.EntityResolved(resolvedKind, outcome.Resolution.MatchConfidence)
	}
	logger.Info("Document merged into draft",
		slog.String("channel", string(attempt.Channel)),
		slog.Int("fields_written", len(outcome.Written)),
		slog.Int("fields_kept", len(outcome.Kept)))
}

func (s *DraftService) extract(ctx context.Context, channel domain.ExtractionChannel, doc domain.DocumentUpload) (domain.ExtractionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.analysisTimeout)
	defer cancel()

	switch channel {
	case domain.ChannelStructured:
		if s.parser == nil {
			return nil, fmt.Errorf("%w: no e-invoice parser configured", apperrors.ErrAnalysisFailed)
		}
		inv, err := s.parser.Parse(ctx, doc.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrAnalysisFailed, err)
		}
		return &domain.StructuredExtraction{Invoice: *inv}, nil
	default:
		if s.analyzer == nil {
			return nil, fmt.Errorf("%w: no document analyzer configured", apperrors.ErrAnalysisFailed)
		}
		data, err := s.analyzer.Analyze(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrAnalysisFailed, err)
		}
		return &domain.UnstructuredExtraction{Data: *data}, nil
	}
}

// advance applies a tracker transition for attempt, reporting false if the attempt was superseded.
func (s *DraftService) advance(sess *draftSession, attempt domain.IngestionAttempt, step func() error) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.discarded.Load() {
		return false
	}
	if err := step(); err != nil {
		s.observer.SupersededDiscarded()
		return false
	}
	return true
}

func (s *DraftService) fail(ctx context.Context, sess *draftSession, attempt domain.IngestionAttempt, kind domain.IngestionErrorKind, cause error) {
	applied := s.advance(sess, attempt, func() error {
		return sess.tracker.Fail(attempt.Generation, kind, cause)
	})
	if !applied {
		return
	}
	s.observer.IngestionTransition(attempt.Channel, domain.IngestionError, kind)
	s.LogError(ctx, cause, "Document ingestion failed",
		slog.String("draft_id", sess.id),
		slog.Uint64("generation", attempt.Generation),
		slog.String("kind", string(kind)))
}

func (s *DraftService) openSession(d *domain.MovementDraft, original *domain.Movement) *draftSession {
	sess := &draftSession{
		id:       uuid.NewString(),
		draft:    d,
		tracker:  NewIngestionTracker(s.now),
		original: original,
	}
	s.sessions.Add(sess.id, sess)
	s.observer.ActiveDrafts(s.sessions.Len())
	return sess
}

func (s *DraftService) session(draftID string) (*draftSession, error) {
	sess, ok := s.sessions.Get(draftID)
	if !ok || sess.discarded.Load() {
		return nil, fmt.Errorf("%w: draft %s", apperrors.ErrNotFound, draftID)
	}
	return sess, nil
}

// stateOf snapshots a session. Callers hold sess.mu unless the session is not shared yet.
func (s *DraftService) stateOf(sess *draftSession) *domain.DraftState {
	annotations := make([]domain.Annotation, len(sess.annotations))
	copy(annotations, sess.annotations)
	return &domain.DraftState{
		DraftID:     sess.id,
		Draft:       sess.draft.Clone(),
		Origins:     sess.draft.Origins(),
		Ingestion:   sess.tracker.Status(),
		Annotations: annotations,
	}
}

type noopObserver struct{}

func (noopObserver) IngestionTransition(domain.ExtractionChannel, domain.IngestionState, domain.IngestionErrorKind) {
}
func (noopObserver) IngestionDuration(domain.ExtractionChannel, time.Duration) {}
func (noopObserver) EntityResolved(domain.EntityType, domain.MatchConfidence) {}
func (noopObserver) SupersededDiscarded() {}
func (noopObserver) DraftCommitted(string) {}
func (noopObserver) ActiveDrafts(int) {}
