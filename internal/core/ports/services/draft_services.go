package services

import (
	"context"

	"github.com/SscSPs/movement_intake/internal/core/domain"
)

// DraftReaderSvc defines read operations for draft sessions
type DraftReaderSvc interface {
	// GetDraft returns the current state of a draft session.
	GetDraft(ctx context.Context, draftID string) (*domain.DraftState, error)
}

// DraftWriterSvc defines the user-facing write operations on draft sessions
type DraftWriterSvc interface {
	// NewDraft starts an empty draft, optionally pre-selecting a company.
	NewDraft(ctx context.Context, companyID string, userID string) (*domain.DraftState, error)

	// OpenDraft starts a draft pre-populated from a persisted movement (edit mode).
	OpenDraft(ctx context.Context, movementID string, userID string) (*domain.DraftState, error)

	// ApplyEdits applies a batch of user field writes in order. A rejected edit stops the
	// batch; edits before it stay applied.
	ApplyEdits(ctx context.Context, draftID string, edits []domain.FieldEdit) (*domain.DraftState, error)

	// DiscardDraft drops a draft session and any in-flight ingestion result for it.
	DiscardDraft(ctx context.Context, draftID string) error

	// CommitDraft validates the draft and hands it to persistence. The session is closed on success.
	CommitDraft(ctx context.Context, draftID string, userID string) (*domain.Movement, error)
}

// DraftIngestionSvc defines document ingestion operations on draft sessions
type DraftIngestionSvc interface {
	// IngestDocument validates the upload synchronously, then runs upload and analysis in the
	// background. Selecting a new file supersedes any in-flight attempt.
	IngestDocument(ctx context.Context, draftID string, doc domain.DocumentUpload) (*domain.IngestionStatus, error)

	// RetryIngestion restarts a failed attempt, reusing the stored file when there is one.
	RetryIngestion(ctx context.Context, draftID string) (*domain.IngestionStatus, error)

	// GetIngestionStatus returns the ingestion state and event log of a draft.
	GetIngestionStatus(ctx context.Context, draftID string) (*domain.IngestionStatus, error)
}

// DraftSvcFacade combines all draft-related service interfaces
// This is a facade for clients that need access to all operations
type DraftSvcFacade interface {
	DraftReaderSvc
	DraftWriterSvc
	DraftIngestionSvc
}

// RegistrySvc serves registry snapshots to the draft service.
type RegistrySvc interface {
	// Snapshot returns the current registry snapshot, loading it if the cached one expired.
	Snapshot(ctx context.Context) (*domain.Registry, error)

	// Invalidate drops the cached snapshot so the next call reloads it.
	Invalidate()
}
