package services

import (
	"context"
	"time"

	"github.com/SscSPs/movement_intake/internal/core/domain"
)

// DocumentStorage is the external collaborator holding uploaded documents.
type DocumentStorage interface {
	// Store saves the document and returns an opaque reference to it.
	Store(ctx context.Context, doc domain.DocumentUpload) (string, error)

	// Fetch reads back a stored document by reference.
	Fetch(ctx context.Context, ref string) (*domain.DocumentUpload, error)
}

// DocumentAnalyzer extracts movement data from unstructured documents.
type DocumentAnalyzer interface {
	// Analyze returns the loosely typed extraction for doc.
	Analyze(ctx context.Context, doc domain.DocumentUpload) (*domain.AIExtraction, error)
}

// InvoiceParser reads structured electronic invoices.
type InvoiceParser interface {
	// Parse decodes an XML e-invoice.
	Parse(ctx context.Context, content []byte) (*domain.ElectronicInvoice, error)
}

// IntakeObserver receives pipeline and draft lifecycle signals, typically for metrics.
type IntakeObserver interface {
	IngestionTransition(channel domain.ExtractionChannel, state domain.IngestionState, kind domain.IngestionErrorKind)
	IngestionDuration(channel domain.ExtractionChannel, d time.Duration)
	EntityResolved(entityType domain.EntityType, confidence domain.MatchConfidence)
	SupersededDiscarded()
	DraftCommitted(mode string)
	ActiveDrafts(n int)
}
