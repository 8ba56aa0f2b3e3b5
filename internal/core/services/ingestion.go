package services

import (
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/SscSPs/movement_intake/internal/apperrors"
	"github.com/SscSPs/movement_intake/internal/core/domain"
)

// MaxDocumentSize is the upload ceiling in bytes.
const MaxDocumentSize = 10 << 20

// acceptedMediaTypes maps every accepted media type to the channel that handles it.
var acceptedMediaTypes = map[string]domain.ExtractionChannel{
	"application/xml":    domain.ChannelStructured,
	"text/xml":           domain.ChannelStructured,
	"application/pdf":    domain.ChannelUnstructured,
	"image/jpeg":         domain.ChannelUnstructured,
	"image/png":          domain.ChannelUnstructured,
	"image/webp":         domain.ChannelUnstructured,
	"application/msword": domain.ChannelUnstructured,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": domain.ChannelUnstructured,
	"application/vnd.ms-excel": domain.ChannelUnstructured,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": domain.ChannelUnstructured,
	"text/plain": domain.ChannelUnstructured,
}

// ValidateDocument checks the declared media type and size of an upload without touching
// the network. It returns the channel the document belongs to and the bare media type.
func ValidateDocument(doc domain.DocumentUpload) (domain.ExtractionChannel, string, error) {
	mediaType, _, err := mime.ParseMediaType(doc.MediaType)
	if err != nil {
		return "", "", validationFailure("unreadable media type %q", doc.MediaType)
	}
	mediaType = strings.ToLower(mediaType)
	channel, ok := acceptedMediaTypes[mediaType]
	if !ok {
		return "", "", validationFailure("unsupported file type %s", mediaType)
	}

	size := doc.Size
	if n := int64(len(doc.Content)); n > size {
		size = n
	}
	switch {
	case size == 0:
		return "", "", validationFailure("%s is empty", doc.FileName)
	case size > MaxDocumentSize:
		return "", "", validationFailure("%s is %d bytes, the limit is %d", doc.FileName, size, MaxDocumentSize)
	}
	return channel, mediaType, nil
}

func validationFailure(format string, args ...any) error {
	return &domain.IngestionFailure{
		Kind: domain.ErrorKindValidation,
		Err:  fmt.Errorf("%w: %s", apperrors.ErrValidation, fmt.Sprintf(format, args...)),
	}
}

// IngestionTracker is the per-draft ingestion state machine:
//
//	idle -> uploading -> analyzing -> completed | error
//	error -> idle on retry
//
// Every file selection or retry opens a new generation. Callbacks carrying an older generation
// are rejected with apperrors.ErrSuperseded so their results never reach the draft.
// The tracker is not safe for concurrent use; the owning session serializes access.
type IngestionTracker struct {
	state      domain.IngestionState
	generation uint64
	channel    domain.ExtractionChannel
	fileName   string
	fileRef    string
	document   *domain.DocumentUpload
	errorKind  domain.IngestionErrorKind
	message    string
	events     []domain.IngestionEvent
	now        func() time.Time
}

// NewIngestionTracker returns an idle tracker. now may be nil.
func NewIngestionTracker(now func() time.Time) *IngestionTracker {
	if now == nil {
		now = time.Now
	}
	return &IngestionTracker{state: domain.IngestionIdle, now: now}
}

// State returns the current state.
func (t *IngestionTracker) State() domain.IngestionState {
	return t.state
}

// Generation returns the generation of the latest attempt.
func (t *IngestionTracker) Generation() uint64 {
	return t.generation
}

// IsCurrent reports whether generation belongs to the latest attempt.
func (t *IngestionTracker) IsCurrent(generation uint64) bool {
	return generation == t.generation
}

// Select starts a new attempt for doc, superseding any attempt in flight.
// A document that fails validation leaves state and generation untouched.
func (t *IngestionTracker) Select(doc domain.DocumentUpload) (domain.IngestionAttempt, error) {
	channel, mediaType, err := ValidateDocument(doc)
	if err != nil {
		t.record(domain.ErrorKindValidation, err.Error())
		return domain.IngestionAttempt{}, err
	}
	doc.MediaType = mediaType
	if doc.Size == 0 {
		doc.Size = int64(len(doc.Content))
	}

	t.generation++
	t.channel = channel
	t.fileName = doc.FileName
	t.fileRef = ""
	t.document = &doc
	t.transition(domain.IngestionUploading, "", "")
	return domain.IngestionAttempt{Generation: t.generation, Channel: channel, Document: &doc}, nil
}

// Uploaded moves the attempt to analyzing once storage returned a reference.
func (t *IngestionTracker) Uploaded(generation uint64, ref string) error {
	if err := t.expect(generation, domain.IngestionUploading); err != nil {
		return err
	}
	t.fileRef = ref
	t.transition(domain.IngestionAnalyzing, "", "")
	return nil
}

// Complete marks the attempt as merged into the draft.
func (t *IngestionTracker) Complete(generation uint64) error {
	if err := t.expect(generation, domain.IngestionAnalyzing); err != nil {
		return err
	}
	t.document = nil
	t.transition(domain.IngestionCompleted, "", "")
	return nil
}

// Fail moves the attempt to error. An upload failure keeps the document bytes for the retry;
// an analysis failure keeps the stored file reference instead.
func (t *IngestionTracker) Fail(generation uint64, kind domain.IngestionErrorKind, cause error) error {
	if !t.IsCurrent(generation) || !t.state.InFlight() {
		return apperrors.ErrSuperseded
	}
	if kind == domain.ErrorKindAnalysis && t.fileRef != "" {
		t.document = nil
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	t.transition(domain.IngestionError, kind, message)
	return nil
}

// Retry moves error back to idle and opens a new attempt from whatever the failed one kept:
// the stored file goes straight to analysis, retained bytes go back to upload.
func (t *IngestionTracker) Retry() (domain.IngestionAttempt, error) {
	if t.state != domain.IngestionError {
		return domain.IngestionAttempt{}, fmt.Errorf("%w: nothing to retry while ingestion is %s", apperrors.ErrConflict, t.state)
	}
	t.transition(domain.IngestionIdle, "", "")

	switch {
	case t.fileRef != "":
		t.generation++
		t.transition(domain.IngestionAnalyzing, "", "")
		return domain.IngestionAttempt{Generation: t.generation, Channel: t.channel, FileRef: t.fileRef}, nil
	case t.document != nil:
		t.generation++
		t.transition(domain.IngestionUploading, "", "")
		return domain.IngestionAttempt{Generation: t.generation, Channel: t.channel, Document: t.document}, nil
	}
	return domain.IngestionAttempt{}, validationFailure("no file to retry, select the document again")
}

// Abandon supersedes whatever is in flight without starting a new attempt.
func (t *IngestionTracker) Abandon() {
	if t.state.InFlight() {
		t.generation++
		t.document = nil
		t.transition(domain.IngestionIdle, "", "")
	}
}

// Status returns a snapshot of the tracker.
func (t *IngestionTracker) Status() domain.IngestionStatus {
	events := make([]domain.IngestionEvent, len(t.events))
	copy(events, t.events)
	return domain.IngestionStatus{
		State:      t.state,
		Generation: t.generation,
		FileName:   t.fileName,
		FileRef:    t.fileRef,
		ErrorKind:  t.errorKind,
		Message:    t.message,
		Events:     events,
	}
}

// Channel returns the channel of the latest attempt.
func (t *IngestionTracker) Channel() domain.ExtractionChannel {
	return t.channel
}

func (t *IngestionTracker) expect(generation uint64, state domain.IngestionState) error {
	if !t.IsCurrent(generation) || t.state != state {
		return apperrors.ErrSuperseded
	}
	return nil
}

func (t *IngestionTracker) transition(state domain.IngestionState, kind domain.IngestionErrorKind, message string) {
	t.state = state
	t.errorKind = kind
	t.message = message
	t.record(kind, message)
}

func (t *IngestionTracker) record(kind domain.IngestionErrorKind, message string) {
	t.events = append(t.events, domain.IngestionEvent{
		Generation: t.generation,
		State:      t.state,
		ErrorKind:  kind,
		Message:    message,
		At:         t.now().UTC(),
	})
}
