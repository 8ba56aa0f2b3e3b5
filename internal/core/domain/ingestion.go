package domain

import (
	"errors"
	"fmt"
	"time"
)

// IngestionState is the position of a draft's document ingestion in its state machine.
type IngestionState string

const (
	IngestionIdle      IngestionState = "idle"
	IngestionUploading IngestionState = "uploading"
	IngestionAnalyzing IngestionState = "analyzing"
	IngestionCompleted IngestionState = "completed"
	IngestionError     IngestionState = "error"
)

// InFlight reports whether an attempt is currently being processed.
func (s IngestionState) InFlight() bool {
	return s == IngestionUploading || s == IngestionAnalyzing
}

// IngestionErrorKind classifies ingestion failures.
type IngestionErrorKind string

const (
	ErrorKindValidation IngestionErrorKind = "ValidationError"
	ErrorKindUpload     IngestionErrorKind = "UploadFailed"
	ErrorKindAnalysis   IngestionErrorKind = "AnalysisFailed"
)

// IngestionFailure is an error raised by the ingestion pipeline together with its kind.
type IngestionFailure struct {
	Kind IngestionErrorKind
	Err  error
}

func (e *IngestionFailure) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *IngestionFailure) Unwrap() error {
	return e.Err
}

// FailureKind extracts the ingestion error kind from err, if any.
func FailureKind(err error) (IngestionErrorKind, bool) {
	var failure *IngestionFailure
	if errors.As(err, &failure) {
		return failure.Kind, true
	}
	return "", false
}

// DocumentUpload is a file selected by the user for ingestion.
type DocumentUpload struct {
	FileName  string
	MediaType string
	Size      int64
	Content   []byte
}

// IngestionAttempt identifies one pass through the pipeline. Generation grows by one on every
// new file selection or retry; only the attempt holding the latest generation may touch the draft.
type IngestionAttempt struct {
	Generation uint64
	Channel    ExtractionChannel
	Document   *DocumentUpload // nil when the attempt re-analyzes an already stored file
	FileRef    string          // set when the file is already in storage
}

// IngestionEvent is a UI-facing record of a state transition.
type IngestionEvent struct {
	Generation uint64             `json:"generation"`
	State      IngestionState     `json:"state"`
	ErrorKind  IngestionErrorKind `json:"errorKind,omitempty"`
	Message    string             `json:"message,omitempty"`
	At         time.Time          `json:"at"`
}

// IngestionStatus is the current ingestion snapshot of a draft.
type IngestionStatus struct {
	State      IngestionState     `json:"state"`
	Generation uint64             `json:"generation"`
	FileName   string             `json:"fileName,omitempty"`
	FileRef    string             `json:"fileRef,omitempty"`
	ErrorKind  IngestionErrorKind `json:"errorKind,omitempty"`
	Message    string             `json:"message,omitempty"`
	Events     []IngestionEvent   `json:"events"`
}

// DraftState is the read model of a draft session.
type DraftState struct {
	DraftID     string           `json:"draftID"`
	Draft       *MovementDraft   `json:"draft"`
	Origins     map[Field]Origin `json:"origins"`
	Ingestion   IngestionStatus  `json:"ingestion"`
	Annotations []Annotation     `json:"annotations"`
}

// FieldEdit is one user write against a draft. An empty Value clears the field.
type FieldEdit struct {
	Field Field  `json:"field"`
	Value string `json:"value"`
}
