package dto

import (
	"github.com/SscSPs/movement_intake/internal/core/domain"
)

// CreateDraftRequest starts a new draft session.
type CreateDraftRequest struct {
	CompanyID string `json:"companyId"` // Optional: pre-selects the company
}

// OpenDraftRequest starts a draft session editing a persisted movement.
type OpenDraftRequest struct {
	MovementID string `json:"movementId" binding:"required"`
}

// FieldEditRequest is a single field write.
type FieldEditRequest struct {
	Field string `json:"field" binding:"required"`
	Value string `json:"value"` // Empty clears the field
}

// ApplyEditsRequest carries an ordered batch of field writes.
type ApplyEditsRequest struct {
	Edits []FieldEditRequest `json:"edits" binding:"required,min=1,dive"`
}

// ToFieldEdits converts the request to domain edits, preserving order.
func (r ApplyEditsRequest) ToFieldEdits() []domain.FieldEdit {
	edits := make([]domain.FieldEdit, len(r.Edits))
	for i, e := range r.Edits {
		edits[i] = domain.FieldEdit{Field: domain.Field(e.Field), Value: e.Value}
	}
	return edits
}

// DraftFieldResponse is the rendered value of a draft field and who produced it.
type DraftFieldResponse struct {
	Value  string        `json:"value"`
	Origin domain.Origin `json:"origin,omitempty"`
}

// DraftResponse is the client view of a draft session.
type DraftResponse struct {
	DraftID       string                        `json:"draftID"`
	MovementID    string                        `json:"movementID,omitempty"` // Set in edit mode
	Fields        map[string]DraftFieldResponse `json:"fields"`
	VatOverridden bool                          `json:"vatOverridden"`
	Ingestion     IngestionStatusResponse       `json:"ingestion"`
	Annotations   []domain.Annotation           `json:"annotations"`
}

// IngestionStatusResponse mirrors domain.IngestionStatus.
type IngestionStatusResponse struct {
	State      domain.IngestionState     `json:"state"`
	Generation uint64                    `json:"generation"`
	FileName   string                    `json:"fileName,omitempty"`
	FileRef    string                    `json:"fileRef,omitempty"`
	ErrorKind  domain.IngestionErrorKind `json:"errorKind,omitempty"`
	Message    string                    `json:"message,omitempty"`
	Events     []domain.IngestionEvent   `json:"events"`
}

// ToDraftResponse renders a draft state. Every field is present, unset ones as "".
func ToDraftResponse(state *domain.DraftState) DraftResponse {
	resp := DraftResponse{
		DraftID:     state.DraftID,
		Fields:      make(map[string]DraftFieldResponse, len(domain.AllFields)),
		Ingestion:   ToIngestionStatusResponse(&state.Ingestion),
		Annotations: state.Annotations,
	}
	if resp.Annotations == nil {
		resp.Annotations = []domain.Annotation{}
	}
	if d := state.Draft; d != nil {
		resp.MovementID = d.MovementID
		resp.VatOverridden = d.VatOverridden
		for _, f := range domain.AllFields {
			resp.Fields[string(f)] = DraftFieldResponse{Value: d.Get(f), Origin: state.Origins[f]}
		}
	}
	return resp
}

// ToIngestionStatusResponse converts a domain.IngestionStatus.
func ToIngestionStatusResponse(s *domain.IngestionStatus) IngestionStatusResponse {
	events := s.Events
	if events == nil {
		events = []domain.IngestionEvent{}
	}
	return IngestionStatusResponse{
		State:      s.State,
		Generation: s.Generation,
		FileName:   s.FileName,
		FileRef:    s.FileRef,
		ErrorKind:  s.ErrorKind,
		Message:    s.Message,
		Events:     events,
	}
}
