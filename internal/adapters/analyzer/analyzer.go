// Package analyzer holds what the AI document analyzers share: the extraction prompt,
// response decoding and routing by media type.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/SscSPs/movement_intake/internal/core/domain"
)

// ErrUnsupportedMedia is returned when no analyzer accepts a document's media type.
var ErrUnsupportedMedia = errors.New("no analyzer for media type")

// MediaAnalyzer is a DocumentAnalyzer that declares which media types it reads.
type MediaAnalyzer interface {
	Analyze(ctx context.Context, doc domain.DocumentUpload) (*domain.AIExtraction, error)
	Supports(mediaType string) bool
}

// Router hands each document to the first analyzer that supports its media type.
type Router struct {
	analyzers []MediaAnalyzer
}

// NewRouter returns a Router trying analyzers in order. Nil entries are skipped.
func NewRouter(analyzers ...MediaAnalyzer) *Router {
	r := &Router{}
	for _, a := range analyzers {
		if a != nil {
			r.analyzers = append(r.analyzers, a)
		}
	}
	return r
}

// Len returns the number of configured analyzers.
func (r *Router) Len() int {
	return len(r.analyzers)
}

// Supports reports whether any analyzer accepts mediaType.
func (r *Router) Supports(mediaType string) bool {
	for _, a := range r.analyzers {
		if a.Supports(mediaType) {
			return true
		}
	}
	return false
}

// Analyze implements the DocumentAnalyzer port.
func (r *Router) Analyze(ctx context.Context, doc domain.DocumentUpload) (*domain.AIExtraction, error) {
	for _, a := range r.analyzers {
		if a.Supports(doc.MediaType) {
			return a.Analyze(ctx, doc)
		}
	}
	return nil, fmt.Errorf("%w %s", ErrUnsupportedMedia, doc.MediaType)
}

const basePrompt = `You are an assistant for an Italian small-business bookkeeping tool.
Read the attached document (an invoice, receipt, bank notice or similar) and extract the data
needed to record a single cash movement.

Rules:
- Amounts use a dot as decimal separator and no thousands separator, e.g. "1220.00".
- "amount" is the total actually paid or received, VAT included.
- Dates use the YYYY-MM-DD format.
- "movementType" is "income" when the business receives money and "expense" when it pays.
- Fill "supplierInfo" when the document was issued to the business by someone else,
  "customerInfo" when the business issued it. Leave the other one with empty fields.
- VAT numbers are written without the country prefix.
- Use an empty string for anything you cannot read. Never guess numbers.
- "confidence" is your overall confidence between 0.0 and 1.0.
- Put doubts and remarks for the user in "processingNotes".
`

const jsonRules = `
Return ONLY valid raw JSON with exactly these keys:
amount, date, movementType, description, documentNumber, supplierInfo, customerInfo,
vatAmount, netAmount, vatRate, confidence, processingNotes.
supplierInfo and customerInfo are objects with keys name, vatNumber, taxCode, address.
Do NOT wrap the response in code fences.
Output must begin with "{" and end with "}".
`

// Prompt builds the extraction prompt. text is the document content when it was converted
// to text beforehand; withJSONRules adds output instructions for models without schema support.
func Prompt(doc domain.DocumentUpload, text string, withJSONRules bool) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)
	if withJSONRules {
		sb.WriteString(jsonRules)
	}
	fmt.Fprintf(&sb, "\nFile name: %s\n", doc.FileName)
	if text != "" {
		sb.WriteString("\nDocument content:\n")
		sb.WriteString(text)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// CleanModelJSON strips Markdown fences and any text around the outermost JSON object.
func CleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}

// Decode parses a model answer into an AIExtraction.
func Decode(raw string) (*domain.AIExtraction, error) {
	clean := CleanModelJSON(raw)
	if clean == "" {
		return nil, errors.New("empty response from model")
	}
	var out domain.AIExtraction
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return nil, fmt.Errorf("unmarshal model JSON: %w", err)
	}
	if out.SupplierInfo != nil && out.SupplierInfo.IsZero() {
		out.SupplierInfo = nil
	}
	if out.CustomerInfo != nil && out.CustomerInfo.IsZero() {
		out.CustomerInfo = nil
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	} else if out.Confidence > 1 {
		out.Confidence = 1
	}
	return &out, nil
}
