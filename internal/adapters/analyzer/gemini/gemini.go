// Package gemini analyzes documents with Google's Gemini models.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/SscSPs/movement_intake/internal/adapters/analyzer"
	"github.com/SscSPs/movement_intake/internal/adapters/doctext"
	"github.com/SscSPs/movement_intake/internal/core/domain"
)

// inlineTypes are sent to the model as raw bytes.
var inlineTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
}

// Analyzer is a DocumentAnalyzer backed by the Gemini API.
type Analyzer struct {
	client *genai.Client
	model  string
}

// NewAnalyzer creates a Gemini client for apiKey.
func NewAnalyzer(ctx context.Context, apiKey, model string) (*Analyzer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Analyzer{client: client, model: model}, nil
}

// Supports reports whether doc can be sent to Gemini, either inline or as extracted text.
func (a *Analyzer) Supports(mediaType string) bool {
	return inlineTypes[mediaType] || doctext.Supports(mediaType)
}

// Analyze asks the model for an AIExtraction of doc.
func (a *Analyzer) Analyze(ctx context.Context, doc domain.DocumentUpload) (*domain.AIExtraction, error) {
	parts, err := a.parts(doc)
	if err != nil {
		return nil, err
	}
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		return nil, fmt.Errorf("gemini: empty response from model")
	}
	out, err := analyzer.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return out, nil
}

func (a *Analyzer) parts(doc domain.DocumentUpload) ([]*genai.Part, error) {
	if inlineTypes[doc.MediaType] {
		return []*genai.Part{
			{Text: analyzer.Prompt(doc, "", true)},
			{InlineData: &genai.Blob{MIMEType: doc.MediaType, Data: doc.Content}},
		}, nil
	}
	text, err := doctext.Extract(doc.MediaType, doc.Content)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return []*genai.Part{{Text: analyzer.Prompt(doc, text, true)}}, nil
}
