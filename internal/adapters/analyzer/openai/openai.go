// Package openai analyzes text documents with the OpenAI Responses API.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"

	"github.com/SscSPs/movement_intake/internal/adapters/analyzer"
	"github.com/SscSPs/movement_intake/internal/adapters/doctext"
	"github.com/SscSPs/movement_intake/internal/core/domain"
)

// Analyzer is a DocumentAnalyzer backed by OpenAI structured outputs.
// Only documents convertible to text are supported.
type Analyzer struct {
	client *openai.Client
	model  string
	schema map[string]any
}

// NewAnalyzer creates an OpenAI client for apiKey.
func NewAnalyzer(apiKey, model string) (*Analyzer, error) {
	schema, err := extractionSchema()
	if err != nil {
		return nil, err
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Analyzer{client: &client, model: model, schema: schema}, nil
}

// Supports reports whether doc can be converted to text for the model.
func (a *Analyzer) Supports(mediaType string) bool {
	return doctext.Supports(mediaType)
}

// Analyze asks the model for an AIExtraction of doc.
func (a *Analyzer) Analyze(ctx context.Context, doc domain.DocumentUpload) (*domain.AIExtraction, error) {
	text, err := doctext.Extract(doc.MediaType, doc.Content)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(a.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(analyzer.Prompt(doc, text, false)),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "movement_extraction",
					Strict:      param.NewOpt(true),
					Schema:      a.schema,
					Description: param.NewOpt("Cash movement data read from a business document"),
				},
			},
		},
	}

	resp, err := a.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai responses error: %w", err)
	}

	content := resp.OutputText()
	if content == "" {
		return nil, fmt.Errorf("openai: empty response content")
	}
	out, err := analyzer.Decode(content)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return out, nil
}

// extractionSchema reflects domain.AIExtraction into the map form the API expects.
func extractionSchema() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schemaJSON, err := json.Marshal(reflector.Reflect(domain.AIExtraction{}))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(schemaJSON, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema to map: %w", err)
	}
	return schemaMap, nil
}
