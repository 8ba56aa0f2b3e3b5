package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractionSchema(t *testing.T) {
	schema, err := extractionSchema()
	require.NoError(t, err)

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, false, schema["additionalProperties"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"amount", "date", "movementType", "supplierInfo", "customerInfo", "confidence", "processingNotes"} {
		assert.Contains(t, props, key)
	}

	required, ok := schema["required"].([]any)
	require.True(t, ok)
	assert.Len(t, required, len(props))
}

func TestAnalyzer_Supports(t *testing.T) {
	a, err := NewAnalyzer("test-key", "gpt-4.1-mini")
	require.NoError(t, err)
	assert.True(t, a.Supports("text/plain"))
	assert.False(t, a.Supports("application/pdf"))
}
