package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SscSPs/movement_intake/internal/core/domain"
)

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", `{"amount":"10"}`, `{"amount":"10"}`},
		{"fenced", "```json\n{\"amount\":\"10\"}\n```", `{"amount":"10"}`},
		{"chatty", "Here you go:\n{\"amount\":\"10\"}\nHope it helps", `{"amount":"10"}`},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanModelJSON(tt.raw))
		})
	}
}

func TestDecode(t *testing.T) {
	raw := "```json\n" + `{
		"amount": "1220.00",
		"date": "2024-03-05",
		"movementType": "expense",
		"supplierInfo": {"name": "Acme Srl", "vatNumber": "01234567890", "taxCode": "", "address": ""},
		"customerInfo": {"name": "", "vatNumber": "", "taxCode": "", "address": ""},
		"confidence": 1.7
	}` + "\n```"

	out, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "1220.00", out.Amount)
	require.NotNil(t, out.SupplierInfo)
	assert.Equal(t, "Acme Srl", out.SupplierInfo.Name)
	assert.Nil(t, out.CustomerInfo)
	assert.Equal(t, 1.0, out.Confidence)

	_, err = Decode("no json here")
	assert.Error(t, err)
}

type fakeAnalyzer struct {
	accepts string
	answer  string
}

func (f fakeAnalyzer) Supports(mediaType string) bool { return mediaType == f.accepts }

func (f fakeAnalyzer) Analyze(context.Context, domain.DocumentUpload) (*domain.AIExtraction, error) {
	return &domain.AIExtraction{Description: f.answer}, nil
}

func TestRouter(t *testing.T) {
	r := NewRouter(fakeAnalyzer{accepts: "text/plain", answer: "text"}, nil, fakeAnalyzer{accepts: "application/pdf", answer: "pdf"})
	assert.Equal(t, 2, r.Len())

	out, err := r.Analyze(context.Background(), domain.DocumentUpload{MediaType: "application/pdf"})
	require.NoError(t, err)
	assert.Equal(t, "pdf", out.Description)

	_, err = r.Analyze(context.Background(), domain.DocumentUpload{MediaType: "image/png"})
	assert.ErrorIs(t, err, ErrUnsupportedMedia)
}

func TestPrompt(t *testing.T) {
	p := Prompt(domain.DocumentUpload{FileName: "notes.txt"}, "Totale 10", true)
	assert.Contains(t, p, "File name: notes.txt")
	assert.Contains(t, p, "Document content:\nTotale 10")
	assert.Contains(t, p, "Output must begin with")
}
