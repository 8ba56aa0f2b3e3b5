package gcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SscSPs/movement_intake/internal/apperrors"
)

func TestSplitURI(t *testing.T) {
	bucket, object, err := splitURI("gs://intake-docs/documents/abc/invoice.pdf")
	require.NoError(t, err)
	assert.Equal(t, "intake-docs", bucket)
	assert.Equal(t, "documents/abc/invoice.pdf", object)

	for _, bad := range []string{"s3://bucket/file", "gs://bucket", "gs:///file", "gs://bucket/"} {
		_, _, err := splitURI(bad)
		assert.ErrorIs(t, err, apperrors.ErrValidation, bad)
	}
}
