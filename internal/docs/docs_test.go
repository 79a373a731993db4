package docs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextPlain(t *testing.T) {
	got, err := Text([]byte("  spec sheet: 500ml\n"), "text/plain; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, "spec sheet: 500ml", got)
}

func TestTextEmpty(t *testing.T) {
	_, err := Text([]byte("   "), "text/markdown")
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestTextUnsupported(t *testing.T) {
	_, err := Text([]byte("PK..."), "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestPDFTextInvalid(t *testing.T) {
	_, err := PDFText([]byte("not a pdf"))
	assert.Error(t, err)
}
