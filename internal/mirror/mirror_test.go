package mirror

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDispatchesByScheme(t *testing.T) {
	b, err := New("https://hf-mirror.com")
	require.NoError(t, err)
	assert.IsType(t, httpBackend{}, b)
	assert.Equal(t, "https://hf-mirror.com", b.String())
}

func TestNewRejectsUnknownScheme(t *testing.T) {
	_, err := New("ftp://example.com")
	assert.Error(t, err)
}

func TestObjectKeyJoinsWithSlashes(t *testing.T) {
	assert.Equal(t, "acme/widget/main/config.json", objectKey("acme/widget", "main", "config.json"))
}
