package cdn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPurgerIsInertWithoutCredentials(t *testing.T) {
	p, err := NewPurger("", "", "")
	require.NoError(t, err)
	assert.Nil(t, p)

	// Purging through a nil Purger must be a safe no-op, so callers can
	// build one unconditionally from configuration.
	p.PurgeRepo(context.Background(), "acme/widget", "main", []string{"config.json"})
}
