package media

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZegoIssuer_NotConfigured(t *testing.T) {
	z, err := NewZegoIssuer(0, "", 0)
	require.NoError(t, err)
	assert.False(t, z.Configured())
	_, err = z.PublisherToken("lecture-1", uuid.New())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestZegoIssuer_RejectsShortSecret(t *testing.T) {
	_, err := NewZegoIssuer(1, "short", 60)
	assert.Error(t, err)
}

func TestZegoIssuer_IssuesTokens(t *testing.T) {
	z, err := NewZegoIssuer(123456789, strings.Repeat("a", 32), 600)
	require.NoError(t, err)
	user := uuid.New()

	pub, err := z.PublisherToken("lecture-1", user)
	require.NoError(t, err)
	sub, err := z.SubscriberToken("lecture-1", user)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(pub, "04"))
	assert.NotEqual(t, pub, sub)
}
