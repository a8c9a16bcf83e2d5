package lectures

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-lms/backend/internal/models"
)

func TestSeed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id, teacher := uuid.New(), uuid.New()
	in := `[
		{"id": "` + id.String() + `", "teacher_id": "` + teacher.String() + `", "title": "Optics", "is_paid": true, "price_amount": 50000, "currency": "IDR", "status": "ended"},
		{"teacher_id": "` + teacher.String() + `", "title": "Waves"}
	]`

	n, err := Seed(ctx, s, strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	l, err := s.GetLecture(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Optics", l.Title)
	assert.True(t, l.IsPaid)
	assert.Equal(t, models.StatusIdle, l.Status)
	assert.Equal(t, models.ContentLive, l.ContentType)
	assert.Equal(t, "lecture-"+id.String(), l.ChannelName)
}

func TestSeed_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Seed(ctx, NewMemoryStore(), strings.NewReader(`{"not": "an array"}`))
	assert.Error(t, err)

	n, err := Seed(ctx, NewMemoryStore(), strings.NewReader(`[{"title": "no teacher"}]`))
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	assert.Equal(t, 0, n)

	id, teacher := uuid.New(), uuid.New()
	dup := `[{"id": "` + id.String() + `", "teacher_id": "` + teacher.String() + `"}, {"id": "` + id.String() + `", "teacher_id": "` + teacher.String() + `"}]`
	n, err = Seed(ctx, NewMemoryStore(), strings.NewReader(dup))
	assert.Error(t, err)
	assert.Equal(t, 1, n)
}
