package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewQueue(client, nil), mr
}

func TestEnqueueDequeueArchive(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()
	lectureID := uuid.New()
	ended := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, q.EnqueueLectureArchive(ctx, lectureID, ended))

	job, key, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, QueueArchives, key)
	assert.Equal(t, JobTypeLectureArchive, job.Type)

	var p LectureArchivePayload
	require.NoError(t, json.Unmarshal(job.Payload, &p))
	assert.Equal(t, lectureID, p.LectureID)
	assert.True(t, ended.Equal(p.EndedAt))
}

func TestRetryMovesToDLQ(t *testing.T) {
	q, mr := newQueue(t)
	ctx := context.Background()
	job := &Job{ID: "j1", Type: JobTypeLectureArchive}

	for i := 0; i < MaxRetries-1; i++ {
		require.NoError(t, q.Retry(ctx, job))
	}
	items, err := mr.List(QueueArchives)
	require.NoError(t, err)
	assert.Len(t, items, MaxRetries-1)

	require.NoError(t, q.Retry(ctx, job))
	dlq, err := mr.List(QueueDLQ)
	require.NoError(t, err)
	assert.Len(t, dlq, 1)
}
