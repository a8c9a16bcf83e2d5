// Package worker runs background jobs for ended lectures: archiving to S3 and reconciling
// participant records the coordinator could not close.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-lms/backend/internal/models"
	"github.com/aura-lms/backend/pkg/queue"
)

// LectureGetter loads a lecture with history and participants.
type LectureGetter interface {
	GetLecture(ctx context.Context, id uuid.UUID) (*models.Lecture, error)
}

// MessageLister lists a lecture's chat messages.
type MessageLister interface {
	ListByLecture(ctx context.Context, lectureID uuid.UUID) ([]models.ChatMessage, error)
}

// ArchiveStore persists an archive document and returns its location.
type ArchiveStore interface {
	PutArchive(ctx context.Context, lectureID string, doc []byte) (string, error)
}

// JobSource is the queue the processor consumes.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Archive is the document written for an ended lecture.
type Archive struct {
	Lecture    *models.Lecture      `json:"lecture"`
	Messages   []models.ChatMessage `json:"messages"`
	EndedAt    time.Time            `json:"ended_at"`
	ArchivedAt time.Time            `json:"archived_at"`
}

// ArchiveProcessor processes lecture archive jobs: load lecture and chat, upload to S3.
type ArchiveProcessor struct {
	lectures LectureGetter
	messages MessageLister
	store    ArchiveStore
	queue    JobSource
	logger   *zap.Logger
	backoff  time.Duration
}

// NewArchiveProcessor creates a lecture archive processor.
func NewArchiveProcessor(lectures LectureGetter, messages MessageLister, store ArchiveStore, q JobSource, logger *zap.Logger) *ArchiveProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveProcessor{
		lectures: lectures,
		messages: messages,
		store:    store,
		queue:    q,
		logger:   logger,
		backoff:  queue.RetryBackoff,
	}
}

// Process executes one archive job.
func (p *ArchiveProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeLectureArchive {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.LectureArchivePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	l, err := p.lectures.GetLecture(ctx, payload.LectureID)
	if err != nil {
		return fmt.Errorf("load lecture %s: %w", payload.LectureID, err)
	}
	if l.Status != models.StatusEnded {
		p.logger.Warn("skipping archive of lecture that is not ended",
			zap.String("lecture_id", l.ID.String()), zap.String("status", string(l.Status)))
		return nil
	}
	msgs, err := p.messages.ListByLecture(ctx, l.ID)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	doc, err := json.Marshal(Archive{Lecture: l, Messages: msgs, EndedAt: payload.EndedAt, ArchivedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal archive: %w", err)
	}
	url, err := p.store.PutArchive(ctx, l.ID.String(), doc)
	if err != nil {
		return fmt.Errorf("store archive: %w", err)
	}
	p.logger.Info("lecture archived",
		zap.String("lecture_id", l.ID.String()),
		zap.Int("messages", len(msgs)),
		zap.String("url", url))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ArchiveProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("archive worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *ArchiveProcessor) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.backoff):
	}
}
