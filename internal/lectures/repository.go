package lectures

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-lms/backend/internal/models"
)

const lectureColumns = `id, course_id, teacher_id, title, channel_name, content_type, status,
	is_paid, price_amount, currency, private_chat, messaging_disabled, created_at, updated_at`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the PostgreSQL Store. Mutations lock the lecture row
// (SELECT ... FOR UPDATE) so concurrent sockets serialize per lecture.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a lecture repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanLecture(row pgx.Row) (*models.Lecture, error) {
	var l models.Lecture
	err := row.Scan(&l.ID, &l.CourseID, &l.TeacherID, &l.Title, &l.ChannelName, &l.ContentType, &l.Status,
		&l.IsPaid, &l.PriceAmount, &l.Currency, &l.PrivateChat, &l.MessagingDisabled, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func notFound(id uuid.UUID, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("lecture %s: %w", id, models.ErrNotFound)
	}
	return err
}

func (r *Repository) load(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*models.Lecture, error) {
	sql := `SELECT ` + lectureColumns + ` FROM lectures WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	l, err := scanLecture(q.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, notFound(id, err)
	}
	if err := r.loadChildren(ctx, q, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (r *Repository) loadChildren(ctx context.Context, q querier, l *models.Lecture) error {
	rows, err := q.Query(ctx,
		`SELECT action, occurred_at FROM lecture_connection_events WHERE lecture_id = $1 ORDER BY id`, l.ID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	for rows.Next() {
		var ev models.ConnectionEvent
		if err := rows.Scan(&ev.Action, &ev.Timestamp); err != nil {
			rows.Close()
			return err
		}
		l.ConnectionHistory = append(l.ConnectionHistory, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = q.Query(ctx,
		`SELECT user_id, email, joined_at, left_at FROM lecture_participants WHERE lecture_id = $1 ORDER BY id`, l.ID)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p models.ParticipantRecord
		if err := rows.Scan(&p.UserID, &p.Email, &p.JoinedAt, &p.LeftAt); err != nil {
			return err
		}
		l.Participants = append(l.Participants, p)
	}
	return rows.Err()
}

// GetLecture returns the lecture with its history and participant records.
func (r *Repository) GetLecture(ctx context.Context, id uuid.UUID) (*models.Lecture, error) {
	return r.load(ctx, r.pool, id, false)
}

// UpdateLecture applies upd under a row lock after guard accepts the current state.
func (r *Repository) UpdateLecture(ctx context.Context, id uuid.UUID, upd LectureUpdate, guard Guard) (*models.Lecture, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := r.load(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if guard != nil {
		if err := guard(current); err != nil {
			return nil, err
		}
	}

	var status *string
	if upd.Status != nil {
		s := string(*upd.Status)
		status = &s
	}
	const q = `UPDATE lectures SET status = COALESCE($2, status), private_chat = COALESCE($3, private_chat),
		messaging_disabled = COALESCE($4, messaging_disabled), updated_at = NOW() WHERE id = $1`
	if _, err := tx.Exec(ctx, q, id, status, upd.PrivateChat, upd.MessagingDisabled); err != nil {
		return nil, fmt.Errorf("update lecture: %w", err)
	}
	if upd.Event != nil {
		if err := appendEvent(ctx, tx, id, *upd.Event); err != nil {
			return nil, err
		}
	}
	updated, err := r.load(ctx, tx, id, false)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

func appendEvent(ctx context.Context, tx pgx.Tx, id uuid.UUID, action models.ConnectionAction) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO lecture_connection_events (lecture_id, action, occurred_at) VALUES ($1, $2, NOW())`,
		id, string(action))
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// AppendConnectionHistory appends one audit event.
func (r *Repository) AppendConnectionHistory(ctx context.Context, id uuid.UUID, action models.ConnectionAction) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)
	var exists int
	if err := tx.QueryRow(ctx, `SELECT 1 FROM lectures WHERE id = $1 FOR UPDATE`, id).Scan(&exists); err != nil {
		return notFound(id, err)
	}
	if err := appendEvent(ctx, tx, id, action); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpsertParticipant refreshes the user's most recent record or inserts a new one.
func (r *Repository) UpsertParticipant(ctx context.Context, id, userID uuid.UUID, email string) (*models.ParticipantRecord, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var status models.LectureStatus
	if err := tx.QueryRow(ctx, `SELECT status FROM lectures WHERE id = $1 FOR UPDATE`, id).Scan(&status); err != nil {
		return nil, notFound(id, err)
	}
	if status == models.StatusEnded {
		return nil, fmt.Errorf("lecture %s: %w", id, models.ErrLectureEnded)
	}

	var recID int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM lecture_participants WHERE lecture_id = $1 AND user_id = $2 ORDER BY joined_at DESC LIMIT 1`,
		id, userID).Scan(&recID)
	var row pgx.Row
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		row = tx.QueryRow(ctx,
			`INSERT INTO lecture_participants (lecture_id, user_id, email, joined_at) VALUES ($1, $2, $3, NOW())
			 RETURNING user_id, email, joined_at, left_at`,
			id, userID, email)
	case err != nil:
		return nil, fmt.Errorf("find participant: %w", err)
	default:
		row = tx.QueryRow(ctx,
			`UPDATE lecture_participants SET left_at = NULL, joined_at = NOW(), email = COALESCE(NULLIF($2, ''), email)
			 WHERE id = $1 RETURNING user_id, email, joined_at, left_at`,
			recID, email)
	}
	var p models.ParticipantRecord
	if err := row.Scan(&p.UserID, &p.Email, &p.JoinedAt, &p.LeftAt); err != nil {
		return nil, fmt.Errorf("upsert participant: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &p, nil
}

// MarkParticipantLeft closes every open record of userID in the lecture.
func (r *Repository) MarkParticipantLeft(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE lecture_participants SET left_at = NOW() WHERE lecture_id = $1 AND user_id = $2 AND left_at IS NULL`,
		id, userID)
	if err != nil {
		return fmt.Errorf("mark participant left: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.exists(ctx, id)
	}
	return nil
}

// MarkAllParticipantsLeft closes every open record in the lecture.
func (r *Repository) MarkAllParticipantsLeft(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE lecture_participants SET left_at = NOW() WHERE lecture_id = $1 AND left_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("mark all participants left: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.exists(ctx, id)
	}
	return nil
}

func (r *Repository) exists(ctx context.Context, id uuid.UUID) error {
	var one int
	if err := r.pool.QueryRow(ctx, `SELECT 1 FROM lectures WHERE id = $1`, id).Scan(&one); err != nil {
		return notFound(id, err)
	}
	return nil
}

// ListLiveByTeacher returns the teacher's live lectures (without children).
func (r *Repository) ListLiveByTeacher(ctx context.Context, teacherID uuid.UUID) ([]models.Lecture, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+lectureColumns+` FROM lectures WHERE teacher_id = $1 AND status = $2 ORDER BY created_at`,
		teacherID, string(models.StatusLive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Lecture
	for rows.Next() {
		l, err := scanLecture(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *l)
	}
	return list, rows.Err()
}

// ListEndedWithOpenParticipants finds ended lectures whose cleanup did not complete.
func (r *Repository) ListEndedWithOpenParticipants(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT l.id FROM lectures l JOIN lecture_participants p ON p.lecture_id = l.id
		 WHERE l.status = $1 AND p.left_at IS NULL`, string(models.StatusEnded))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
