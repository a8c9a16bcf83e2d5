package auth

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-lms/backend/internal/models"
)

type memUsers map[uuid.UUID]*models.User

func (m memUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return u, nil
}

func TestJWTService_SecretPerUserType(t *testing.T) {
	svc := NewJWTService("teacher-secret", "student-secret", 1)
	id := uuid.New()
	token, err := svc.Generate(id, "t@school.test", models.RoleTeacher)
	require.NoError(t, err)

	claims, err := svc.Validate(token, models.RoleTeacher)
	require.NoError(t, err)
	assert.Equal(t, id, claims.UserID)

	_, err = svc.Validate(token, models.RoleStudent)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = svc.Validate("garbage", models.RoleTeacher)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_SharedSecretStillChecksRole(t *testing.T) {
	svc := NewJWTService("same", "same", 1)
	token, err := svc.Generate(uuid.New(), "s@school.test", models.RoleStudent)
	require.NoError(t, err)

	_, err = svc.Validate(token, models.RoleTeacher)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = svc.Validate(token, models.RoleStudent)
	assert.NoError(t, err)
}

func TestResolver(t *testing.T) {
	svc := NewJWTService("teacher-secret", "student-secret", 1)
	teacher := &models.User{ID: uuid.New(), Email: "t@school.test", Role: models.RoleTeacher}
	r := NewResolver(svc, memUsers{teacher.ID: teacher}, nil)
	ctx := context.Background()

	token, err := svc.Generate(teacher.ID, "", models.RoleTeacher)
	require.NoError(t, err)

	id, err := r.Resolve(ctx, token, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.Identity{ID: teacher.ID, Role: models.RoleTeacher, Email: "t@school.test"}, id)

	_, err = r.Resolve(ctx, token, "guest")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = r.Resolve(ctx, "", "admin")
	assert.ErrorIs(t, err, ErrInvalidToken)

	id, err = r.ResolveBearer(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, id.Role)

	unknown, err := svc.Generate(uuid.New(), "x@school.test", models.RoleTeacher)
	require.NoError(t, err)
	_, err = r.Resolve(ctx, unknown, "teacher")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestResolver_BearerFallsBackToStudent(t *testing.T) {
	svc := NewJWTService("teacher-secret", "student-secret", 1)
	r := NewResolver(svc, nil, nil)
	sid := uuid.New()
	token, err := svc.Generate(sid, "s@school.test", models.RoleStudent)
	require.NoError(t, err)

	id, err := r.ResolveBearer(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, sid, id.ID)
	assert.Equal(t, models.RoleStudent, id.Role)
}
