package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-lms/backend/internal/models"
)

// UserGetter looks up platform users.
type UserGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Resolver turns a presented credential into an immutable models.Identity.
type Resolver struct {
	jwt    *JWTService
	users  UserGetter
	logger *zap.Logger
}

// NewResolver creates an identity resolver. users may be nil, in which case the
// token claims are trusted without a user lookup.
func NewResolver(jwt *JWTService, users UserGetter, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{jwt: jwt, users: users, logger: logger}
}

// Resolve validates token for the given handshake user type ("admin"/"teacher" or "user"/"student").
func (r *Resolver) Resolve(ctx context.Context, token, userType string) (models.Identity, error) {
	role, ok := models.ParseRole(userType)
	if !ok {
		return models.Identity{}, fmt.Errorf("unknown user type %q: %w", userType, models.ErrUnauthorized)
	}
	return r.resolve(ctx, token, role)
}

// ResolveBearer validates a bearer token of either user type.
func (r *Resolver) ResolveBearer(ctx context.Context, token string) (models.Identity, error) {
	id, err := r.resolve(ctx, token, models.RoleTeacher)
	if err == nil || !errors.Is(err, ErrInvalidToken) {
		return id, err
	}
	return r.resolve(ctx, token, models.RoleStudent)
}

func (r *Resolver) resolve(ctx context.Context, token string, role models.Role) (models.Identity, error) {
	if token == "" {
		return models.Identity{}, fmt.Errorf("missing token: %w", ErrInvalidToken)
	}
	claims, err := r.jwt.Validate(token, role)
	if err != nil {
		return models.Identity{}, err
	}
	id := models.Identity{ID: claims.UserID, Role: role, Email: claims.Email}
	if r.users == nil {
		return id, nil
	}
	u, err := r.users.GetByID(ctx, claims.UserID)
	if err != nil {
		r.logger.Warn("credential for unknown user", zap.String("user_id", claims.UserID.String()), zap.Error(err))
		return models.Identity{}, fmt.Errorf("user lookup: %w", models.ErrUnauthorized)
	}
	if u.Role != role {
		return models.Identity{}, fmt.Errorf("user %s is not a %s: %w", u.ID, role, models.ErrUnauthorized)
	}
	if id.Email == "" {
		id.Email = u.Email
	}
	return id, nil
}
