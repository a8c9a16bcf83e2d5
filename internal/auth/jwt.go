package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aura-lms/backend/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// Claims holds JWT claims including user ID and role.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}

// JWTService validates platform credentials. Teachers and students are issued tokens
// signed with different secrets, so the caller's user type selects the key.
type JWTService struct {
	secrets     map[models.Role][]byte
	expireHours int
}

// NewJWTService creates a JWT service.
func NewJWTService(teacherSecret, studentSecret string, expireHours int) *JWTService {
	return &JWTService{
		secrets: map[models.Role][]byte{
			models.RoleTeacher: []byte(teacherSecret),
			models.RoleStudent: []byte(studentSecret),
		},
		expireHours: expireHours,
	}
}

// Generate creates a new JWT for the user. Used by tooling and tests; platform logins
// are issued elsewhere.
func (s *JWTService) Generate(userID uuid.UUID, email string, role models.Role) (string, error) {
	secret, ok := s.secrets[role]
	if !ok {
		return "", ErrInvalidToken
	}
	claims := Claims{
		UserID: userID,
		Email:  email,
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(s.expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Validate parses and validates a JWT signed for role, returning claims or error.
func (s *JWTService) Validate(tokenString string, role models.Role) (*Claims, error) {
	secret, ok := s.secrets[role]
	if !ok || len(secret) == 0 {
		return nil, ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == uuid.Nil {
		return nil, ErrInvalidToken
	}
	// Secrets may be shared, so a role claim must agree with the requested role.
	if claims.Role != "" {
		if r, ok := models.ParseRole(claims.Role); !ok || r != role {
			return nil, ErrInvalidToken
		}
	}
	return claims, nil
}
