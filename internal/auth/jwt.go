package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// Claims holds JWT claims for both admins and session guests. For guests,
// SubjectID is the guest record ID and SessionID scopes the token to one
// session; admins carry a nil SessionID.
type Claims struct {
	SubjectID uuid.UUID  `json:"subject_id"`
	SessionID *uuid.UUID `json:"session_id,omitempty"`
	Name      string     `json:"name"`
	Role      string     `json:"role"`
	jwt.RegisteredClaims
}

// JWTService handles token generation and validation.
type JWTService struct {
	secret      []byte
	expireHours int
}

// NewJWTService creates a JWT service.
func NewJWTService(secret string, expireHours int) *JWTService {
	return &JWTService{
		secret:      []byte(secret),
		expireHours: expireHours,
	}
}

// GenerateAdmin creates a JWT for a registered admin.
func (s *JWTService) GenerateAdmin(userID uuid.UUID, name string) (string, error) {
	return s.generate(Claims{
		SubjectID: userID,
		Name:      name,
		Role:      "admin",
	})
}

// GenerateGuest creates a session-scoped JWT for a guest.
func (s *JWTService) GenerateGuest(guestID, sessionID uuid.UUID, name string) (string, error) {
	return s.generate(Claims{
		SubjectID: guestID,
		SessionID: &sessionID,
		Name:      name,
		Role:      "guest",
	})
}

func (s *JWTService) generate(claims Claims) (string, error) {
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(s.expireHours) * time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ID:        uuid.New().String(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a JWT, returning claims or error.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
