package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims are minted once a session's email is verified and handed
// to the chat layer, which accepts them in place of re-checking the row.
type SessionClaims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

type SessionTokenManager struct {
	issuer   string
	audience string
	secret   []byte
	ttl      time.Duration
}

func NewSessionTokenManager(issuer, audience, secret string, ttl time.Duration) *SessionTokenManager {
	return &SessionTokenManager{
		issuer:   issuer,
		audience: audience,
		secret:   []byte(secret),
		ttl:      ttl,
	}
}

// Sign mints an HS256 token whose subject is the session id.
func (m *SessionTokenManager) Sign(sessionID string) (string, error) {
	claims := SessionClaims{
		TokenType: "chat_session",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   sessionID,
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Parse validates a chat session token and returns its claims.
func (m *SessionTokenManager) Parse(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithAudience(m.audience))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid session token")
	}
	if claims.TokenType != "chat_session" {
		return nil, errors.New("unexpected token type")
	}
	return claims, nil
}
