package auth

import (
	"errors"
	"strings"
	"time"

	"skillswap/backend/internal/apperr"

	jwt "github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of tokens minted by Issue.
const DefaultTokenTTL = 72 * time.Hour

// Service verifies bearer tokens issued by the account service and, for
// development and the admin CLI, mints them.
type Service struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewService(secret, issuer string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Service{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Issue signs a token whose subject is identity.
func (s *Service) Issue(identity string) (string, error) {
	if strings.TrimSpace(identity) == "" {
		return "", errors.New("identity required")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": identity,
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
		"iss": s.issuer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Authenticate returns the identity carried by a valid token.
func (s *Service) Authenticate(raw string) (string, error) {
	const op = "auth.Authenticate"
	if raw == "" {
		return "", apperr.New(apperr.ErrUnauthenticated, op, "token required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) { return s.secret, nil }, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", apperr.New(apperr.ErrUnauthenticated, op, "token expired")
		}
		return "", apperr.New(apperr.ErrUnauthenticated, op, "invalid token")
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", apperr.New(apperr.ErrUnauthenticated, op, "token has no subject")
	}
	return sub, nil
}
