package token

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/streamhub/apiserver/config"
	"github.com/streamhub/apiserver/types"
)

// ErrInvalidToken covers every parse failure: bad signature, wrong
// signing method, expiry, malformed claims. Callers must not learn
// which one it was.
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims are carried by access tokens. The display fields are
// denormalized so cooperating services can render identity without a
// store round-trip; authorization still re-fetches the user.
type AccessClaims struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	jwt.RegisteredClaims
}

// Issuer creates and verifies the access/refresh token pair. Access and
// refresh tokens are signed with distinct secrets and lifetimes.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// Pair bundles a freshly issued access and refresh token.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func NewIssuer(cfg config.AuthConfig) (*Issuer, error) {
	if strings.TrimSpace(cfg.AccessSecret) == "" || strings.TrimSpace(cfg.RefreshSecret) == "" {
		return nil, errors.New("access and refresh token secrets are required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("access and refresh token TTLs must be positive")
	}
	return &Issuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
	}, nil
}

// IssueAccessToken signs a short-lived token carrying the user's
// identity claims.
func (i *Issuer) IssueAccessToken(user types.User) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Username: user.Username,
		Email:    user.Email,
		FullName: user.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.Itoa(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.accessSecret)
}

// IssueRefreshToken signs a long-lived token carrying only the user ID.
// The jti makes every issuance a distinct string even within the same
// second; rotation compares stored token strings, so two identical
// issuances would let a superseded token rotate again.
func (i *Issuer) IssueRefreshToken(user types.User) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   strconv.Itoa(user.ID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.refreshTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.refreshSecret)
}

// IssuePair issues both tokens for the user.
func (i *Issuer) IssuePair(user types.User) (Pair, error) {
	access, err := i.IssueAccessToken(user)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := i.IssueRefreshToken(user)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

// ParseAccessToken verifies signature and expiry against the access
// secret and returns the user ID plus claims.
func (i *Issuer) ParseAccessToken(raw string) (int, AccessClaims, error) {
	claims := AccessClaims{}
	if err := parseInto(raw, &claims, i.accessSecret); err != nil {
		return 0, AccessClaims{}, err
	}
	id, err := subjectID(claims.Subject)
	if err != nil {
		return 0, AccessClaims{}, err
	}
	return id, claims, nil
}

// ParseRefreshToken verifies signature and expiry against the refresh
// secret and returns the user ID.
func (i *Issuer) ParseRefreshToken(raw string) (int, error) {
	claims := jwt.RegisteredClaims{}
	if err := parseInto(raw, &claims, i.refreshSecret); err != nil {
		return 0, err
	}
	return subjectID(claims.Subject)
}

func parseInto(raw string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

func subjectID(subject string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(subject))
	if err != nil || id < 1 {
		return 0, ErrInvalidToken
	}
	return id, nil
}
