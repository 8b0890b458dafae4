// Package session gives the agent explicit access to the signed-in user:
// a TokenSource for outbound requests and the Identity (user and org ids)
// stamped on every row the agent writes. An external login flow owns the
// session file; the agent only reads it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/poleshift/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Identity is the caller context stamped on processing records and rows.
type Identity struct {
	UserID string
	OrgID  string
}

func (i Identity) Valid() bool {
	return i.UserID != "" && i.OrgID != ""
}

// TokenSource returns the bearer token for the hosted backend.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed token, e.g. from the environment.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", common.ErrUnauthorized
	}
	return string(s), nil
}

// Claims is the subset of hosted-auth access token claims the agent reads.
type Claims struct {
	jwt.RegisteredClaims
	Email        string         `json:"email,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// OrgID looks for org_id in app metadata first, then user metadata.
func (c *Claims) OrgID() string {
	for _, m := range []map[string]any{c.AppMetadata, c.UserMetadata} {
		if v, ok := m["org_id"].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// ParseClaims parses token. With a secret the HS256 signature and expiry are
// verified; without one the claims are read unverified (the backend verifies
// on every request anyway).
func ParseClaims(token string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	if len(secret) == 0 {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
		}
		return claims, nil
	}

	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, common.ErrTokenExpired
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	return claims, nil
}

type fileSession struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// FileSource reads the session file on every call, so a refresh performed
// by the login flow is picked up without restarting the agent.
type FileSource struct {
	path   string
	secret []byte
	now    func() time.Time
}

func NewFileSource(path string, secret []byte) *FileSource {
	return &FileSource{path: path, secret: secret, now: time.Now}
}

func (s *FileSource) Token(ctx context.Context) (string, error) {
	sess, err := s.read()
	if err != nil {
		return "", err
	}
	if sess.ExpiresAt > 0 && s.now().Unix() >= sess.ExpiresAt {
		return "", common.ErrTokenExpired
	}
	return sess.AccessToken, nil
}

// Identity derives user and org ids from the access token. orgOverride wins
// over the token's org claim when set.
func (s *FileSource) Identity(ctx context.Context, orgOverride string) (Identity, error) {
	tok, err := s.Token(ctx)
	if err != nil {
		return Identity{}, err
	}
	claims, err := ParseClaims(tok, s.secret)
	if err != nil {
		return Identity{}, err
	}

	id := Identity{UserID: claims.Subject, OrgID: claims.OrgID()}
	if orgOverride != "" {
		id.OrgID = orgOverride
	}
	if !id.Valid() {
		return Identity{}, fmt.Errorf("%w: session has no user or org id", common.ErrUnauthorized)
	}
	return id, nil
}

func (s *FileSource) read() (*fileSession, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: no session at %s", common.ErrUnauthorized, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	var sess fileSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if sess.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", common.ErrUnauthorized)
	}
	return &sess, nil
}
