package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

type shareCtxKey int

const shareKey shareCtxKey = 7

// ShareClaims authorizes downloading one stored report.
type ShareClaims struct {
	RID string `json:"rid"`
	jwt.RegisteredClaims
}

// ShareSigner issues and checks report download tokens.
type ShareSigner struct {
	secret    []byte
	ttl       time.Duration
	publicURL string
	now       func() time.Time
}

func NewShareSigner(secret string, ttl time.Duration, publicURL string) (*ShareSigner, error) {
	if secret == "" {
		return nil, errors.New("share secret is required")
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &ShareSigner{secret: []byte(secret), ttl: ttl, publicURL: strings.TrimRight(publicURL, "/"), now: time.Now}, nil
}

func (s *ShareSigner) Sign(reportID string) (string, error) {
	now := s.now()
	claims := ShareClaims{RID: reportID, RegisteredClaims: jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *ShareSigner) Parse(tok string) (*ShareClaims, error) {
	t, err := jwt.ParseWithClaims(tok, &ShareClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	if c, ok := t.Claims.(*ShareClaims); ok && t.Valid && c.RID != "" {
		return c, nil
	}
	return nil, errors.New("invalid token")
}

// ShareURL is the public download link for a report. It fails when no
// public URL is configured.
func (s *ShareSigner) ShareURL(reportID string) (string, error) {
	if s.publicURL == "" {
		return "", errors.New("public url not configured")
	}
	tok, err := s.Sign(reportID)
	if err != nil {
		return "", fmt.Errorf("sign share token: %w", err)
	}
	return fmt.Sprintf("%s/api/reports/%s?token=%s", s.publicURL, url.PathEscape(reportID), url.QueryEscape(tok)), nil
}

// RequireShareToken admits requests whose token query parameter names the
// report in the {id} path segment.
func (s *ShareSigner) RequireShareToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := r.URL.Query().Get("token")
		if tok == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := s.Parse(tok)
		if err != nil || c.RID != r.PathValue("id") {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), shareKey, c)))
	})
}

func ShareClaimsFromContext(ctx context.Context) (*ShareClaims, bool) {
	c, ok := ctx.Value(shareKey).(*ShareClaims)
	return c, ok
}
