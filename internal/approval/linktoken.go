package approval

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"acquisition_backend/platform/apperr"
	"acquisition_backend/platform/config"
)

// LinkAction is the decision carried inside a one-click link.
type LinkAction string

const (
	LinkApprove LinkAction = "approve"
	LinkReject  LinkAction = "reject"
)

// LinkSigner mints and verifies the signed tokens embedded in one-click
// approval links, so a decision can be taken straight from the
// notification email without logging in.
type LinkSigner struct {
	secret  []byte
	ttl     time.Duration
	baseURL string
}

func NewLinkSigner(cfg config.AuthConfig) *LinkSigner {
	return &LinkSigner{
		secret:  []byte(cfg.GetApprovalLinkSecret()),
		ttl:     cfg.GetApprovalLinkTTL(),
		baseURL: cfg.GetAppBaseURL(),
	}
}

// Sign returns a token for deciding the given request.
func (s *LinkSigner) Sign(requestID uuid.UUID, action LinkAction) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": requestID.String(),
		"act": string(action),
		"exp": now.Add(s.ttl).Unix(),
		"iat": now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Parse verifies a link token and returns the request ID and action.
// Expired links report Gone so the operator gets a clear message instead
// of a generic auth failure.
func (s *LinkSigner) Parse(tokenString string) (uuid.UUID, LinkAction, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, "", apperr.Gone("approval link expired")
		}
		return uuid.Nil, "", apperr.Unauthorized("invalid approval link")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return uuid.Nil, "", apperr.Unauthorized("invalid approval link")
	}

	sub, _ := claims["sub"].(string)
	requestID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, "", apperr.Unauthorized("invalid approval link")
	}

	act, _ := claims["act"].(string)
	action := LinkAction(act)
	if action != LinkApprove && action != LinkReject {
		return uuid.Nil, "", apperr.Unauthorized("invalid approval link")
	}

	return requestID, action, nil
}

// ResolveURL builds the clickable link for the given decision.
func (s *LinkSigner) ResolveURL(requestID uuid.UUID, action LinkAction) (string, error) {
	token, err := s.Sign(requestID, action)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/api/v1/approvals/resolve?token=%s", s.baseURL, url.QueryEscape(token)), nil
}
