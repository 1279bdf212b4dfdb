package approval

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"acquisition_backend/platform/apperr"
)

type testAuthConfig struct {
	ttl time.Duration
}

func (c testAuthConfig) GetOperatorKeyHash() string    { return "" }
func (c testAuthConfig) GetOperatorEmail() string      { return "ops@example.com" }
func (c testAuthConfig) GetApprovalLinkSecret() string { return "test-secret-please-rotate" }
func (c testAuthConfig) GetApprovalLinkTTL() time.Duration {
	if c.ttl != 0 {
		return c.ttl
	}
	return time.Hour
}
func (c testAuthConfig) GetAppBaseURL() string { return "https://app.example.com" }

func TestLinkTokenRoundTrip(t *testing.T) {
	signer := NewLinkSigner(testAuthConfig{})
	requestID := uuid.New()

	for _, action := range []LinkAction{LinkApprove, LinkReject} {
		token, err := signer.Sign(requestID, action)
		if err != nil {
			t.Fatalf("sign %s: %v", action, err)
		}

		gotID, gotAction, err := signer.Parse(token)
		if err != nil {
			t.Fatalf("parse %s: %v", action, err)
		}
		if gotID != requestID || gotAction != action {
			t.Fatalf("round trip mismatch: %s/%s", gotID, gotAction)
		}
	}
}

func TestLinkTokenTampered(t *testing.T) {
	signer := NewLinkSigner(testAuthConfig{})
	token, err := signer.Sign(uuid.New(), LinkApprove)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tampered := token[:len(token)-2] + "xx"
	if _, _, err := signer.Parse(tampered); apperr.GetKind(err) != apperr.KindUnauthorized {
		t.Fatalf("tampered token should be unauthorized, got %v", err)
	}

	if _, _, err := signer.Parse("not-a-token"); apperr.GetKind(err) != apperr.KindUnauthorized {
		t.Fatalf("garbage token should be unauthorized, got %v", err)
	}
}

func TestLinkTokenExpired(t *testing.T) {
	signer := NewLinkSigner(testAuthConfig{ttl: -time.Hour})
	token, err := signer.Sign(uuid.New(), LinkApprove)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, _, err = signer.Parse(token)
	if apperr.GetKind(err) != apperr.KindGone {
		t.Fatalf("expired token should report gone, got %v", err)
	}
}

func TestResolveURLEmbedsToken(t *testing.T) {
	signer := NewLinkSigner(testAuthConfig{})

	link, err := signer.ResolveURL(uuid.New(), LinkReject)
	if err != nil {
		t.Fatalf("resolve url: %v", err)
	}
	if !strings.HasPrefix(link, "https://app.example.com/api/v1/approvals/resolve?token=") {
		t.Fatalf("unexpected link shape: %s", link)
	}
}
