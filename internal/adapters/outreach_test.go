package adapters

import (
	"context"
	"errors"
	"testing"

	"acquisition_backend/platform/apperr"
	"acquisition_backend/platform/logger"
)

func TestAckRepliesRejectsMalformedToken(t *testing.T) {
	a := NewOutreachAdapter(nil, &recordingSender{}, nil, nil, logger.New("development"))

	err := a.AckReplies(context.Background(), "41", "not-a-uid")

	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind != apperr.KindValidation {
		t.Fatalf("expected a validation error for a malformed token, got %v", err)
	}
}

func TestAckRepliesNoTokensIsNoop(t *testing.T) {
	a := NewOutreachAdapter(nil, &recordingSender{}, nil, nil, logger.New("development"))

	if err := a.AckReplies(context.Background()); err != nil {
		t.Fatalf("acking nothing must not touch the inbox: %v", err)
	}
}
