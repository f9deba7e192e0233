package payments

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestService() *Service {
	return New(nil, time.Hour, zap.NewNop())
}

func TestCreateIntentShape(t *testing.T) {
	svc := newTestService()
	intent, err := svc.CreateIntent(context.Background(), "user-1", 2500, "usd", map[string]string{"cart": "kit"})
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	if !strings.HasPrefix(intent.ID, "pi_") {
		t.Fatalf("expected pi_ prefix, got %s", intent.ID)
	}
	if intent.Status != "requires_payment_method" {
		t.Fatalf("expected requires_payment_method, got %s", intent.Status)
	}
	if !strings.Contains(intent.ClientSecret, "_secret_") {
		t.Fatalf("expected client secret, got %s", intent.ClientSecret)
	}
	if intent.Metadata["userId"] != "user-1" {
		t.Fatalf("expected userId metadata, got %v", intent.Metadata)
	}
}

func TestConfirmAndRefundWithoutRedis(t *testing.T) {
	svc := newTestService()
	intent, err := svc.Confirm(context.Background(), "pi_abc123")
	if err != nil {
		t.Fatalf("confirm error: %v", err)
	}
	if intent.Status != "succeeded" {
		t.Fatalf("expected succeeded, got %s", intent.Status)
	}

	refund, err := svc.Refund(context.Background(), "pi_abc123", 0)
	if err != nil {
		t.Fatalf("refund error: %v", err)
	}
	if !strings.HasPrefix(refund.ID, "re_") {
		t.Fatalf("expected re_ prefix, got %s", refund.ID)
	}
	if refund.Amount != 1000 {
		t.Fatalf("expected mock amount fallback, got %d", refund.Amount)
	}
}

func TestStatusRequiresIntentID(t *testing.T) {
	svc := newTestService()
	if _, err := svc.Status(context.Background(), ""); err != ErrIntentNotFound {
		t.Fatalf("expected ErrIntentNotFound, got %v", err)
	}
}

func TestRandomIDLength(t *testing.T) {
	id := randomID(9)
	if len(id) != 9 {
		t.Fatalf("expected 9 chars, got %d", len(id))
	}
	for _, r := range id {
		if !strings.ContainsRune(idAlphabet, r) {
			t.Fatalf("unexpected rune %q", r)
		}
	}
}
