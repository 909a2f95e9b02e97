package worker

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"encore.app/svc/payments/providers"
)

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestHandleWebhookUnreadableBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook/stripe", brokenReader{})
	rec := httptest.NewRecorder()

	handleWebhook(rec, req, providers.ForName("stripe"), "sig")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "PAY_INVALID_PAYLOAD") {
		t.Fatalf("expected PAY_INVALID_PAYLOAD in body, got %s", rec.Body.String())
	}
}
