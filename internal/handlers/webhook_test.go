package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"donate-app/internal/models"
)

func webhookRouter(h *WebhookHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/webhook/bank", h.HandleBankWebhook)
	return r
}

func postWebhook(t *testing.T, r *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/webhook/bank", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func bankPayload(extRef, content string, amount int64) string {
	b, _ := json.Marshal(map[string]interface{}{
		"id":              9001,
		"gateway":         "MBBank",
		"transactionDate": "2025-11-02 14:30:05",
		"accountNumber":   "686829078888",
		"content":         content,
		"transferType":    "in",
		"transferAmount":  amount,
		"referenceCode":   extRef,
	})
	return string(b)
}

// pendingIntentStore returns a stateful mock with one pending intent,
// enforcing the same transition rules as the real store.
func pendingIntentStore(intent *models.DonationIntent) *MockIntentStore {
	var mu sync.Mutex
	return &MockIntentStore{
		ResolveFunc: func(ctx context.Context, candidate string) (*models.DonationIntent, error) {
			mu.Lock()
			defer mu.Unlock()
			if intent.Status == models.IntentStatusPending &&
				(intent.MemoCode == candidate || strings.HasPrefix(intent.MemoCode, candidate)) {
				cp := *intent
				return &cp, nil
			}
			return nil, sql.ErrNoRows
		},
		MarkConfirmedFunc: func(ctx context.Context, code string) (*models.DonationIntent, bool, error) {
			mu.Lock()
			defer mu.Unlock()
			if code != intent.ReferenceCode {
				return nil, false, sql.ErrNoRows
			}
			if intent.Status == models.IntentStatusPending {
				now := time.Now()
				intent.Status = models.IntentStatusConfirmed
				intent.ConfirmedAt = &now
				cp := *intent
				return &cp, true, nil
			}
			cp := *intent
			return &cp, false, nil
		},
		GetFunc: func(ctx context.Context, code string) (*models.DonationIntent, error) {
			mu.Lock()
			defer mu.Unlock()
			if code != intent.ReferenceCode {
				return nil, sql.ErrNoRows
			}
			cp := *intent
			return &cp, nil
		},
	}
}

func TestWebhookConfirmsMatchingIntent(t *testing.T) {
	intent := &models.DonationIntent{
		ID:            1,
		ReferenceCode: "7f3k9q2-ref",
		MemoCode:      "DON7F3K9Q2",
		CampaignID:    "camp-1",
		Amount:        50000,
		Status:        models.IntentStatusPending,
	}
	intents := pendingIntentStore(intent)
	ledger := NewMockLedger()
	campaigns := &MockCampaignWriter{}
	feedWriter := &MockFeedWriter{}
	h := NewWebhookHandler(intents, campaigns, ledger, feedWriter, nil)

	w := postWebhook(t, webhookRouter(h), bankPayload("FT123", "NGUYEN VAN A DON7F3K9Q2 ung ho", 50000))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if intent.Status != models.IntentStatusConfirmed {
		t.Fatalf("intent status = %s, want confirmed", intent.Status)
	}
	if len(campaigns.Applied) != 1 || campaigns.Applied[0].CampaignID != "camp-1" {
		t.Fatalf("campaign totals not applied exactly once: %+v", campaigns.Applied)
	}
	if len(feedWriter.Items) != 1 || feedWriter.Items[0].Type != "donation" {
		t.Fatalf("expected one donation feed item, got %+v", feedWriter.Items)
	}
	if got := ledger.Matched[1]; got != "DON7F3K9Q2" {
		t.Fatalf("matched memo not recorded on ledger row: %q", got)
	}
}

func TestWebhookDuplicateDeliveryIsIdempotent(t *testing.T) {
	intent := &models.DonationIntent{
		ID:            1,
		ReferenceCode: "7f3k9q2-ref",
		MemoCode:      "DON7F3K9Q2",
		CampaignID:    "camp-1",
		Amount:        50000,
		Status:        models.IntentStatusPending,
	}
	intents := pendingIntentStore(intent)
	ledger := NewMockLedger()
	campaigns := &MockCampaignWriter{}
	h := NewWebhookHandler(intents, campaigns, ledger, &MockFeedWriter{}, nil)
	r := webhookRouter(h)

	body := bankPayload("FT123", "DON7F3K9Q2", 50000)
	first := postWebhook(t, r, body)
	second := postWebhook(t, r, body)

	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("both deliveries must get 200, got %d and %d", first.Code, second.Code)
	}
	if len(ledger.Rows) != 1 {
		t.Fatalf("expected exactly one ledger row, got %d", len(ledger.Rows))
	}
	if len(campaigns.Applied) != 1 {
		t.Fatalf("campaign totals applied %d times, want 1", len(campaigns.Applied))
	}
}

func TestWebhookUnmatchedTransactionIsPersisted(t *testing.T) {
	intents := &MockIntentStore{}
	ledger := NewMockLedger()
	campaigns := &MockCampaignWriter{}
	h := NewWebhookHandler(intents, campaigns, ledger, &MockFeedWriter{}, nil)

	w := postWebhook(t, webhookRouter(h), bankPayload("FT999", "ung ho quy chung", 20000))

	if w.Code != http.StatusOK {
		t.Fatalf("unmatched transaction must still answer 200, got %d", w.Code)
	}
	if len(ledger.Rows) != 1 {
		t.Fatalf("unmatched transaction must be persisted, got %d rows", len(ledger.Rows))
	}
	if len(campaigns.Applied) != 0 {
		t.Fatal("no campaign totals may change for an unmatched transaction")
	}
}

func TestWebhookMalformedPayloadAnswersOK(t *testing.T) {
	ledger := NewMockLedger()
	h := NewWebhookHandler(&MockIntentStore{}, &MockCampaignWriter{}, ledger, &MockFeedWriter{}, nil)

	w := postWebhook(t, webhookRouter(h), "this is not json at all")

	if w.Code != http.StatusOK {
		t.Fatalf("malformed payload must not trigger gateway retries, got %d", w.Code)
	}
	if len(ledger.Rows) != 1 {
		t.Fatalf("raw payload must be kept for audit, got %d rows", len(ledger.Rows))
	}
}

func TestWebhookStorageFailureAnswers5xx(t *testing.T) {
	ledger := NewMockLedger()
	ledger.InsertErr = context.DeadlineExceeded
	h := NewWebhookHandler(&MockIntentStore{}, &MockCampaignWriter{}, ledger, &MockFeedWriter{}, nil)

	w := postWebhook(t, webhookRouter(h), bankPayload("FT1", "DONABCDEF", 1000))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("storage failure must surface so the gateway redelivers, got %d", w.Code)
	}
}

func TestWebhookAlreadyConfirmedIntentHasNoSideEffects(t *testing.T) {
	confirmedAt := time.Now()
	intent := &models.DonationIntent{
		ID:            1,
		ReferenceCode: "7f3k9q2-ref",
		MemoCode:      "DON7F3K9Q2",
		CampaignID:    "camp-1",
		Amount:        50000,
		Status:        models.IntentStatusConfirmed,
		ConfirmedAt:   &confirmedAt,
	}
	// Resolution still finds the intent (simulating a race where another
	// delivery confirmed it between resolve and confirm).
	intents := pendingIntentStore(intent)
	intents.ResolveFunc = func(ctx context.Context, candidate string) (*models.DonationIntent, error) {
		cp := *intent
		return &cp, nil
	}
	campaigns := &MockCampaignWriter{}
	feedWriter := &MockFeedWriter{}
	h := NewWebhookHandler(intents, campaigns, NewMockLedger(), feedWriter, nil)

	w := postWebhook(t, webhookRouter(h), bankPayload("FT124", "DON7F3K9Q2", 50000))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(campaigns.Applied) != 0 || len(feedWriter.Items) != 0 {
		t.Fatal("side effects must only run on a real pending->confirmed transition")
	}
}

func TestWebhookConcurrentSameReference(t *testing.T) {
	intent := &models.DonationIntent{
		ID:            1,
		ReferenceCode: "7f3k9q2-ref",
		MemoCode:      "DON7F3K9Q2",
		CampaignID:    "camp-1",
		Amount:        50000,
		Status:        models.IntentStatusPending,
	}
	intents := pendingIntentStore(intent)
	ledger := NewMockLedger()
	campaigns := &MockCampaignWriter{}
	h := NewWebhookHandler(intents, campaigns, ledger, &MockFeedWriter{}, nil)
	r := webhookRouter(h)

	body := bankPayload("FT777", "DON7F3K9Q2", 50000)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			postWebhook(t, r, body)
		}()
	}
	wg.Wait()

	if len(ledger.Rows) != 1 {
		t.Fatalf("concurrent redeliveries produced %d ledger rows, want 1", len(ledger.Rows))
	}
	if len(campaigns.Applied) != 1 {
		t.Fatalf("concurrent redeliveries applied campaign totals %d times, want 1", len(campaigns.Applied))
	}
}

func TestParseBankTime(t *testing.T) {
	if _, ok := parseBankTime("2025-11-02 14:30:05"); !ok {
		t.Error("gateway layout should parse")
	}
	if _, ok := parseBankTime("2025-11-02T14:30:05Z"); !ok {
		t.Error("RFC3339 should parse")
	}
	if _, ok := parseBankTime(""); ok {
		t.Error("empty string must not parse")
	}
	if _, ok := parseBankTime("yesterday"); ok {
		t.Error("garbage must not parse")
	}
}
