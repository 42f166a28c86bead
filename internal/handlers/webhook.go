package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx/types"

	"donate-app/internal/models"
	"donate-app/internal/refcode"
	ws "donate-app/internal/websocket"
)

// TransactionLedger is the append-only bank transaction store the
// ingestion path writes to.
type TransactionLedger interface {
	Insert(ctx context.Context, tx *models.BankTransaction) (bool, error)
	SetMatchedMemo(ctx context.Context, id int, memoCode string) error
}

// FeedWriter appends confirmed donations to the home feed.
type FeedWriter interface {
	Insert(ctx context.Context, item *models.FeedItem) error
}

// WebhookHandler ingests bank gateway notifications and reconciles them
// against pending donation intents.
type WebhookHandler struct {
	Intents      IntentStore
	Campaigns    CampaignWriter
	Transactions TransactionLedger
	Feed         FeedWriter
	Hub          *ws.Hub
}

func NewWebhookHandler(intents IntentStore, campaigns CampaignWriter, transactions TransactionLedger, feed FeedWriter, hub *ws.Hub) *WebhookHandler {
	return &WebhookHandler{
		Intents:      intents,
		Campaigns:    campaigns,
		Transactions: transactions,
		Feed:         feed,
		Hub:          hub,
	}
}

// BankWebhookRequest is the gateway's notification payload for one real
// transfer. Content/Description carry the donor-typed memo as free text;
// ReferenceCode is the gateway's own id for the transfer and is our
// dedup key.
type BankWebhookRequest struct {
	ID              int64  `json:"id"`
	Gateway         string `json:"gateway"`
	TransactionDate string `json:"transactionDate"`
	AccountNumber   string `json:"accountNumber"`
	Content         string `json:"content"`
	TransferType    string `json:"transferType"`
	TransferAmount  int64  `json:"transferAmount"`
	Accumulated     int64  `json:"accumulated"`
	ReferenceCode   string `json:"referenceCode"`
	Description     string `json:"description"`
}

// HandleBankWebhook processes one delivery:
//
//  1. insert-if-absent into the ledger, keyed by the gateway reference
//     (redeliveries return success without re-processing)
//  2. the raw payload is kept even when nothing matches — transfers with
//     no recognizable code are legitimate general-fund donations
//  3. scan the free-text fields for memo-code candidates
//  4. first candidate resolving to a pending intent gets confirmed; the
//     campaign totals, feed and dashboard alert fire only on a real
//     pending->confirmed transition
//
// The gateway ignores response bodies and retries forever on non-2xx, so
// everything except a persistence failure answers 200.
func (h *WebhookHandler) HandleBankWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	raw, err := c.GetRawData()
	if err != nil {
		log.Println("Failed to read webhook body:", err)
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "ignored"})
		return
	}

	var req BankWebhookRequest
	parseErr := json.Unmarshal(raw, &req)
	payload := types.JSONText(raw)
	if parseErr != nil {
		// Not valid JSON; keep the bytes for audit as a JSON string so the
		// jsonb column still accepts the row.
		log.Println("Unparseable webhook payload, storing raw:", parseErr)
		quoted, _ := json.Marshal(string(raw))
		payload = types.JSONText(quoted)
	}

	tx := &models.BankTransaction{
		Gateway:       req.Gateway,
		AccountNumber: req.AccountNumber,
		Amount:        req.TransferAmount,
		Description:   joinFreeText(req.Content, req.Description),
		RawPayload:    payload,
	}
	if req.ReferenceCode != "" {
		tx.ExternalReferenceCode = &req.ReferenceCode
	}
	if t, ok := parseBankTime(req.TransactionDate); ok {
		tx.TransactionTime = &t
	}

	inserted, err := h.Transactions.Insert(ctx, tx)
	if err != nil {
		// Losing a webhook permanently loses the chance to confirm the
		// donation; a 5xx lets the gateway redeliver.
		log.Println("Failed to persist bank transaction:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "storage error"})
		return
	}
	if !inserted {
		log.Printf("Duplicate webhook delivery for reference %s, already processed", req.ReferenceCode)
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "duplicate"})
		return
	}

	if parseErr != nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "stored unparseable payload"})
		return
	}

	h.reconcile(ctx, tx)

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// reconcile attempts to match a freshly stored transaction to a pending
// intent. Failure to match is not an error; the transaction simply stays
// unattributed.
func (h *WebhookHandler) reconcile(ctx context.Context, tx *models.BankTransaction) {
	candidates := refcode.Extract(tx.Description)
	if len(candidates) == 0 {
		log.Printf("No memo code in transaction %d, leaving unattributed", tx.ID)
		return
	}

	for _, candidate := range candidates {
		intent, err := h.Intents.ResolvePendingByMemo(ctx, candidate)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			log.Printf("Failed to resolve memo candidate %s: %v", candidate, err)
			return
		}

		confirmed, transitioned, err := h.Intents.MarkConfirmed(ctx, intent.ReferenceCode)
		if err != nil {
			log.Printf("Failed to confirm intent %s: %v", intent.ReferenceCode, err)
			return
		}
		if !transitioned {
			// Another delivery won the race, or the intent expired between
			// resolution and confirmation. Either way no side effects here.
			log.Printf("Intent %s was not pending anymore (status %s)", confirmed.ReferenceCode, confirmed.Status)
			return
		}

		if err := h.Transactions.SetMatchedMemo(ctx, tx.ID, confirmed.MemoCode); err != nil {
			log.Println("Failed to record matched memo:", err)
		}
		if err := h.Campaigns.ApplyConfirmedDonation(ctx, confirmed.CampaignID, confirmed.Amount); err != nil {
			log.Println("Failed to update campaign totals:", err)
		}
		if h.Feed != nil {
			item := &models.FeedItem{
				Type:       "donation",
				Title:      "Donation confirmed",
				Content:    confirmed.MemoCode,
				CampaignID: &confirmed.CampaignID,
			}
			if err := h.Feed.Insert(ctx, item); err != nil {
				log.Println("Failed to append donation feed item:", err)
			}
		}
		if h.Hub != nil {
			h.Hub.BroadcastAlert <- ws.DonationAlert{
				CampaignID:  confirmed.CampaignID,
				MemoCode:    confirmed.MemoCode,
				Amount:      confirmed.Amount,
				Gateway:     tx.Gateway,
				ConfirmedAt: time.Now(),
			}
		}

		log.Printf("Confirmed donation %s from transaction %d", confirmed.ReferenceCode, tx.ID)
		return
	}

	log.Printf("Transaction %d had memo candidates %v but none resolved, leaving unattributed", tx.ID, candidates)
}

func joinFreeText(content, description string) string {
	switch {
	case content == "":
		return description
	case description == "":
		return content
	default:
		return content + " " + description
	}
}

// parseBankTime accepts the gateway's "2006-01-02 15:04:05" timestamps
// as well as RFC3339.
func parseBankTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
