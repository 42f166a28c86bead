package handlers

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"donate-app/internal/models"
	"donate-app/internal/qr"
)

// IntentStore is the persistence surface the donation and webhook
// handlers need. internal/store implements it; tests substitute mocks.
type IntentStore interface {
	Create(ctx context.Context, campaignID string, amount int64) (*models.DonationIntent, error)
	GetByReferenceCode(ctx context.Context, code string) (*models.DonationIntent, error)
	MarkConfirmed(ctx context.Context, code string) (*models.DonationIntent, bool, error)
	ResolvePendingByMemo(ctx context.Context, candidate string) (*models.DonationIntent, error)
}

// CampaignWriter is the slice of the campaign store the webhook flow
// touches.
type CampaignWriter interface {
	ApplyConfirmedDonation(ctx context.Context, campaignID string, amount int64) error
}

type DonationHandler struct {
	Intents IntentStore
	QR      *qr.Builder
}

func NewDonationHandler(intents IntentStore, qrBuilder *qr.Builder) *DonationHandler {
	return &DonationHandler{Intents: intents, QR: qrBuilder}
}

type InitiateDonationRequest struct {
	CampaignID string `json:"campaignId" binding:"required"`
	Amount     int64  `json:"amount" binding:"omitempty,gt=0"`
	// DonationID is an idempotency handle: a reference code this server
	// issued on an earlier attempt. The server never persists a
	// client-chosen code.
	DonationID string `json:"donationId"`
	// CreatedAt is accepted for wire compatibility with older clients and
	// ignored; the server timestamps intents itself.
	CreatedAt string `json:"createdAt"`
}

// InitiateDonation creates a pending donation intent and returns the
// reference code, the memo text for the bank transfer, and the QR image
// URL. Retrying with the donationId from a previous response returns the
// existing intent instead of allocating a second code, so a flaky mobile
// network cannot produce two live intents for one donor action.
func (h *DonationHandler) InitiateDonation(c *gin.Context) {
	var req InitiateDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if req.DonationID != "" {
		existing, err := h.Intents.GetByReferenceCode(c.Request.Context(), req.DonationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Unknown donation reference."})
				return
			}
			log.Println("Failed to look up donation intent:", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":  "Donation already initiated.",
			"donation": h.intentResponse(existing),
		})
		return
	}

	intent, err := h.Intents.Create(c.Request.Context(), req.CampaignID, req.Amount)
	if err != nil {
		log.Println("Failed to create donation intent:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Donation initiated.",
		"donation": h.intentResponse(intent),
	})
}

// CheckDonation is the polling endpoint the donor's client hits after
// showing the QR code. Read-only; the client stops polling on a terminal
// status.
func (h *DonationHandler) CheckDonation(c *gin.Context) {
	donationID := c.Param("donationId")

	intent, err := h.Intents.GetByReferenceCode(c.Request.Context(), donationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown donation reference."})
			return
		}
		log.Println("Failed to check donation:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": intent.Status})
}

func (h *DonationHandler) intentResponse(intent *models.DonationIntent) gin.H {
	resp := gin.H{
		"donationId": intent.ReferenceCode,
		"campaignId": intent.CampaignID,
		"amount":     intent.Amount,
		"status":     intent.Status,
		"memoCode":   intent.MemoCode,
		"qrUrl":      h.QR.ImageURL(intent.MemoCode),
		"createdAt":  intent.CreatedAt.Format(time.RFC3339),
	}
	if intent.ConfirmedAt != nil {
		resp["confirmedAt"] = intent.ConfirmedAt.Format(time.RFC3339)
	}
	return resp
}
