package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	storage_go "github.com/supabase-community/storage-go"

	"donate-app/internal/models"
	"donate-app/internal/store"
)

type CampaignHandler struct {
	Campaigns *store.CampaignStore
	Intents   *store.IntentStore

	// Storage is optional; when nil, image upload answers 503.
	Storage       *storage_go.Client
	StorageURL    string
	StorageBucket string
}

func NewCampaignHandler(campaigns *store.CampaignStore, intents *store.IntentStore) *CampaignHandler {
	return &CampaignHandler{Campaigns: campaigns, Intents: intents}
}

func (h *CampaignHandler) ListCampaigns(c *gin.Context) {
	campaigns, err := h.Campaigns.List(c.Request.Context())
	if err != nil {
		log.Println("Failed to list campaigns:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch campaigns"})
		return
	}
	c.JSON(http.StatusOK, campaigns)
}

func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	campaign, err := h.Campaigns.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Campaign not found"})
			return
		}
		log.Println("Failed to get campaign:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}
	c.JSON(http.StatusOK, campaign)
}

type CreateCampaignRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	GoalAmount  int64      `json:"goal_amount" binding:"omitempty,gt=0"`
	Address     string     `json:"address"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
}

func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	var req CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	userIDAny, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error: UserID not found"})
		return
	}
	userID := userIDAny.(int)

	campaign := &models.Campaign{
		Title:       req.Title,
		Description: req.Description,
		GoalAmount:  req.GoalAmount,
		Address:     req.Address,
		Status:      "active",
		CreatedBy:   &userID,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	}
	created, err := h.Campaigns.Create(c.Request.Context(), campaign)
	if err != nil {
		log.Println("Failed to create campaign:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}
	c.JSON(http.StatusCreated, created)
}

// GetCampaignDonations lists a campaign's confirmed donations, newest
// first.
func (h *CampaignHandler) GetCampaignDonations(c *gin.Context) {
	campaignID := c.Param("id")

	intents, err := h.Intents.ListConfirmedByCampaign(c.Request.Context(), campaignID)
	if err != nil {
		log.Println("Failed to get campaign donations:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch donations"})
		return
	}

	donations := make([]gin.H, 0, len(intents))
	for _, in := range intents {
		donations = append(donations, gin.H{
			"donationId":  in.ReferenceCode,
			"amount":      in.Amount,
			"confirmedAt": in.ConfirmedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"campaignId": campaignID, "donations": donations})
}

// UploadCampaignImage stores a campaign cover image in the Supabase
// bucket and saves its public URL on the campaign.
func (h *CampaignHandler) UploadCampaignImage(c *gin.Context) {
	if h.Storage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Image storage is not configured"})
		return
	}

	campaignID := c.Param("id")
	if _, err := h.Campaigns.GetByID(c.Request.Context(), campaignID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Campaign not found"})
			return
		}
		log.Println("Failed to get campaign:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing image file"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		log.Println("Failed to open uploaded file:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}
	defer file.Close()

	objectPath := fmt.Sprintf("campaigns/%s/%d%s", campaignID, time.Now().Unix(), path.Ext(fileHeader.Filename))
	contentType := fileHeader.Header.Get("Content-Type")
	_, err = h.Storage.UploadFile(h.StorageBucket, objectPath, file, storage_go.FileOptions{ContentType: &contentType})
	if err != nil {
		log.Println("Failed to upload campaign image:", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Image upload failed"})
		return
	}

	publicURL := strings.TrimRight(h.StorageURL, "/") + "/storage/v1/object/public/" + h.StorageBucket + "/" + objectPath
	if err := h.Campaigns.SetImageURL(c.Request.Context(), campaignID, publicURL); err != nil {
		log.Println("Failed to save campaign image URL:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}

	c.JSON(http.StatusOK, gin.H{"image_url": publicURL})
}
