package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"donate-app/internal/models"
)

// CampaignStore persists fundraising campaigns.
type CampaignStore struct {
	db *sqlx.DB
}

func NewCampaignStore(db *sqlx.DB) *CampaignStore {
	return &CampaignStore{db: db}
}

func (s *CampaignStore) List(ctx context.Context) ([]models.Campaign, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var campaigns []models.Campaign
	query := `SELECT * FROM campaigns ORDER BY created_at DESC`
	if err := s.db.SelectContext(ctx, &campaigns, query); err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

func (s *CampaignStore) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var campaign models.Campaign
	query := `SELECT * FROM campaigns WHERE id = $1`
	if err := s.db.GetContext(ctx, &campaign, query, id); err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (s *CampaignStore) Create(ctx context.Context, c *models.Campaign) (*models.Campaign, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c.ID = uuid.NewString()
	var created models.Campaign
	query := `INSERT INTO campaigns
	            (id, title, description, goal_amount, image_url, address, status, created_by, start_date, end_date)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	          RETURNING *`
	err := s.db.GetContext(ctx, &created, query,
		c.ID, c.Title, c.Description, c.GoalAmount, c.ImageURL,
		c.Address, c.Status, c.CreatedBy, c.StartDate, c.EndDate)
	if err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}
	return &created, nil
}

// ApplyConfirmedDonation increments the campaign's running totals for one
// confirmed donation. A single UPDATE keeps the increment atomic under
// concurrent confirmations.
func (s *CampaignStore) ApplyConfirmedDonation(ctx context.Context, campaignID string, amount int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`UPDATE campaigns
		 SET current_amount = current_amount + $1,
		     total_donors   = total_donors + 1,
		     updated_at     = now()
		 WHERE id = $2`, amount, campaignID)
	if err != nil {
		return fmt.Errorf("failed to apply donation to campaign: %w", err)
	}
	return nil
}

func (s *CampaignStore) SetImageURL(ctx context.Context, campaignID, imageURL string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET image_url = $1, updated_at = now() WHERE id = $2`, imageURL, campaignID)
	if err != nil {
		return fmt.Errorf("failed to update campaign image: %w", err)
	}
	return nil
}
