package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"donate-app/internal/models"
)

// FeedStore persists home-feed entries.
type FeedStore struct {
	db *sqlx.DB
}

func NewFeedStore(db *sqlx.DB) *FeedStore {
	return &FeedStore{db: db}
}

func (s *FeedStore) Insert(ctx context.Context, item *models.FeedItem) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `INSERT INTO feed_items (type, title, content, image_url, campaign_id, user_name)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.ExecContext(ctx, query,
		item.Type, item.Title, item.Content, item.ImageURL, item.CampaignID, item.UserName)
	if err != nil {
		return fmt.Errorf("failed to insert feed item: %w", err)
	}
	return nil
}

func (s *FeedStore) ListRecent(ctx context.Context, limit int) ([]models.FeedItem, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var items []models.FeedItem
	query := `SELECT * FROM feed_items ORDER BY created_at DESC LIMIT $1`
	if err := s.db.SelectContext(ctx, &items, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list feed: %w", err)
	}
	return items, nil
}
