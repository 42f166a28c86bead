package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// We use 'db' tags for sqlx to automatically map
// the database column names (snake_case) to our Go fields (CamelCase).

// DonationIntent statuses. Transitions are one-way: a pending intent
// becomes confirmed (webhook match) or expired (TTL sweep), never back.
const (
	IntentStatusPending   = "pending"
	IntentStatusConfirmed = "confirmed"
	IntentStatusExpired   = "expired"
)

// User represents a user's authentication details.
type User struct {
	ID           int       `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	DisplayName  string    `db:"display_name"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Campaign is a fundraising campaign. current_amount and total_donors are
// only ever incremented by confirmed donations.
type Campaign struct {
	ID            string     `db:"id" json:"id"`
	Title         string     `db:"title" json:"title"`
	Description   string     `db:"description" json:"description"`
	GoalAmount    int64      `db:"goal_amount" json:"goal_amount"`
	CurrentAmount int64      `db:"current_amount" json:"current_amount"`
	TotalDonors   int        `db:"total_donors" json:"total_donors"`
	ImageURL      string     `db:"image_url" json:"image_url"`
	Address       string     `db:"address" json:"address"`
	Status        string     `db:"status" json:"status"`
	CreatedBy     *int       `db:"created_by" json:"created_by,omitempty"`
	StartDate     *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate       *time.Time `db:"end_date" json:"end_date,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// DonationIntent is a donor's declared intention to transfer funds.
// ReferenceCode is the server-issued correlation key; MemoCode is its
// deterministic memo-safe projection, the text the donor's bank transfer
// must carry so the eventual transaction can be matched back.
type DonationIntent struct {
	ID            int        `db:"id"`
	ReferenceCode string     `db:"reference_code"`
	MemoCode      string     `db:"memo_code"`
	CampaignID    string     `db:"campaign_id"`
	Amount        int64      `db:"amount"`
	Status        string     `db:"status"`
	CreatedAt     time.Time  `db:"created_at"`
	ConfirmedAt   *time.Time `db:"confirmed_at"`
}

// BankTransaction is one inbound webhook notification from the bank
// gateway, stored verbatim for audit whether or not it matched an intent.
// ExternalReferenceCode is the gateway's own id and deduplicates
// redeliveries; it is nil when the gateway sent none.
type BankTransaction struct {
	ID                    int            `db:"id" json:"id"`
	Gateway               string         `db:"gateway" json:"gateway"`
	AccountNumber         string         `db:"account_number" json:"account_number"`
	Amount                int64          `db:"amount" json:"amount"`
	Description           string         `db:"description" json:"description"`
	ExternalReferenceCode *string        `db:"external_reference_code" json:"external_reference_code,omitempty"`
	MatchedMemoCode       string         `db:"matched_memo_code" json:"matched_memo_code"`
	TransactionTime       *time.Time     `db:"transaction_time" json:"transaction_time,omitempty"`
	RawPayload            types.JSONText `db:"raw_payload" json:"raw_payload"`
	CreatedAt             time.Time      `db:"created_at" json:"created_at"`
}

// FeedItem is an entry on the home feed (confirmed donations, new
// campaigns, announcements).
type FeedItem struct {
	ID         int       `db:"id" json:"id"`
	Type       string    `db:"type" json:"type"`
	Title      string    `db:"title" json:"title"`
	Content    string    `db:"content" json:"content"`
	ImageURL   string    `db:"image_url" json:"image_url"`
	CampaignID *string   `db:"campaign_id" json:"campaign_id,omitempty"`
	UserName   string    `db:"user_name" json:"user_name"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
