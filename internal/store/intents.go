package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"donate-app/internal/models"
	"donate-app/internal/refcode"
)

const pgUniqueViolation = "23505"

// IntentStore persists donation intents. All status transitions are
// expressed as conditional UPDATEs so concurrent requests cannot
// double-process the same intent.
type IntentStore struct {
	db *sqlx.DB
}

func NewIntentStore(db *sqlx.DB) *IntentStore {
	return &IntentStore{db: db}
}

const intentColumns = `id, reference_code, memo_code, campaign_id, amount, status, created_at, confirmed_at`

// Create issues a new server-generated reference code and persists a
// pending intent. The campaign id is a best-effort foreign reference and
// is not validated here. On the (vanishingly rare) unique collision of a
// truncated memo projection it retries with a fresh code.
func (s *IntentStore) Create(ctx context.Context, campaignID string, amount int64) (*models.DonationIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `INSERT INTO donation_intents (reference_code, memo_code, campaign_id, amount, status)
	          VALUES ($1, $2, $3, $4, 'pending')
	          RETURNING ` + intentColumns

	for attempt := 0; attempt < 3; attempt++ {
		ref := refcode.New()
		memo := refcode.MemoCode(ref)

		var intent models.DonationIntent
		err := s.db.GetContext(ctx, &intent, query, ref, memo, campaignID, amount)
		if err == nil {
			return &intent, nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			log.Printf("Reference code collision on attempt %d, regenerating", attempt+1)
			continue
		}
		return nil, fmt.Errorf("failed to create donation intent: %w", err)
	}
	return nil, errors.New("failed to allocate a unique reference code")
}

// GetByReferenceCode returns the intent for a code, or sql.ErrNoRows.
func (s *IntentStore) GetByReferenceCode(ctx context.Context, code string) (*models.DonationIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var intent models.DonationIntent
	query := `SELECT ` + intentColumns + ` FROM donation_intents WHERE reference_code = $1`
	if err := s.db.GetContext(ctx, &intent, query, code); err != nil {
		return nil, err
	}
	return &intent, nil
}

// MarkConfirmed transitions pending -> confirmed atomically. It is a
// no-op, not an error, when the intent is already confirmed, so duplicate
// webhook deliveries are harmless. The returned bool reports whether THIS
// call performed the transition; side effects (campaign totals, alerts)
// must only run when it is true.
func (s *IntentStore) MarkConfirmed(ctx context.Context, code string) (*models.DonationIntent, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`UPDATE donation_intents SET status = 'confirmed', confirmed_at = now()
		 WHERE reference_code = $1 AND status = 'pending'`, code)
	if err != nil {
		return nil, false, fmt.Errorf("failed to confirm intent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to confirm intent: %w", err)
	}

	intent, err := s.GetByReferenceCode(ctx, code)
	if err != nil {
		return nil, false, err
	}
	return intent, affected == 1, nil
}

// ResolvePendingByMemo maps an extracted memo candidate to a pending
// intent. Exact match wins; otherwise the candidate is treated as a
// possibly garbled prefix of a stored memo code (or vice versa, when the
// bank jammed extra text onto the memo) and the most recently created
// pending intent is chosen. Returns sql.ErrNoRows when nothing resolves.
func (s *IntentStore) ResolvePendingByMemo(ctx context.Context, candidate string) (*models.DonationIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var intent models.DonationIntent
	exact := `SELECT ` + intentColumns + ` FROM donation_intents
	          WHERE memo_code = $1 AND status = 'pending'`
	err := s.db.GetContext(ctx, &intent, exact, candidate)
	if err == nil {
		return &intent, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	// candidate is [A-Z0-9] only (refcode.Extract normalized it), so it is
	// safe inside a LIKE pattern.
	fuzzy := `SELECT ` + intentColumns + ` FROM donation_intents
	          WHERE status = 'pending'
	            AND (memo_code LIKE $1 || '%' OR $1 LIKE memo_code || '%')
	          ORDER BY created_at DESC`
	var matches []models.DonationIntent
	if err := s.db.SelectContext(ctx, &matches, fuzzy, candidate); err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, sql.ErrNoRows
	}
	if len(matches) > 1 {
		log.Printf("Memo candidate %s is ambiguous across %d pending intents, using the newest", candidate, len(matches))
	}
	return &matches[0], nil
}

// ExpireStale transitions pending intents created before the cutoff to
// expired. Confirmed intents are never touched.
func (s *IntentStore) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`UPDATE donation_intents SET status = 'expired'
		 WHERE status = 'pending' AND created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale intents: %w", err)
	}
	return res.RowsAffected()
}

// ListConfirmedByCampaign returns a campaign's confirmed donations,
// newest first.
func (s *IntentStore) ListConfirmedByCampaign(ctx context.Context, campaignID string) ([]models.DonationIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var intents []models.DonationIntent
	query := `SELECT ` + intentColumns + ` FROM donation_intents
	          WHERE campaign_id = $1 AND status = 'confirmed'
	          ORDER BY confirmed_at DESC`
	if err := s.db.SelectContext(ctx, &intents, query, campaignID); err != nil {
		return nil, fmt.Errorf("failed to list confirmed donations: %w", err)
	}
	return intents, nil
}
