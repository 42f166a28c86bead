package handlers

import (
	"context"
	"database/sql"
	"sync"

	"donate-app/internal/models"
)

// Hand-rolled mocks for the store interfaces; each test wires only the
// funcs it needs.

type MockIntentStore struct {
	CreateFunc        func(ctx context.Context, campaignID string, amount int64) (*models.DonationIntent, error)
	GetFunc           func(ctx context.Context, code string) (*models.DonationIntent, error)
	MarkConfirmedFunc func(ctx context.Context, code string) (*models.DonationIntent, bool, error)
	ResolveFunc       func(ctx context.Context, candidate string) (*models.DonationIntent, error)
}

func (m *MockIntentStore) Create(ctx context.Context, campaignID string, amount int64) (*models.DonationIntent, error) {
	return m.CreateFunc(ctx, campaignID, amount)
}

func (m *MockIntentStore) GetByReferenceCode(ctx context.Context, code string) (*models.DonationIntent, error) {
	return m.GetFunc(ctx, code)
}

func (m *MockIntentStore) MarkConfirmed(ctx context.Context, code string) (*models.DonationIntent, bool, error) {
	return m.MarkConfirmedFunc(ctx, code)
}

func (m *MockIntentStore) ResolvePendingByMemo(ctx context.Context, candidate string) (*models.DonationIntent, error) {
	if m.ResolveFunc == nil {
		return nil, sql.ErrNoRows
	}
	return m.ResolveFunc(ctx, candidate)
}

type MockCampaignWriter struct {
	mu      sync.Mutex
	Applied []appliedDonation
	Err     error
}

type appliedDonation struct {
	CampaignID string
	Amount     int64
}

func (m *MockCampaignWriter) ApplyConfirmedDonation(ctx context.Context, campaignID string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Applied = append(m.Applied, appliedDonation{CampaignID: campaignID, Amount: amount})
	return nil
}

// MockLedger behaves like the real transaction store: insert-if-absent
// keyed by the external reference, safe under concurrent use.
type MockLedger struct {
	mu        sync.Mutex
	nextID    int
	ByExtRef  map[string]*models.BankTransaction
	Rows      []*models.BankTransaction
	Matched   map[int]string
	InsertErr error
}

func NewMockLedger() *MockLedger {
	return &MockLedger{
		ByExtRef: make(map[string]*models.BankTransaction),
		Matched:  make(map[int]string),
	}
}

func (m *MockLedger) Insert(ctx context.Context, tx *models.BankTransaction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return false, m.InsertErr
	}
	if tx.ExternalReferenceCode != nil {
		if _, dup := m.ByExtRef[*tx.ExternalReferenceCode]; dup {
			return false, nil
		}
	}
	m.nextID++
	tx.ID = m.nextID
	if tx.ExternalReferenceCode != nil {
		m.ByExtRef[*tx.ExternalReferenceCode] = tx
	}
	m.Rows = append(m.Rows, tx)
	return true, nil
}

func (m *MockLedger) SetMatchedMemo(ctx context.Context, id int, memoCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Matched[id] = memoCode
	return nil
}

type MockFeedWriter struct {
	mu    sync.Mutex
	Items []*models.FeedItem
}

func (m *MockFeedWriter) Insert(ctx context.Context, item *models.FeedItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Items = append(m.Items, item)
	return nil
}
