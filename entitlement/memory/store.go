package memory

import (
	"context"
	"sync"
	"time"

	"github.com/versebook/verse-server/entitlement"
)

type InMemoryStore struct {
	mu            sync.RWMutex
	books         map[string][]string
	subscriptions map[string]*entitlement.Subscription
	purchases     []*entitlement.PurchaseRecord
	subRecords    []*entitlement.SubscriptionRecord
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		books:         map[string][]string{},
		subscriptions: map[string]*entitlement.Subscription{},
	}
}

func (s *InMemoryStore) AddPurchasedBook(ctx context.Context, userID, bookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.books[userID] {
		if existing == bookID {
			return nil
		}
	}

	s.books[userID] = append(s.books[userID], bookID)
	return nil
}

func (s *InMemoryStore) SetSubscription(ctx context.Context, userID string, sub *entitlement.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cloned := *sub
	s.subscriptions[userID] = &cloned
	return nil
}

func (s *InMemoryStore) RecordPurchase(ctx context.Context, record *entitlement.PurchaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cloned := *record
	cloned.CreatedAt = time.Now()
	s.purchases = append(s.purchases, &cloned)
	return nil
}

func (s *InMemoryStore) RecordSubscription(ctx context.Context, record *entitlement.SubscriptionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cloned := *record
	cloned.CreatedAt = time.Now()
	s.subRecords = append(s.subRecords, &cloned)
	return nil
}

// PurchasedBooks returns the user's purchased set, for tests.
func (s *InMemoryStore) PurchasedBooks(userID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.books[userID]...)
}

// Subscription returns the user's current subscription state, for tests.
func (s *InMemoryStore) Subscription(userID string) *entitlement.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[userID]
	if !ok {
		return nil
	}
	cloned := *sub
	return &cloned
}

// PurchaseRecords returns all appended purchase audit records, for tests.
func (s *InMemoryStore) PurchaseRecords() []*entitlement.PurchaseRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]*entitlement.PurchaseRecord(nil), s.purchases...)
}

// SubscriptionRecords returns all appended subscription audit records, for tests.
func (s *InMemoryStore) SubscriptionRecords() []*entitlement.SubscriptionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]*entitlement.SubscriptionRecord(nil), s.subRecords...)
}

func (s *InMemoryStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.books = map[string][]string{}
	s.subscriptions = map[string]*entitlement.Subscription{}
	s.purchases = nil
	s.subRecords = nil
}
