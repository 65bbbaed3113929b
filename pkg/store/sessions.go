// Package store holds the in-process conversation state: sessions keyed by
// order id, the phone-to-orders index, and pending catalog selections that
// exist before an order id is minted.
package store

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/example/orderfunnel/pkg/models"
)

// ErrNotFound is returned when no session exists for a key. Callers abandon
// the flow gracefully on it; it is never fatal.
var ErrNotFound = errors.New("session not found")

type pendingSelection struct {
	items  []models.ProductItem
	amount int64
}

// SessionStore is a process-lifetime cache. Sessions are never deleted; a
// restart loses all of them, which is acceptable because sessions are
// short-lived by design.
type SessionStore struct {
	mu sync.RWMutex

	sessions map[string]*models.Session // orderID -> session
	byPhone  map[string][]string        // phone -> orderIDs, append-only
	pending  map[string]pendingSelection

	nowFunc  func() time.Time
	randFunc func(n int) int
}

func NewSessionStore() *SessionStore {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &SessionStore{
		sessions: make(map[string]*models.Session),
		byPhone:  make(map[string][]string),
		pending:  make(map[string]pendingSelection),
		nowFunc:  time.Now,
		randFunc: rng.Intn,
	}
}

// NormalizePhone strips everything but digits, so "+91 98765-43210" and
// "919876543210" index the same conversation.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// RecordCatalogSelection stashes a catalog order against the phone. The order
// event precedes delivery-details collection and has no order id yet; a later
// order event for the same phone overwrites the selection.
func (s *SessionStore) RecordCatalogSelection(phone string, items []models.ProductItem, amountPaise int64) {
	phone = NormalizePhone(phone)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[phone] = pendingSelection{items: items, amount: amountPaise}
}

// PendingSelection returns the catalog selection recorded for the phone, if
// any.
func (s *SessionStore) PendingSelection(phone string) ([]models.ProductItem, int64, bool) {
	phone = NormalizePhone(phone)
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pending[phone]
	return p.items, p.amount, ok
}

// CreateSession mints a new order id, seeds the session from the phone's
// pending catalog selection, and appends it to the phone index. Exactly one
// id is created per delivery-details submission.
func (s *SessionStore) CreateSession(phone string, customer models.CustomerDetails) *models.Session {
	phone = NormalizePhone(phone)
	s.mu.Lock()
	defer s.mu.Unlock()

	orderID := s.newOrderIDLocked()
	now := s.nowFunc()

	session := &models.Session{
		OrderID:   orderID,
		Phone:     phone,
		Customer:  customer,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p, ok := s.pending[phone]; ok {
		session.ProductItems = p.items
		session.AmountPaise = p.amount
	}

	s.sessions[orderID] = session
	s.byPhone[phone] = append(s.byPhone[phone], orderID)
	return session
}

// Get fetches a session by order id.
func (s *SessionStore) Get(orderID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return session, nil
}

// FindLatestByPhone returns the most recently created session for the phone.
// Used as the fallback lookup when a payment webhook carries no usable
// reference id.
func (s *SessionStore) FindLatestByPhone(phone string) (*models.Session, error) {
	phone = NormalizePhone(phone)
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byPhone[phone]
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	return s.sessions[ids[len(ids)-1]], nil
}

// Touch bumps the session's UpdatedAt. Mutations happen in place on the
// shared pointer; this records that one did.
func (s *SessionStore) Touch(session *models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.UpdatedAt = s.nowFunc()
}

// newOrderIDLocked mints an unused OUO-<5 digits> id. Caller holds mu.
func (s *SessionStore) newOrderIDLocked() string {
	for {
		id := fmt.Sprintf("OUO-%05d", s.randFunc(100000))
		if _, taken := s.sessions[id]; !taken {
			return id
		}
	}
}
