package store

import (
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/orderfunnel/pkg/models"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+91 98765-43210", "919876543210"},
		{"919876543210", "919876543210"},
		{"(0) 12 34", "01234"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePhone(tt.in))
	}
}

func TestCreateSession_OrderIDFormatAndUniqueness(t *testing.T) {
	s := NewSessionStore()
	format := regexp.MustCompile(`^OUO-\d{5}$`)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		session := s.CreateSession(fmt.Sprintf("91%010d", i), models.CustomerDetails{Name: "A"})
		require.Regexp(t, format, session.OrderID)
		require.False(t, seen[session.OrderID], "duplicate order id %s", session.OrderID)
		seen[session.OrderID] = true
	}
}

func TestCreateSession_SeedsFromPendingSelection(t *testing.T) {
	s := NewSessionStore()
	items := []models.ProductItem{{ItemID: "X", Quantity: 2, PricePaise: 10000}}
	s.RecordCatalogSelection("+91 9876543210", items, 20000)

	session := s.CreateSession("919876543210", models.CustomerDetails{Name: "Asha"})
	assert.Equal(t, items, session.ProductItems)
	assert.Equal(t, int64(20000), session.AmountPaise)
	assert.Equal(t, "919876543210", session.Phone)
}

func TestRecordCatalogSelection_LaterOrderOverwrites(t *testing.T) {
	s := NewSessionStore()
	s.RecordCatalogSelection("911", []models.ProductItem{{ItemID: "X", Quantity: 1, PricePaise: 100}}, 100)
	s.RecordCatalogSelection("911", []models.ProductItem{{ItemID: "Y", Quantity: 3, PricePaise: 200}}, 600)

	items, amount, ok := s.PendingSelection("911")
	require.True(t, ok)
	assert.Equal(t, "Y", items[0].ItemID)
	assert.Equal(t, int64(600), amount)
}

func TestGet_NotFound(t *testing.T) {
	s := NewSessionStore()
	_, err := s.Get("OUO-00000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindLatestByPhone(t *testing.T) {
	s := NewSessionStore()

	_, err := s.FindLatestByPhone("911")
	require.ErrorIs(t, err, ErrNotFound)

	first := s.CreateSession("911", models.CustomerDetails{Name: "First"})
	second := s.CreateSession("911", models.CustomerDetails{Name: "Second"})

	latest, err := s.FindLatestByPhone("911")
	require.NoError(t, err)
	assert.Equal(t, second.OrderID, latest.OrderID)
	assert.NotEqual(t, first.OrderID, latest.OrderID)

	// lookups by id still reach both
	got, err := s.Get(first.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "First", got.Customer.Name)
}

func TestSubtotal_OrderIndependent(t *testing.T) {
	a := []models.ProductItem{
		{ItemID: "X", Quantity: 2, PricePaise: 10000},
		{ItemID: "Y", Quantity: 1, PricePaise: 4999},
	}
	b := []models.ProductItem{a[1], a[0]}
	assert.Equal(t, models.Subtotal(a), models.Subtotal(b))
	assert.Equal(t, int64(24999), models.Subtotal(a))
}
