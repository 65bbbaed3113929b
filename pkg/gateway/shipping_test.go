package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/orderfunnel/pkg/config"
)

func TestParseQuote(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    float64
		wantErr bool
	}{
		{"numeric amount", `[{"total_amount": 50.0}]`, 50.0, false},
		{"string amount", `[{"total_amount": "72.5"}]`, 72.5, false},
		{"missing field", `[{"charge_DL": 12}]`, 0, true},
		{"empty result", `[]`, 0, true},
		{"not an array", `{"total_amount": 50}`, 0, true},
		{"unparseable string", `[{"total_amount": "n/a"}]`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseQuote([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuoteRate_FlatRateWithoutToken(t *testing.T) {
	c := NewShippingClient(&config.ShippingConfig{
		FlatRateBaseRupees:  40,
		FlatRatePerKgRupees: 30,
	}, zap.NewNop())

	// 1200g rounds up to 2kg: 40 + 2*30
	got, err := c.QuoteRate(context.Background(), "110001", "560001", 1200, "COD")
	require.NoError(t, err)
	assert.Equal(t, 100.0, got)
}

func TestCreateShipment_RequiresToken(t *testing.T) {
	c := NewShippingClient(&config.ShippingConfig{}, zap.NewNop())

	_, err := c.CreateShipment(context.Background(), ShipmentRequest{OrderID: "OUO-00001"})
	assert.Error(t, err)
}

func TestWeightFor_Fallback(t *testing.T) {
	cfg := &config.ShippingConfig{
		ItemWeights:        map[string]int{"X": 750},
		DefaultWeightGrams: 500,
	}
	assert.Equal(t, 750, cfg.WeightFor("X"))
	assert.Equal(t, 500, cfg.WeightFor("unknown"))
}
