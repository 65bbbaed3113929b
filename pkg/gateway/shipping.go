package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/example/orderfunnel/pkg/config"
)

// ShipmentRequest carries the fields the carrier needs to create a shipment.
type ShipmentRequest struct {
	OrderID         string
	Name            string
	Address         string
	Pincode         string
	City            string
	State           string
	Phone           string
	WeightGrams     int
	Description     string
	PaymentMode     string // "COD" or "Pre-paid"
	CODAmountRupees string // collectable amount, empty for prepaid
}

// ShippingClient talks to the carrier's rate and shipment APIs.
type ShippingClient struct {
	cfg        *config.ShippingConfig
	logger     *zap.Logger
	httpClient *http.Client
}

func NewShippingClient(cfg *config.ShippingConfig, logger *zap.Logger) *ShippingClient {
	return &ShippingClient{
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// QuoteRate returns the shipping charge in rupees for the lane and weight.
// Without an API token it degrades to the configured flat-rate formula
// instead of refusing.
func (c *ShippingClient) QuoteRate(ctx context.Context, originPin, destPin string, weightGrams int, paymentType string) (float64, error) {
	if c.cfg.Token == "" {
		kg := math.Ceil(float64(weightGrams) / 1000)
		rate := c.cfg.FlatRateBaseRupees + kg*c.cfg.FlatRatePerKgRupees
		c.logger.Info("shipping token absent, using flat rate",
			zap.Int("weight_grams", weightGrams), zap.Float64("rate", rate))
		return rate, nil
	}

	q := url.Values{}
	q.Set("o_pin", originPin)
	q.Set("d_pin", destPin)
	q.Set("cgm", strconv.Itoa(weightGrams))
	q.Set("pt", paymentType)
	q.Set("md", "S")
	q.Set("ss", "Delivered")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.QuoteURL+"?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("build rate request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rate quote: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("rate quote failed",
			zap.Int("status", resp.StatusCode), zap.ByteString("response", body))
		return 0, fmt.Errorf("rate quote: status %d: %s", resp.StatusCode, body)
	}

	return parseQuote(body)
}

// parseQuote pulls the first result's total_amount. The carrier sometimes
// returns it as a number and sometimes as a string; anything else counts as
// "could not parse" and takes the same fallback path as an outright error.
func parseQuote(body []byte) (float64, error) {
	var results []map[string]interface{}
	if err := json.Unmarshal(body, &results); err != nil {
		return 0, fmt.Errorf("parse rate quote: %w", err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("parse rate quote: empty result")
	}
	switch v := results[0]["total_amount"].(type) {
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("parse rate quote total_amount %q: %w", v, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("parse rate quote: total_amount missing")
	}
}

// CreateShipment registers the shipment with the carrier and returns the raw
// provider response blob for the persisted row.
func (c *ShippingClient) CreateShipment(ctx context.Context, sr ShipmentRequest) (string, error) {
	if c.cfg.Token == "" {
		return "", fmt.Errorf("create shipment: no carrier token configured")
	}

	payload := map[string]interface{}{
		"pickup_location": map[string]string{"name": c.cfg.PickupLocation},
		"shipments": []map[string]interface{}{{
			"order":         sr.OrderID,
			"name":          sr.Name,
			"add":           sr.Address,
			"pin":           sr.Pincode,
			"city":          sr.City,
			"state":         sr.State,
			"phone":         sr.Phone,
			"weight":        sr.WeightGrams,
			"products_desc": sr.Description,
			"payment_mode":  sr.PaymentMode,
			"cod_amount":    sr.CODAmountRupees,
			"shipping_mode": "Surface",
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal shipment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.CreateURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build shipment request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create shipment: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 256<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("create shipment failed",
			zap.Int("status", resp.StatusCode), zap.ByteString("response", respBody))
		return "", fmt.Errorf("create shipment: status %d: %s", resp.StatusCode, respBody)
	}

	return string(respBody), nil
}

// TrackingLink builds the customer-facing tracking URL for an AWB.
func (c *ShippingClient) TrackingLink(awb string) string {
	return c.cfg.TrackingURL + awb
}
