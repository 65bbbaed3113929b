package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/example/orderfunnel/pkg/config"
)

// PaymentClient verifies provider webhooks and, when a lookup base URL is
// configured, fetches payment entities for reconciliation.
type PaymentClient struct {
	cfg        *config.PaymentConfig
	logger     *zap.Logger
	httpClient *http.Client
}

func NewPaymentClient(cfg *config.PaymentConfig, logger *zap.Logger) *PaymentClient {
	return &PaymentClient{
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// VerifySignature checks the provider's HMAC-SHA256 webhook signature. With
// no secret configured the check is skipped with a warning rather than
// blocking the funnel.
func (p *PaymentClient) VerifySignature(body []byte, signature string) bool {
	if p.cfg.WebhookSecret == "" {
		p.logger.Warn("payment webhook secret not configured, skipping signature check")
		return true
	}
	mac := hmac.New(sha256.New, []byte(p.cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// FetchPayment retrieves a payment entity from the provider.
func (p *PaymentClient) FetchPayment(ctx context.Context, paymentID string) (map[string]interface{}, error) {
	if p.cfg.LookupBaseURL == "" {
		return nil, fmt.Errorf("payment lookup not configured")
	}

	url := fmt.Sprintf("%s/payments/%s", p.cfg.LookupBaseURL, paymentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build payment request: %w", err)
	}
	req.SetBasicAuth(p.cfg.LookupKey, p.cfg.LookupSecret)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch payment: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Error("payment fetch failed",
			zap.Int("status", resp.StatusCode), zap.ByteString("response", body))
		return nil, fmt.Errorf("fetch payment: status %d: %s", resp.StatusCode, body)
	}

	var entity map[string]interface{}
	if err := json.Unmarshal(body, &entity); err != nil {
		return nil, fmt.Errorf("parse payment: %w", err)
	}
	return entity, nil
}
