// Package gateway contains the REST clients for the external collaborators:
// the WhatsApp Cloud API, the shipping carrier, the payment provider, the
// spreadsheet webapp and the AI responder. Every call has a bounded timeout
// and reports upstream error bodies in its error.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/example/orderfunnel/pkg/config"
	"github.com/example/orderfunnel/pkg/models"
)

// Button is one quick-reply option. WhatsApp allows at most three per
// message.
type Button struct {
	ID    string
	Title string
}

// ListRow is one selectable row of an interactive list message.
type ListRow struct {
	ID          string
	Title       string
	Description string
}

// ListSection groups list rows under a section title.
type ListSection struct {
	Title string
	Rows  []ListRow
}

// OrderDetails drives the review-and-pay interactive message.
type OrderDetails struct {
	ReferenceID   string
	Items         []models.ProductItem
	SubtotalPaise int64
	TaxPaise      int64
	ShippingPaise int64
}

// Messenger sends outbound WhatsApp messages through the Cloud API.
type Messenger struct {
	cfg        *config.WhatsAppConfig
	logger     *zap.Logger
	httpClient *http.Client
}

func NewMessenger(cfg *config.WhatsAppConfig, logger *zap.Logger) *Messenger {
	return &Messenger{
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (m *Messenger) SendText(ctx context.Context, to, body string) error {
	return m.post(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]interface{}{"body": body},
	})
}

func (m *Messenger) SendButtons(ctx context.Context, to, body string, buttons []Button) error {
	if len(buttons) > 3 {
		buttons = buttons[:3]
	}
	btns := make([]map[string]interface{}, 0, len(buttons))
	for _, b := range buttons {
		btns = append(btns, map[string]interface{}{
			"type":  "reply",
			"reply": map[string]string{"id": b.ID, "title": b.Title},
		})
	}
	return m.post(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type":   "button",
			"body":   map[string]string{"text": body},
			"action": map[string]interface{}{"buttons": btns},
		},
	})
}

func (m *Messenger) SendList(ctx context.Context, to, header, body, buttonLabel string, sections []ListSection) error {
	secs := make([]map[string]interface{}, 0, len(sections))
	for _, s := range sections {
		rows := make([]map[string]string, 0, len(s.Rows))
		for _, r := range s.Rows {
			rows = append(rows, map[string]string{
				"id":          r.ID,
				"title":       r.Title,
				"description": r.Description,
			})
		}
		secs = append(secs, map[string]interface{}{"title": s.Title, "rows": rows})
	}
	return m.post(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type":   "list",
			"header": map[string]string{"type": "text", "text": header},
			"body":   map[string]string{"text": body},
			"action": map[string]interface{}{
				"button":   buttonLabel,
				"sections": secs,
			},
		},
	})
}

// SendCatalog shows the product catalog attached to the business account.
func (m *Messenger) SendCatalog(ctx context.Context, to, body string) error {
	return m.post(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type": "catalog_message",
			"body": map[string]string{"text": body},
			"action": map[string]interface{}{
				"name": "catalog_message",
			},
		},
	})
}

// SendFlow sends the structured form (WhatsApp Flow) that collects delivery
// details.
func (m *Messenger) SendFlow(ctx context.Context, to, header, body, cta, flowToken string) error {
	return m.post(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type":   "flow",
			"header": map[string]string{"type": "text", "text": header},
			"body":   map[string]string{"text": body},
			"action": map[string]interface{}{
				"name": "flow",
				"parameters": map[string]interface{}{
					"flow_message_version": "3",
					"flow_id":              m.cfg.FlowID,
					"flow_token":           flowToken,
					"flow_cta":             cta,
					"flow_action":          "navigate",
				},
			},
		},
	})
}

// SendOrderDetails sends the review-and-pay prompt. The payment configuration
// name is mandatory on this message type.
func (m *Messenger) SendOrderDetails(ctx context.Context, to, body string, od OrderDetails) error {
	items := make([]map[string]interface{}, 0, len(od.Items))
	for _, it := range od.Items {
		items = append(items, map[string]interface{}{
			"retailer_id": it.ItemID,
			"name":        it.ItemID,
			"quantity":    it.Quantity,
			"amount":      map[string]interface{}{"value": it.PricePaise, "offset": 100},
		})
	}
	totalPaise := od.SubtotalPaise + od.TaxPaise + od.ShippingPaise
	return m.post(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type": "order_details",
			"body": map[string]string{"text": body},
			"action": map[string]interface{}{
				"name": "review_and_pay",
				"parameters": map[string]interface{}{
					"reference_id":         od.ReferenceID,
					"type":                 "digital-goods",
					"payment_type":         "upi",
					"payment_configuration": m.cfg.PaymentConfigName,
					"currency":             "INR",
					"total_amount":         map[string]interface{}{"value": totalPaise, "offset": 100},
					"order": map[string]interface{}{
						"status":   "pending",
						"items":    items,
						"subtotal": map[string]interface{}{"value": od.SubtotalPaise, "offset": 100},
						"tax":      map[string]interface{}{"value": od.TaxPaise, "offset": 100},
						"shipping": map[string]interface{}{"value": od.ShippingPaise, "offset": 100},
					},
				},
			},
		},
	})
}

func (m *Messenger) SendTemplate(ctx context.Context, to, name, language string) error {
	return m.post(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template": map[string]interface{}{
			"name":     name,
			"language": map[string]string{"code": language},
		},
	})
}

func (m *Messenger) post(ctx context.Context, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.MessagesURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build message request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		m.logger.Error("whatsapp send failed",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", respBody))
		return fmt.Errorf("whatsapp send: status %d: %s", resp.StatusCode, respBody)
	}
	return nil
}
