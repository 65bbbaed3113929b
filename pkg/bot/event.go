package bot

import (
	"encoding/json"
	"fmt"

	"github.com/example/orderfunnel/pkg/store"
)

// Event is the normalized inbound event the dispatcher routes on. Messaging
// webhooks and payment webhooks both reduce to this shape.
type Event struct {
	ID          string // upstream message/event id, used for correlation
	From        string // normalized phone, conversation identity
	ProfileName string

	Type     string // text, interactive, order, button, payment
	Text     string
	ButtonID string // button_reply / list_reply id
	Order    []OrderLine
	FlowJSON string // nfm_reply response_json

	PaymentEvent string
	ReferenceID  string
	PaymentID    string
	ContactPhone string
}

// OrderLine is one line of a catalog order as it arrives on the wire, price
// still in rupees.
type OrderLine struct {
	ItemID      string
	Quantity    int
	PriceRupees float64
}

// --- messaging webhook wire shapes ---

type webhookBody struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []wireMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type wireMessage struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
	Button struct {
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"button"`
	Interactive struct {
		Type        string `json:"type"`
		ButtonReply struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply"`
		NfmReply struct {
			ResponseJSON string `json:"response_json"`
		} `json:"nfm_reply"`
	} `json:"interactive"`
	Order struct {
		CatalogID    string `json:"catalog_id"`
		ProductItems []struct {
			ProductRetailerID string  `json:"product_retailer_id"`
			Quantity          int     `json:"quantity"`
			ItemPrice         float64 `json:"item_price"`
			Currency          string  `json:"currency"`
		} `json:"product_items"`
	} `json:"order"`
}

// ParseWebhook flattens a messaging webhook delivery into events, one per
// message entry. Entries without messages (status updates) are skipped.
func ParseWebhook(body []byte) ([]Event, error) {
	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return nil, fmt.Errorf("parse webhook body: %w", err)
	}

	var events []Event
	for _, entry := range wb.Entry {
		for _, change := range entry.Changes {
			profile := ""
			if len(change.Value.Contacts) > 0 {
				profile = change.Value.Contacts[0].Profile.Name
			}
			for _, msg := range change.Value.Messages {
				e := Event{
					ID:          msg.ID,
					From:        store.NormalizePhone(msg.From),
					ProfileName: profile,
					Type:        msg.Type,
				}
				switch msg.Type {
				case "text":
					e.Text = msg.Text.Body
				case "button":
					e.Text = msg.Button.Text
					e.ButtonID = msg.Button.Payload
				case "interactive":
					switch msg.Interactive.Type {
					case "button_reply":
						e.ButtonID = msg.Interactive.ButtonReply.ID
						e.Text = msg.Interactive.ButtonReply.Title
					case "list_reply":
						e.ButtonID = msg.Interactive.ListReply.ID
						e.Text = msg.Interactive.ListReply.Title
					case "nfm_reply":
						e.FlowJSON = msg.Interactive.NfmReply.ResponseJSON
					}
				case "order":
					for _, it := range msg.Order.ProductItems {
						e.Order = append(e.Order, OrderLine{
							ItemID:      it.ProductRetailerID,
							Quantity:    it.Quantity,
							PriceRupees: it.ItemPrice,
						})
					}
				}
				events = append(events, e)
			}
		}
	}
	return events, nil
}

// --- payment webhook wire shapes ---

type paymentWebhook struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID          string          `json:"id"`
				ReferenceID string          `json:"reference_id"`
				Contact     string          `json:"contact"`
				Notes       json.RawMessage `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
		PaymentLink struct {
			Entity struct {
				ReferenceID string `json:"reference_id"`
			} `json:"entity"`
		} `json:"payment_link"`
	} `json:"payload"`
}

// ParsePaymentWebhook reduces a payment provider callback to a single event.
// Reference id resolution order: payment_link.reference_id, then
// payment.reference_id, then payment.notes.orderId. The payer contact is
// kept for the latest-order-by-phone fallback.
func ParsePaymentWebhook(body []byte) (Event, error) {
	var pw paymentWebhook
	if err := json.Unmarshal(body, &pw); err != nil {
		return Event{}, fmt.Errorf("parse payment webhook: %w", err)
	}

	entity := pw.Payload.Payment.Entity
	refID := pw.Payload.PaymentLink.Entity.ReferenceID
	if refID == "" {
		refID = entity.ReferenceID
	}
	if refID == "" && len(entity.Notes) > 0 {
		// notes arrives as an object when set and an empty array otherwise
		var notes map[string]string
		if err := json.Unmarshal(entity.Notes, &notes); err == nil {
			refID = notes["orderId"]
		}
	}

	return Event{
		Type:         "payment",
		PaymentEvent: pw.Event,
		ReferenceID:  refID,
		PaymentID:    entity.ID,
		ContactPhone: store.NormalizePhone(entity.Contact),
	}, nil
}
