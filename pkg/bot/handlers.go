package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/orderfunnel/pkg/gateway"
	"github.com/example/orderfunnel/pkg/models"
)

// handleMenu serves branch 1. Stateless: replaying the request produces the
// same menu payload every time.
func (d *Dispatcher) handleMenu(ctx context.Context, e *Event) error {
	if e.ButtonID == "browse_catalog" {
		return d.messenger.SendCatalog(ctx, e.From, "Browse our catalog and add items to your cart.")
	}
	return d.messenger.SendList(ctx, e.From,
		"OUO Store",
		"Hi! What would you like to do today?",
		"Choose an option",
		[]gateway.ListSection{{
			Title: "Shop",
			Rows: []gateway.ListRow{
				{ID: "browse_catalog", Title: "Browse catalog", Description: "See all products"},
				{ID: "track_order", Title: "Track order", Description: "Check a shipment by AWB"},
				{ID: "payment_options", Title: "Payment options", Description: "UPI, cards, COD"},
				{ID: "contact_us", Title: "Contact us", Description: "Talk to support"},
			},
		}},
	)
}

// handleCatalogOrder serves branch 2: store the selection against the phone
// and ask for delivery details. No order id exists yet.
func (d *Dispatcher) handleCatalogOrder(ctx context.Context, e *Event) error {
	items := make([]models.ProductItem, 0, len(e.Order))
	var amountPaise int64
	for _, line := range e.Order {
		pricePaise := int64(math.Round(line.PriceRupees * 100))
		items = append(items, models.ProductItem{
			ItemID:     line.ItemID,
			Quantity:   line.Quantity,
			PricePaise: pricePaise,
		})
		amountPaise += pricePaise * int64(line.Quantity)
	}
	d.sessions.RecordCatalogSelection(e.From, items, amountPaise)

	d.logger.Info("catalog selection recorded",
		zap.String("phone", e.From),
		zap.Int("items", len(items)),
		zap.Int64("amount_paise", amountPaise))

	return d.messenger.SendFlow(ctx, e.From,
		"Delivery details",
		fmt.Sprintf("Your cart totals Rs. %s. Fill in your delivery details to continue.", models.Rupees(amountPaise)),
		"Fill details",
		uuid.NewString(),
	)
}

// deliveryForm is the parsed nfm_reply payload.
type deliveryForm struct {
	Name        string `json:"name"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2"`
	Pincode     string `json:"pincode"`
	City        string `json:"city"`
	State       string `json:"state"`
	Email       string `json:"email"`
	PaymentMode string `json:"payment_mode"`
	FlowToken   string `json:"flow_token"`
}

// handleDeliveryDetails serves branch 3: mint the order id and run the COD or
// prepaid leg.
func (d *Dispatcher) handleDeliveryDetails(ctx context.Context, e *Event) error {
	var form deliveryForm
	if err := json.Unmarshal([]byte(e.FlowJSON), &form); err != nil {
		d.logger.Warn("unparseable flow reply", zap.String("from", e.From), zap.Error(err))
		return d.messenger.SendText(ctx, e.From, invalidDataMsg)
	}

	// Flow Builder test submissions carry a synthetic token; drop them
	// silently, they are not customer traffic.
	if strings.HasPrefix(form.FlowToken, "flows-builder") {
		d.logger.Info("ignoring flow health-check submission", zap.String("from", e.From))
		return nil
	}

	customer := models.CustomerDetails{
		Name:     form.Name,
		Address1: form.Address1,
		Address2: form.Address2,
		Pincode:  form.Pincode,
		City:     form.City,
		State:    form.State,
		Phone:    e.From,
		Email:    form.Email,
	}
	if err := d.validate.Struct(customer); err != nil {
		d.logger.Warn("delivery details failed validation", zap.String("from", e.From), zap.Error(err))
		return d.messenger.SendText(ctx, e.From, invalidDataMsg)
	}

	session := d.sessions.CreateSession(e.From, customer)
	d.logger.Info("session created",
		zap.String("order_id", session.OrderID),
		zap.String("phone", session.Phone),
		zap.Int64("amount_paise", session.AmountPaise))

	if isCODMode(form.PaymentMode) {
		return d.runCODLeg(ctx, session)
	}
	return d.runPrepaidLeg(ctx, session)
}

// isCODMode matches the submitted payment mode string case-insensitively;
// anything unrecognized is prepaid.
func isCODMode(mode string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "cod", "cash on delivery", "cash-on-delivery":
		return true
	}
	return false
}

// runCODLeg adds the COD fee and quoted shipping, creates the shipment and
// persists the row. Shipment rejection and bad customer data collapse to the
// same user message here.
func (d *Dispatcher) runCODLeg(ctx context.Context, s *models.Session) error {
	s.PaymentMode = models.PaymentModeCOD
	s.AmountPaise += codFeePaise

	weight := d.totalWeight(s.ProductItems)
	rupees, err := d.shipper.QuoteRate(ctx, d.opts.OriginPincode, s.Customer.Pincode, weight, "COD")
	if err == nil {
		paise := int64(math.Round(rupees * 100))
		s.ShippingChargePaise = paise
		s.AmountPaise += paise
		s.CodError = true // inverted name: true means the quote parsed fine
	} else {
		s.CodError = false
		d.logger.Warn("cod rate quote failed, shipping charge defaults to zero",
			zap.String("order_id", s.OrderID), zap.Error(err))
	}
	d.sessions.Touch(s)

	blob, createErr := d.shipper.CreateShipment(ctx, d.shipmentRequest(s, weight, "COD", models.Rupees(s.AmountPaise)))
	if createErr != nil {
		d.logger.Error("cod shipment creation failed",
			zap.String("order_id", s.OrderID), zap.Error(createErr))
	}

	if createErr == nil && s.CodError {
		if err := d.sheet.AppendOrder(ctx, models.NewOrderRow(s, "Pending", codFeePaise, blob)); err != nil {
			d.logger.Error("order row not persisted",
				zap.String("order_id", s.OrderID), zap.Error(err))
		}
		return d.messenger.SendText(ctx, s.Phone, fmt.Sprintf(
			"Order %s confirmed! Total payable on delivery: Rs. %s (includes Rs. %s COD fee). We'll message you when it ships.",
			s.OrderID, models.Rupees(s.AmountPaise), models.Rupees(codFeePaise)))
	}
	return d.messenger.SendText(ctx, s.Phone, invalidDataMsg)
}

// runPrepaidLeg quotes shipping for display only and sends the review-and-pay
// prompt. The session amount stays shipping-free until the finalizer runs.
func (d *Dispatcher) runPrepaidLeg(ctx context.Context, s *models.Session) error {
	s.PaymentMode = models.PaymentModePrepaid

	weight := d.totalWeight(s.ProductItems)
	var shippingPaise int64
	if rupees, err := d.shipper.QuoteRate(ctx, d.opts.OriginPincode, s.Customer.Pincode, weight, "Pre-paid"); err == nil {
		shippingPaise = int64(math.Round(rupees * 100))
	} else {
		d.logger.Warn("prepaid rate quote failed, showing zero shipping",
			zap.String("order_id", s.OrderID), zap.Error(err))
	}

	if err := d.messenger.SendOrderDetails(ctx, s.Phone,
		fmt.Sprintf("Review your order %s and complete the payment.", s.OrderID),
		gateway.OrderDetails{
			ReferenceID:   s.OrderID,
			Items:         s.ProductItems,
			SubtotalPaise: s.AmountPaise,
			TaxPaise:      0,
			ShippingPaise: shippingPaise,
		}); err != nil {
		return fmt.Errorf("send payment prompt: %w", err)
	}

	s.PaymentStatus = models.PaymentStatusAwaiting
	d.sessions.Touch(s)

	if err := d.sheet.AppendOrder(ctx, models.NewOrderRow(s, "Awaiting Payment", 0, "")); err != nil {
		d.logger.Error("awaiting-payment row not persisted",
			zap.String("order_id", s.OrderID), zap.Error(err))
	}

	return d.messenger.SendText(ctx, s.Phone,
		"We've sent a payment request above. Your order ships as soon as the payment is confirmed.")
}

// handlePaymentPaid serves branch 4. A miss on both lookups acknowledges the
// webhook and does nothing.
func (d *Dispatcher) handlePaymentPaid(ctx context.Context, e *Event) error {
	s := d.resolveSession(e)
	if s == nil {
		d.logger.Warn("paid webhook matched no session",
			zap.String("reference_id", e.ReferenceID),
			zap.String("contact", e.ContactPhone))
		return nil
	}
	return d.finalizer.Finalize(ctx, s)
}

// handlePaymentFailed serves branch 5: mark and notify, no gateway side
// effects.
func (d *Dispatcher) handlePaymentFailed(ctx context.Context, e *Event) error {
	s := d.resolveSession(e)
	if s == nil {
		return nil
	}
	s.PaymentStatus = models.PaymentStatusFailed
	d.sessions.Touch(s)
	return d.messenger.SendText(ctx, s.Phone, retryPayMsg)
}

// handleTracking serves branch 6: a 14-digit token anywhere in the text is an
// AWB, independent of any session.
func (d *Dispatcher) handleTracking(ctx context.Context, e *Event) error {
	awb := awbPattern.FindString(e.Text)
	return d.messenger.SendButtons(ctx, e.From,
		fmt.Sprintf("Track shipment %s here:\n%s", awb, d.shipper.TrackingLink(awb)),
		[]gateway.Button{{ID: "main_menu", Title: "Main menu"}})
}

// handleIntent serves branch 7: canned reply plus suggested next intents as
// quick-reply buttons.
func (d *Dispatcher) handleIntent(ctx context.Context, e *Event) error {
	resp, _ := d.intents.Lookup(e.Text)
	buttons := make([]gateway.Button, 0, len(resp.Suggest))
	for _, s := range resp.Suggest {
		buttons = append(buttons, gateway.Button{ID: suggestionID(s), Title: s})
	}
	return d.messenger.SendButtons(ctx, e.From, resp.Text, buttons)
}

// suggestionID derives a stable button id from a suggestion title so a tap
// routes back into the matching branch ("Main menu" -> main_menu).
func suggestionID(title string) string {
	return strings.ReplaceAll(strings.ToLower(title), " ", "_")
}

// handleReminderFollowup serves branch 8: the text before the email is the
// name; connector words are stripped and the rest title-cased.
func (d *Dispatcher) handleReminderFollowup(ctx context.Context, e *Event) error {
	email := emailPattern.FindString(e.Text)
	name := nameFromFollowup(e.Text, email)
	if name == "" {
		name = e.ProfileName
	}

	contact := models.Contact{Name: name, Email: email, Phone: e.From}
	if err := d.contacts.Save(ctx, contact); err != nil {
		d.logger.Error("contact not saved", zap.String("phone", e.From), zap.Error(err))
	}
	if err := d.sheet.AppendContact(ctx, contact); err != nil {
		d.logger.Error("contact row not persisted", zap.String("phone", e.From), zap.Error(err))
	}
	d.scheduler.MarkCompleted(e.From)

	return d.messenger.SendText(ctx, e.From,
		fmt.Sprintf("Thanks %s! You're on the list — we'll keep you posted.", name))
}

// handleFallback serves branch 9.
func (d *Dispatcher) handleFallback(ctx context.Context, e *Event) error {
	if e.Text == "" {
		return nil
	}
	answer, err := d.responder.Answer(ctx, e.Text)
	if err != nil {
		d.logger.Warn("ai responder unavailable", zap.Error(err))
		return d.messenger.SendText(ctx, e.From, apologyMsg)
	}
	return d.messenger.SendText(ctx, e.From, answer)
}

// --- helpers ---

var connectorWords = map[string]bool{
	"my": true, "name": true, "is": true, "i": true, "am": true, "i'm": true,
	"this": true, "it's": true, "its": true, "email": true, "mail": true,
	"id": true, "and": true, "the": true, "here": true, "-": true, ":": true,
}

// nameFromFollowup extracts a display name from "my name is Asha K,
// asha@x.in" style messages.
func nameFromFollowup(text, email string) string {
	idx := strings.Index(text, email)
	if idx < 0 {
		return ""
	}
	before := strings.TrimRight(strings.TrimSpace(text[:idx]), " ,;:-")
	var words []string
	for _, w := range strings.Fields(before) {
		if connectorWords[strings.ToLower(w)] {
			continue
		}
		words = append(words, titleCase(w))
	}
	return strings.Join(words, " ")
}

func titleCase(w string) string {
	if w == "" {
		return w
	}
	lower := strings.ToLower(w)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

func (d *Dispatcher) totalWeight(items []models.ProductItem) int {
	var grams int
	for _, it := range items {
		grams += d.opts.WeightFor(it.ItemID) * it.Quantity
	}
	return grams
}

func (d *Dispatcher) shipmentRequest(s *models.Session, weightGrams int, paymentMode, codAmount string) gateway.ShipmentRequest {
	address := s.Customer.Address1
	if s.Customer.Address2 != "" {
		address += ", " + s.Customer.Address2
	}
	descs := make([]string, 0, len(s.ProductItems))
	for _, it := range s.ProductItems {
		descs = append(descs, fmt.Sprintf("%s x%d", it.ItemID, it.Quantity))
	}
	if paymentMode != "COD" {
		codAmount = ""
	}
	return gateway.ShipmentRequest{
		OrderID:         s.OrderID,
		Name:            s.Customer.Name,
		Address:         address,
		Pincode:         s.Customer.Pincode,
		City:            s.Customer.City,
		State:           s.Customer.State,
		Phone:           s.Phone,
		WeightGrams:     weightGrams,
		Description:     strings.Join(descs, ", "),
		PaymentMode:     paymentMode,
		CODAmountRupees: codAmount,
	}
}
