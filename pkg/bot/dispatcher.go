// Package bot holds the conversation state machine: the priority-ordered
// dispatcher over inbound events, and the order finalizer that runs once a
// payment is confirmed.
package bot

import (
	"context"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/example/orderfunnel/pkg/audit"
	"github.com/example/orderfunnel/pkg/gateway"
	"github.com/example/orderfunnel/pkg/intent"
	"github.com/example/orderfunnel/pkg/models"
	"github.com/example/orderfunnel/pkg/reminder"
	"github.com/example/orderfunnel/pkg/store"
)

// Messenger is the outbound messaging surface the dispatcher needs.
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
	SendButtons(ctx context.Context, to, body string, buttons []gateway.Button) error
	SendList(ctx context.Context, to, header, body, buttonLabel string, sections []gateway.ListSection) error
	SendCatalog(ctx context.Context, to, body string) error
	SendFlow(ctx context.Context, to, header, body, cta, flowToken string) error
	SendOrderDetails(ctx context.Context, to, body string, od gateway.OrderDetails) error
}

// Shipper quotes lanes and registers shipments.
type Shipper interface {
	QuoteRate(ctx context.Context, originPin, destPin string, weightGrams int, paymentType string) (float64, error)
	CreateShipment(ctx context.Context, sr gateway.ShipmentRequest) (string, error)
	TrackingLink(awb string) string
}

// Sheet appends rows to the persistence store.
type Sheet interface {
	AppendOrder(ctx context.Context, row models.OrderRow) error
	AppendContact(ctx context.Context, contact models.Contact) error
}

// Responder answers free text no other branch claimed.
type Responder interface {
	Answer(ctx context.Context, question string) (string, error)
}

// Options carries the funnel knobs the dispatcher needs from config.
type Options struct {
	OriginPincode string
	WeightFor     func(itemID string) int
}

const (
	codFeePaise = 15000 // flat Rs. 150 COD surcharge

	invalidDataMsg = "Sorry, the data entered was invalid. Please check your delivery details and try again."
	apologyMsg     = "Sorry, I couldn't find an answer for that right now. Reply 'menu' to see what I can help with."
	retryPayMsg    = "Your payment didn't go through. Please try again from the payment request above."
)

var (
	awbPattern   = regexp.MustCompile(`\b\d{14}\b`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
)

var greetings = map[string]bool{
	"hi":        true,
	"hello":     true,
	"hey":       true,
	"menu":      true,
	"start":     true,
	"namaste":   true,
	"main menu": true,
}

// route pairs a predicate with its handler. The slice order IS the priority
// order; the first match wins and nothing falls through.
type route struct {
	name   string
	match  func(e *Event) bool
	handle func(ctx context.Context, e *Event) error
}

type Dispatcher struct {
	logger    *zap.Logger
	sessions  *store.SessionStore
	contacts  *store.ContactStore
	intents   *intent.Table
	scheduler *reminder.Scheduler
	messenger Messenger
	shipper   Shipper
	sheet     Sheet
	responder Responder
	trail     *audit.Trail
	finalizer *Finalizer
	validate  *validator.Validate
	opts      Options

	routes []route
}

func NewDispatcher(
	logger *zap.Logger,
	sessions *store.SessionStore,
	contacts *store.ContactStore,
	intents *intent.Table,
	scheduler *reminder.Scheduler,
	messenger Messenger,
	shipper Shipper,
	sheet Sheet,
	responder Responder,
	trail *audit.Trail,
	opts Options,
) *Dispatcher {
	d := &Dispatcher{
		logger:    logger,
		sessions:  sessions,
		contacts:  contacts,
		intents:   intents,
		scheduler: scheduler,
		messenger: messenger,
		shipper:   shipper,
		sheet:     sheet,
		responder: responder,
		trail:     trail,
		validate:  validator.New(),
		opts:      opts,
	}
	d.finalizer = NewFinalizer(logger.Named("finalizer"), messenger, shipper, sheet, trail, opts)

	d.routes = []route{
		{"main-menu", d.isMenuRequest, d.handleMenu},
		{"catalog-order", func(e *Event) bool { return e.Type == "order" && len(e.Order) > 0 }, d.handleCatalogOrder},
		{"delivery-details", func(e *Event) bool { return e.FlowJSON != "" }, d.handleDeliveryDetails},
		{"payment-paid", d.isPaymentPaid, d.handlePaymentPaid},
		{"payment-failed", d.isPaymentFailed, d.handlePaymentFailed},
		{"awb-lookup", func(e *Event) bool { return e.Text != "" && awbPattern.MatchString(e.Text) }, d.handleTracking},
		{"canned-intent", d.isKnownIntent, d.handleIntent},
		{"reminder-followup", d.isReminderFollowup, d.handleReminderFollowup},
		{"ai-fallback", func(e *Event) bool { return true }, d.handleFallback},
	}
	return d
}

// Handle routes one inbound event. Errors are contained to the branch: they
// are logged and audited but never abort later events, and the webhook is
// always acknowledged upstream regardless.
func (d *Dispatcher) Handle(ctx context.Context, e *Event) {
	for _, r := range d.routes {
		if !r.match(e) {
			continue
		}
		d.logger.Info("dispatching event",
			zap.String("branch", r.name),
			zap.String("from", e.From),
			zap.String("type", e.Type))
		if err := r.handle(ctx, e); err != nil {
			d.logger.Error("branch failed",
				zap.String("branch", r.name),
				zap.String("from", e.From),
				zap.Error(err))
			d.trail.Record(ctx, "dispatcher", r.name+"_failed", e.From, map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			d.trail.Record(ctx, "dispatcher", r.name, e.From, map[string]interface{}{
				"type": e.Type,
			})
		}
		break
	}

	// Payment callbacks are provider traffic, not user activity; only user
	// messages re-arm the idle reminder.
	if e.Type != "payment" && e.From != "" {
		d.scheduler.Touch(e.From)
	}
}

// --- predicates ---

func (d *Dispatcher) isMenuRequest(e *Event) bool {
	if e.ButtonID == "main_menu" || e.ButtonID == "browse_catalog" {
		return true
	}
	return e.Type == "text" && greetings[strings.ToLower(strings.TrimSpace(e.Text))]
}

func (d *Dispatcher) isPaymentPaid(e *Event) bool {
	if e.Type != "payment" {
		return false
	}
	ev := strings.ToLower(e.PaymentEvent)
	return strings.Contains(ev, "paid") || strings.Contains(ev, "captured")
}

func (d *Dispatcher) isPaymentFailed(e *Event) bool {
	if e.Type != "payment" {
		return false
	}
	ev := strings.ToLower(e.PaymentEvent)
	return strings.Contains(ev, "failed") || strings.Contains(ev, "cancelled") || strings.Contains(ev, "expired")
}

func (d *Dispatcher) isKnownIntent(e *Event) bool {
	if e.Text == "" {
		return false
	}
	_, ok := d.intents.Lookup(e.Text)
	return ok
}

// isReminderFollowup gates branch 8: the phone was nudged, has not completed,
// and the text carries an email plus at least one other word (the name).
func (d *Dispatcher) isReminderFollowup(e *Event) bool {
	if e.Text == "" || e.From == "" {
		return false
	}
	if !d.scheduler.IsReminded(e.From) || d.scheduler.IsCompleted(e.From) {
		return false
	}
	if !emailPattern.MatchString(e.Text) {
		return false
	}
	return len(strings.Fields(e.Text)) >= 2
}

// resolveSession finds the session a payment webhook refers to: reference id
// first, then the payer phone's most recent order. A miss is a graceful
// no-op, never an error.
func (d *Dispatcher) resolveSession(e *Event) *models.Session {
	if e.ReferenceID != "" {
		if s, err := d.sessions.Get(e.ReferenceID); err == nil {
			return s
		}
	}
	if e.ContactPhone != "" {
		if s, err := d.sessions.FindLatestByPhone(e.ContactPhone); err == nil {
			return s
		}
	}
	return nil
}
