package bot

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/example/orderfunnel/pkg/audit"
	"github.com/example/orderfunnel/pkg/gateway"
	"github.com/example/orderfunnel/pkg/models"
)

// Finalizer runs the post-payment sequence: notify, re-quote shipping,
// create the shipment, and persist the final row. It carries no idempotency
// guard: a duplicate "paid" webhook re-runs the whole sequence.
type Finalizer struct {
	logger    *zap.Logger
	messenger Messenger
	shipper   Shipper
	sheet     Sheet
	trail     *audit.Trail
	opts      Options
}

func NewFinalizer(logger *zap.Logger, messenger Messenger, shipper Shipper, sheet Sheet, trail *audit.Trail, opts Options) *Finalizer {
	return &Finalizer{
		logger:    logger,
		messenger: messenger,
		shipper:   shipper,
		sheet:     sheet,
		trail:     trail,
		opts:      opts,
	}
}

// Finalize completes a paid order. Shipment creation may soft-fail; the
// "Paid" row is appended either way, with the provider blob when available
// and an empty object when not.
func (f *Finalizer) Finalize(ctx context.Context, s *models.Session) error {
	s.PaymentStatus = models.PaymentStatusPaid

	if err := f.messenger.SendText(ctx, s.Phone, fmt.Sprintf(
		"Payment received for order %s. We're preparing your shipment!", s.OrderID)); err != nil {
		f.logger.Warn("payment confirmation not delivered",
			zap.String("order_id", s.OrderID), zap.Error(err))
	}

	var weight int
	for _, it := range s.ProductItems {
		weight += f.opts.WeightFor(it.ItemID) * it.Quantity
	}

	// Shipping goes into the shipping-charge column only; the prepaid amount
	// deliberately excludes it.
	if rupees, err := f.shipper.QuoteRate(ctx, f.opts.OriginPincode, s.Customer.Pincode, weight, "Pre-paid"); err == nil {
		s.ShippingChargePaise = int64(math.Round(rupees * 100))
	} else {
		f.logger.Warn("post-payment rate quote failed",
			zap.String("order_id", s.OrderID), zap.Error(err))
	}

	address := s.Customer.Address1
	if s.Customer.Address2 != "" {
		address += ", " + s.Customer.Address2
	}
	blob, err := f.shipper.CreateShipment(ctx, shipmentFromSession(s, address, weight))
	if err != nil {
		f.logger.Error("shipment creation failed after payment",
			zap.String("order_id", s.OrderID), zap.Error(err))
		blob = ""
		if serr := f.messenger.SendText(ctx, s.Phone,
			"Your payment is confirmed. Shipment creation is taking a little longer than usual — we'll send your tracking details shortly."); serr != nil {
			f.logger.Warn("soft-failure notice not delivered", zap.Error(serr))
		}
	} else {
		if serr := f.messenger.SendText(ctx, s.Phone, fmt.Sprintf(
			"Order %s is on its way! You'll receive tracking details soon.", s.OrderID)); serr != nil {
			f.logger.Warn("shipment notice not delivered", zap.Error(serr))
		}
	}

	var codCharge int64
	if s.PaymentMode == models.PaymentModeCOD {
		codCharge = codFeePaise
	}
	if err := f.sheet.AppendOrder(ctx, models.NewOrderRow(s, "Paid", codCharge, blob)); err != nil {
		f.logger.Error("paid row not persisted",
			zap.String("order_id", s.OrderID), zap.Error(err))
	}

	f.trail.Record(ctx, "finalizer", "order_finalized", s.OrderID, map[string]interface{}{
		"phone":        s.Phone,
		"amount_paise": s.AmountPaise,
		"shipped":      err == nil,
	})
	return nil
}

func shipmentFromSession(s *models.Session, address string, weightGrams int) gateway.ShipmentRequest {
	descs := ""
	for i, it := range s.ProductItems {
		if i > 0 {
			descs += ", "
		}
		descs += fmt.Sprintf("%s x%d", it.ItemID, it.Quantity)
	}
	return gateway.ShipmentRequest{
		OrderID:     s.OrderID,
		Name:        s.Customer.Name,
		Address:     address,
		Pincode:     s.Customer.Pincode,
		City:        s.Customer.City,
		State:       s.Customer.State,
		Phone:       s.Phone,
		WeightGrams: weightGrams,
		Description: descs,
		PaymentMode: "Pre-paid",
	}
}
