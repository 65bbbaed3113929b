package models

import (
	"time"
)

type PaymentMode string

const (
	PaymentModeUnset   PaymentMode = ""
	PaymentModeCOD     PaymentMode = "COD"
	PaymentModePrepaid PaymentMode = "Prepaid"
)

type PaymentStatus string

const (
	PaymentStatusUnset    PaymentStatus = ""
	PaymentStatusAwaiting PaymentStatus = "Awaiting Payment"
	PaymentStatusPaid     PaymentStatus = "Paid"
	PaymentStatusFailed   PaymentStatus = "Failed"
)

// ProductItem is a single line of a catalog order. Price is held in paise so
// totals never touch floating point.
type ProductItem struct {
	ItemID     string `json:"item_id"`
	Quantity   int    `json:"quantity"`
	PricePaise int64  `json:"price_paise"`
}

// CustomerDetails holds the delivery-details form submission.
type CustomerDetails struct {
	Name     string `json:"name" validate:"required"`
	Address1 string `json:"address1" validate:"required"`
	Address2 string `json:"address2"`
	Pincode  string `json:"pincode" validate:"required,len=6,numeric"`
	City     string `json:"city"`
	State    string `json:"state"`
	Phone    string `json:"phone"`
	Email    string `json:"email" validate:"omitempty,email"`
}

// Session tracks one order's progress from catalog selection through payment
// and shipment. Sessions live for the life of the process and are never
// deleted.
type Session struct {
	OrderID       string
	Phone         string
	Customer      CustomerDetails
	ProductItems  []ProductItem
	AmountPaise   int64
	PaymentMode   PaymentMode
	PaymentStatus PaymentStatus

	ShippingChargePaise int64

	// CodError is set when the COD rate quote parsed cleanly and cleared when
	// it did not. The name is inverted relative to its meaning; it is kept as
	// is because the persisted sheet and the ops runbook refer to it by this
	// name. True here means "no error".
	CodError bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subtotal returns the product subtotal in paise, before any surcharge.
func Subtotal(items []ProductItem) int64 {
	var total int64
	for _, it := range items {
		total += it.PricePaise * int64(it.Quantity)
	}
	return total
}

// Contact is a {name, email, phone} record captured by the idle-reminder
// follow-up flow.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}
