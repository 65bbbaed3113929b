package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// OrderRow is one appended line of the order sheet.
type OrderRow struct {
	Timestamp      time.Time `json:"timestamp"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone"`
	Email          string    `json:"email"`
	Address        string    `json:"address"`
	Pincode        string    `json:"pincode"`
	Items          string    `json:"items"` // JSON string
	PaymentMode    string    `json:"payment_mode"`
	PaymentStatus  string    `json:"payment_status"`
	Amount         string    `json:"amount"` // rupees, 2-decimal string
	ShippingCharge string    `json:"shipping_charge"`
	CODCharge      string    `json:"cod_charge"`
	ShipmentResp   string    `json:"shipment_response"` // JSON string, "{}" if none
	OrderID        string    `json:"order_id"`
}

// Rupees formats an amount in paise as a 2-decimal rupee string.
func Rupees(paise int64) string {
	return fmt.Sprintf("%d.%02d", paise/100, paise%100)
}

// NewOrderRow flattens a session into the sheet row shape. The status column
// is free text ("Pending", "Awaiting Payment", "Paid") rather than the
// session enum; COD rows use "Pending" even though the session never enters
// an awaiting state.
func NewOrderRow(s *Session, status string, codChargePaise int64, shipmentResp string) OrderRow {
	items, err := json.Marshal(s.ProductItems)
	if err != nil {
		items = []byte("[]")
	}
	if shipmentResp == "" {
		shipmentResp = "{}"
	}
	address := s.Customer.Address1
	if s.Customer.Address2 != "" {
		address += ", " + s.Customer.Address2
	}
	return OrderRow{
		Timestamp:      time.Now(),
		Name:           s.Customer.Name,
		Phone:          s.Phone,
		Email:          s.Customer.Email,
		Address:        address,
		Pincode:        s.Customer.Pincode,
		Items:          string(items),
		PaymentMode:    string(s.PaymentMode),
		PaymentStatus:  status,
		Amount:         Rupees(s.AmountPaise),
		ShippingCharge: Rupees(s.ShippingChargePaise),
		CODCharge:      Rupees(codChargePaise),
		ShipmentResp:   shipmentResp,
		OrderID:        s.OrderID,
	}
}
