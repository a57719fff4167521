package commerce

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/soyeahso/mercora/internal/domain"
)

// TrackingEvent is one step of a shipment's progress.
type TrackingEvent struct {
	Status      domain.OrderStatus `json:"status"`
	Description string             `json:"description"`
	At          time.Time          `json:"at"`
}

// Tracking is the shipment view of an order.
type Tracking struct {
	OrderID           string             `json:"order_id"`
	Status            domain.OrderStatus `json:"status"`
	Carrier           string             `json:"carrier"`
	TrackingNumber    string             `json:"tracking_number,omitempty"`
	EstimatedDelivery *time.Time         `json:"estimated_delivery,omitempty"`
	Events            []TrackingEvent    `json:"events"`
}

var statusDescriptions = map[domain.OrderStatus]string{
	domain.OrderPending:    "Order received",
	domain.OrderConfirmed:  "Payment confirmed",
	domain.OrderProcessing: "Preparing for shipment",
	domain.OrderShipped:    "Handed to carrier",
	domain.OrderDelivered:  "Delivered",
	domain.OrderCancelled:  "Order cancelled",
}

// Track derives tracking details from an order's status history. A
// tracking number exists once the order has shipped.
func Track(o *domain.Order) Tracking {
	t := Tracking{
		OrderID: o.ID,
		Status:  o.Status,
		Carrier: CarrierFor(o.ShippingMethod),
		Events:  make([]TrackingEvent, 0, len(o.History)),
	}

	var shippedAt time.Time
	for _, h := range o.History {
		desc := statusDescriptions[h.Status]
		if h.Note != "" {
			desc += ": " + h.Note
		}
		t.Events = append(t.Events, TrackingEvent{Status: h.Status, Description: desc, At: h.At})
		if h.Status == domain.OrderShipped {
			shippedAt = h.At
		}
	}

	switch o.Status {
	case domain.OrderShipped, domain.OrderDelivered:
		t.TrackingNumber = TrackingNumber(o.ID, t.Carrier)
	}
	switch o.Status {
	case domain.OrderCancelled, domain.OrderDelivered:
	default:
		from := o.CreatedAt
		if !shippedAt.IsZero() {
			from = shippedAt
		}
		eta := from.AddDate(0, 0, TransitDays(o.ShippingMethod))
		t.EstimatedDelivery = &eta
	}
	return t
}

// TrackingNumber is a stable carrier-style number for an order.
func TrackingNumber(orderID, carrier string) string {
	h := fnv.New64a()
	h.Write([]byte(orderID))
	prefix := "9400"
	switch carrier {
	case "UPS":
		prefix = "1Z"
	case "FedEx":
		prefix = "7489"
	}
	return fmt.Sprintf("%s%016d", prefix, h.Sum64()%1e16)
}
