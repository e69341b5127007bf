package notification

import (
	"fmt"
	"strings"

	"orderflow/pkg/models"
)

// Templates use #{key} placeholders filled from the notification payload's
// data map plus the standard order fields. Unknown keys render empty.
var templates = map[models.NotificationType]template{
	models.NotificationOrderConfirmation: {
		subject: "Order #{order_id} confirmed",
		body:    "Hi #{customer_id}, we received your order #{order_id} for #{amount} #{currency}. We'll let you know when payment completes.",
	},
	models.NotificationPaymentReceived: {
		subject: "Payment received for order #{order_id}",
		body:    "Your payment of #{amount} #{currency} for order #{order_id} was processed (transaction #{transaction_id}).",
	},
	models.NotificationPaymentFailed: {
		subject: "Payment failed for order #{order_id}",
		body:    "We could not process payment for order #{order_id}: #{reason}. Please update your payment method and try again.",
	},
	models.NotificationOrderCancelled: {
		subject: "Order #{order_id} cancelled",
		body:    "Order #{order_id} was cancelled: #{reason}. Any completed payment will be refunded.",
	},
}

type template struct {
	subject string
	body    string
}

func lookupTemplate(nt models.NotificationType) (template, bool) {
	t, ok := templates[nt]
	return t, ok
}

func (t template) render(payload models.NotificationRequestedPayload) (string, string) {
	vars := map[string]string{
		"order_id":    payload.OrderID,
		"customer_id": payload.CustomerID,
	}
	for k, v := range payload.Data {
		vars[k] = v
	}
	return substitute(t.subject, vars), substitute(t.body, vars)
}

func substitute(text string, vars map[string]string) string {
	for k, v := range vars {
		text = strings.ReplaceAll(text, fmt.Sprintf("#{%s}", k), v)
	}
	// Unfilled placeholders render empty rather than leaking markers.
	for {
		start := strings.Index(text, "#{")
		if start < 0 {
			return text
		}
		end := strings.Index(text[start:], "}")
		if end < 0 {
			return text
		}
		text = text[:start] + text[start+end+1:]
	}
}
