package models

type NotificationType string

const (
	NotificationOrderConfirmation NotificationType = "ORDER_CONFIRMATION"
	NotificationPaymentReceived   NotificationType = "PAYMENT_RECEIVED"
	NotificationPaymentFailed     NotificationType = "PAYMENT_FAILED"
	NotificationOrderCancelled    NotificationType = "ORDER_CANCELLED"
)

type OrderCreatedPayload struct {
	Order Order `json:"order"`
}

type PaymentRequestedPayload struct {
	OrderID       string      `json:"orderId"`
	CustomerID    string      `json:"customerId"`
	CustomerEmail string      `json:"customerEmail"`
	Amount        float64     `json:"amount"`
	Currency      string      `json:"currency"`
	Items         []OrderItem `json:"items"`
}

// PaymentResultPayload is published to the orders queue after a payment
// attempt so audit consumers can follow the saga outcome.
type PaymentResultPayload struct {
	OrderID       string `json:"orderId"`
	Status        string `json:"status"`
	TransactionID string `json:"transactionId,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

type InventoryReserveRequestedPayload struct {
	OrderID       string            `json:"orderId"`
	CustomerID    string            `json:"customerId"`
	CustomerEmail string            `json:"customerEmail"`
	Items         []ReservationItem `json:"items"`
}

type NotificationRequestedPayload struct {
	NotificationType NotificationType  `json:"notificationType"`
	OrderID          string            `json:"orderId"`
	CustomerID       string            `json:"customerId"`
	CustomerEmail    string            `json:"customerEmail"`
	Data             map[string]string `json:"data"`
}

const (
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusDeclined  = "DECLINED"
)
