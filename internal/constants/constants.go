package constants

import "time"

const (
	QueueOrders        = "orders"
	QueuePayments      = "payments"
	QueueInventory     = "inventory"
	QueueNotifications = "notifications"

	DLQSuffix = "-dlq"
)

const (
	AttrEventType     = "EventType"
	AttrCorrelationID = "CorrelationId"
)

const (
	DefaultBatchSize           = 10
	DefaultWaitTime            = 20 * time.Second
	DefaultHandlerTimeout      = 25 * time.Second
	DefaultStopGrace           = 30 * time.Second
	DefaultIdempotencyCapacity = 10000
)

const (
	DefaultNotificationRateLimit = 10
	NotificationRateWindow       = time.Hour
)

const (
	DefaultReservationTTL = 30 * time.Minute
	DefaultSweepInterval  = time.Minute
)

const (
	PaymentFailureMarker      = "FAIL"
	DefaultPaymentFailureRate = 0.1
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	IdempotencyKeyPrefixPayment   = "payment:"
	IdempotencyKeyPrefixInventory = "inventory:"
	RedisKeyPrefixIdempotency     = "idem:"
)
