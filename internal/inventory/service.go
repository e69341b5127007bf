package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"orderflow/internal/broker"
	"orderflow/internal/config"
	"orderflow/internal/constants"
	"orderflow/internal/logger"
	"orderflow/internal/runtime"
	"orderflow/pkg/metrics"
	"orderflow/pkg/models"
)

type Publisher interface {
	Publish(ctx context.Context, queueURL string, env models.Envelope) error
}

// Shortfall names one line item that could not be covered.
type Shortfall struct {
	ProductID string `json:"productId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// Service holds stock levels and reservations for the inventory stage.
// One mutex serializes the whole check-then-reserve so a reservation is
// all-or-nothing even under concurrent batch processing.
type Service struct {
	runtime.EnvelopeHandler

	publisher Publisher
	queues    broker.QueueURLs
	logger    logger.Logger
	ttl       time.Duration
	now       func() time.Time

	mu           sync.Mutex
	stock        map[string]*models.StockItem
	reservations map[string]*models.Reservation
	byOrder      map[string]string
}

func NewService(publisher Publisher, queues broker.QueueURLs, cfg config.InventoryConfig, log logger.Logger) *Service {
	ttl := cfg.ReservationTTL
	if ttl <= 0 {
		ttl = constants.DefaultReservationTTL
	}

	s := &Service{
		publisher:    publisher,
		queues:       queues,
		logger:       log,
		ttl:          ttl,
		now:          time.Now,
		stock:        make(map[string]*models.StockItem),
		reservations: make(map[string]*models.Reservation),
		byOrder:      make(map[string]string),
	}

	for _, seed := range cfg.Stock {
		s.stock[seed.ProductID] = &models.StockItem{
			ProductID: seed.ProductID,
			SKU:       seed.SKU,
			Available: seed.Available,
		}
	}

	return s
}

func (s *Service) IdempotencyKey(env models.Envelope) string {
	var payload models.InventoryReserveRequestedPayload
	if err := env.DecodePayload(&payload); err != nil || payload.OrderID == "" {
		return env.EventID
	}
	return constants.IdempotencyKeyPrefixInventory + payload.OrderID
}

func (s *Service) ProcessMessage(ctx context.Context, env models.Envelope) error {
	var payload models.InventoryReserveRequestedPayload
	if err := env.DecodePayload(&payload); err != nil {
		return fmt.Errorf("failed to decode inventory request: %w", err)
	}

	reservation, shortfalls, duplicate := s.Reserve(payload.OrderID, payload.Items)
	if duplicate {
		s.logger.InfowCtx(ctx, "reservation already exists, skipping",
			"order_id", payload.OrderID)
		return nil
	}

	if len(shortfalls) > 0 {
		metrics.ReservationsTotal.WithLabelValues("insufficient_stock").Inc()
		s.logger.WarnwCtx(ctx, "insufficient stock, order cancelled",
			"order_id", payload.OrderID, "shortfalls", shortfalls)
		return s.emitCancellation(ctx, env, payload, shortfalls)
	}

	metrics.ReservationsTotal.WithLabelValues("reserved").Inc()
	s.logger.InfowCtx(ctx, "stock reserved",
		"order_id", payload.OrderID,
		"reservation_id", reservation.ReservationID,
		"expires_at", reservation.ExpiresAt)
	return nil
}

// Reserve attempts an all-or-nothing reservation for the order. A repeated
// order id is a no-op and reports duplicate. On shortage nothing is
// reserved and every uncoverable line is reported.
func (s *Service) Reserve(orderID string, items []models.ReservationItem) (models.Reservation, []Shortfall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byOrder[orderID]; ok {
		if r, exists := s.reservations[id]; exists {
			return *r, nil, true
		}
	}

	var shortfalls []Shortfall
	for _, item := range items {
		stock, ok := s.stock[item.ProductID]
		if !ok {
			shortfalls = append(shortfalls, Shortfall{ProductID: item.ProductID, Requested: item.Quantity})
			continue
		}
		if free := stock.Available - stock.Reserved; item.Quantity > free {
			shortfalls = append(shortfalls, Shortfall{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: free,
			})
		}
	}
	if len(shortfalls) > 0 {
		return models.Reservation{}, shortfalls, false
	}

	now := s.now().UTC()
	reservation := &models.Reservation{
		ReservationID: "RES-" + uuid.NewString(),
		OrderID:       orderID,
		Items:         append([]models.ReservationItem(nil), items...),
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
	}

	for _, item := range items {
		stock := s.stock[item.ProductID]
		stock.Reserved += item.Quantity
		metrics.SetStockReserved(stock.ProductID, stock.Reserved)
	}

	s.reservations[reservation.ReservationID] = reservation
	s.byOrder[orderID] = reservation.ReservationID
	return *reservation, nil, false
}

// Release returns a reservation's quantities to the pool. Unknown ids
// report false; freed counts never go below zero.
func (s *Service) Release(reservationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked(reservationID)
}

func (s *Service) releaseLocked(reservationID string) bool {
	reservation, ok := s.reservations[reservationID]
	if !ok {
		return false
	}

	for _, item := range reservation.Items {
		stock, exists := s.stock[item.ProductID]
		if !exists {
			continue
		}
		stock.Reserved -= item.Quantity
		if stock.Reserved < 0 {
			stock.Reserved = 0
		}
		metrics.SetStockReserved(stock.ProductID, stock.Reserved)
	}

	delete(s.reservations, reservationID)
	delete(s.byOrder, reservation.OrderID)
	metrics.ReservationsTotal.WithLabelValues("released").Inc()
	return true
}

// SweepExpired releases every reservation whose ExpiresAt has passed and
// returns how many were released.
func (s *Service) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	var expired []string
	for id, r := range s.reservations {
		if now.After(r.ExpiresAt) {
			expired = append(expired, id)
		}
	}

	for _, id := range expired {
		orderID := s.reservations[id].OrderID
		if s.releaseLocked(id) {
			s.logger.Warnw("reservation expired and released",
				"reservation_id", id, "order_id", orderID)
		}
	}
	return len(expired)
}

// RunSweeper releases expired reservations on the configured interval until
// the context is cancelled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = constants.DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.SweepExpired(); n > 0 {
				s.logger.Infow("expired reservations swept", "count", n)
			}
		}
	}
}

// Stock reports a snapshot of current levels, ordered by product id.
func (s *Service) Stock() []models.StockItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.StockItem, 0, len(s.stock))
	for _, item := range s.stock {
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// ReservationForOrder reports the active reservation for an order, if any.
func (s *Service) ReservationForOrder(orderID string) (models.Reservation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byOrder[orderID]
	if !ok {
		return models.Reservation{}, false
	}
	r, ok := s.reservations[id]
	if !ok {
		return models.Reservation{}, false
	}
	return *r, true
}

func (s *Service) emitCancellation(ctx context.Context, env models.Envelope, payload models.InventoryReserveRequestedPayload, shortfalls []Shortfall) error {
	data := map[string]string{
		"reason": "insufficient stock",
	}
	for _, sf := range shortfalls {
		data["shortfall_"+sf.ProductID] = fmt.Sprintf("requested %d, available %d", sf.Requested, sf.Available)
	}

	notify, err := models.NewEnvelope(models.EventTypeNotificationRequested, env.CorrelationID, models.NotificationRequestedPayload{
		NotificationType: models.NotificationOrderCancelled,
		OrderID:          payload.OrderID,
		CustomerID:       payload.CustomerID,
		CustomerEmail:    payload.CustomerEmail,
		Data:             data,
	})
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, s.queues.Notifications, notify); err != nil {
		return fmt.Errorf("failed to publish cancellation notification: %w", err)
	}
	return nil
}
