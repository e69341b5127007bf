package models

import "time"

// StockItem tracks sellable quantity for one product.
// Invariant: 0 <= Reserved <= Available; Available-Reserved is sellable.
type StockItem struct {
	ProductID string `json:"productId"`
	SKU       string `json:"sku"`
	Available int    `json:"available"`
	Reserved  int    `json:"reserved"`
}

type Reservation struct {
	ReservationID string            `json:"reservationId"`
	OrderID       string            `json:"orderId"`
	Items         []ReservationItem `json:"items"`
	CreatedAt     time.Time         `json:"createdAt"`
	ExpiresAt     time.Time         `json:"expiresAt"`
}

type ReservationItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}
