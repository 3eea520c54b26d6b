package domain

import (
	"time"
)

type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "RESERVED"
	ReservationStatusReleased  ReservationStatus = "RELEASED"
	ReservationStatusCommitted ReservationStatus = "COMMITTED"
)

type StockLevel struct {
	ProductID   string
	WarehouseID string
	Available   int32
}

// Reservation holds stock for one (orderID, productID) pair. At most one row
// exists per pair, which keeps retried OrderCreated deliveries from
// double-reserving.
type Reservation struct {
	ID                string
	OrderID           string
	ProductID         string
	WarehouseID       string
	QuantityRequested int32
	QuantityReserved  int32
	Status            ReservationStatus
	ExpiresAt         time.Time
	CreatedAt         time.Time
}
