package models

import "time"

// ReservationStatus represents the state of a stock reservation.
type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "RESERVED"
	ReservationStatusCommitted ReservationStatus = "COMMITTED"
	ReservationStatusReleased  ReservationStatus = "RELEASED"
	ReservationStatusExpired   ReservationStatus = "EXPIRED"
)

// Reservation is a time-boxed hold against product stock pending order
// completion. COMMITTED, RELEASED and EXPIRED are terminal.
type Reservation struct {
	ID        string            `json:"id"`
	ProductID string            `json:"product_id"`
	Quantity  int               `json:"quantity"`
	OwnerRef  string            `json:"owner_ref"`
	Status    ReservationStatus `json:"status"`
	ExpiresAt time.Time         `json:"expires_at"`
	CreatedAt time.Time         `json:"created_at"`
}

// IsExpired reports whether the reservation window has passed.
func (r *Reservation) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

// CanCommit reports whether the reservation may still be committed:
// only from RESERVED and only before expiry.
func (r *Reservation) CanCommit() bool {
	return r.Status == ReservationStatusReserved && !r.IsExpired()
}

// Product is the catalog row the reservation manager locks and decrements.
type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     Money     `json:"price"`
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
