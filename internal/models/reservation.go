package models

import "time"

type Reservation struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	ResourceID int64     `json:"resource_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	State      string    `json:"state"` // pending, paid, cancelled
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DurationHours is the whole number of hours the reservation spans.
func (r *Reservation) DurationHours() int64 {
	return int64(r.EndTime.Sub(r.StartTime) / time.Hour)
}

// Overlaps reports whether [start, end) intersects the reservation.
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return r.StartTime.Before(end) && r.EndTime.After(start)
}

func (r *Reservation) IsCancelled() bool {
	return r.State == ReservationCancelled
}

// ReservationDetail is a reservation joined with its court and owner.
type ReservationDetail struct {
	Reservation
	ResourceName string `json:"resource_name"`
	UserEmail    string `json:"user_email,omitempty"`
}
