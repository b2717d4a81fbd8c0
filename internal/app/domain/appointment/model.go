package appointment

import "time"

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusBooked    Status = "booked"
	StatusCancelled Status = "cancelled"
)

// Appointment is a customer's booking with a master.
type Appointment struct {
	ID                 int64      `db:"id"`
	MasterID           int64      `db:"master_id"`
	CustomerTelegramID int64      `db:"customer_telegram_id"`
	StartAt            time.Time  `db:"start_at"`
	EndAt              time.Time  `db:"end_at"`
	Status             Status     `db:"status"`
	CreatedAt          time.Time  `db:"created_at"`
	CancelledAt        *time.Time `db:"cancelled_at"`
}

// Overlaps reports whether the appointment intersects [start, end).
func (a Appointment) Overlaps(start, end time.Time) bool {
	return a.StartAt.Before(end) && start.Before(a.EndAt)
}

// Filter narrows appointment listings. Zero values are ignored; From is
// inclusive and To exclusive on StartAt.
type Filter struct {
	MasterID           *int64
	CustomerTelegramID *int64
	From               *time.Time
	To                 *time.Time
}

// Match reports whether a satisfies the filter.
func (f Filter) Match(a Appointment) bool {
	if f.MasterID != nil && a.MasterID != *f.MasterID {
		return false
	}
	if f.CustomerTelegramID != nil && a.CustomerTelegramID != *f.CustomerTelegramID {
		return false
	}
	if f.From != nil && a.StartAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !a.StartAt.Before(*f.To) {
		return false
	}
	return true
}
