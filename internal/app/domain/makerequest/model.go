package makerequest

import "time"

// Status tracks delivery of an incoming message to Make.
type Status string

const (
	StatusCreated   Status = "created"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCompleted Status = "completed"
)

// MaxErrorLength bounds Request.LastError.
const MaxErrorLength = 500

// Request maps a correlation id sent to Make back to the originating chat.
type Request struct {
	ID            int64     `db:"id"`
	CorrelationID string    `db:"correlation_id"`
	ChatID        int64     `db:"chat_id"`
	UserID        int64     `db:"user_id"`
	MessageID     *int64    `db:"message_id"`
	Status        Status    `db:"status"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
	LastError     *string   `db:"last_error"`
}

// TruncateError shortens msg to MaxErrorLength runes.
func TruncateError(msg string) string {
	r := []rune(msg)
	if len(r) <= MaxErrorLength {
		return msg
	}
	return string(r[:MaxErrorLength])
}
