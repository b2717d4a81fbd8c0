package admin

import "time"

// Admin is a Telegram user bootstrapped with administrator rights.
type Admin struct {
	ID         int64     `db:"id"`
	TelegramID int64     `db:"telegram_id"`
	CreatedAt  time.Time `db:"created_at"`
}
