package bot

import "time"

// SettingsID is the primary key of the singleton settings row.
const SettingsID = 1

// Settings is the persisted bot configuration. A nil token falls back to the
// process configuration.
type Settings struct {
	ID        int64     `db:"id"`
	BotToken  *string   `db:"bot_token"`
	IsEnabled bool      `db:"is_enabled"`
	UpdatedAt time.Time `db:"updated_at"`
}

// LogLevel classifies bot lifecycle events.
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

const (
	maxMessageLength = 1000
	maxDetailsLength = 5000
)

// Log is a persisted bot lifecycle event.
type Log struct {
	ID        int64     `db:"id"`
	Level     LogLevel  `db:"level"`
	Message   string    `db:"message"`
	Details   *string   `db:"details"`
	CreatedAt time.Time `db:"created_at"`
}

// NewLog builds an entry, clipping message and details to the column sizes.
func NewLog(level LogLevel, message, details string) Log {
	entry := Log{Level: level, Message: clip(message, maxMessageLength)}
	if details != "" {
		d := clip(details, maxDetailsLength)
		entry.Details = &d
	}
	return entry
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
