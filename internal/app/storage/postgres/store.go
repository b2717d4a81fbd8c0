package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/R3E-Network/barbershop/internal/app/domain/admin"
	"github.com/R3E-Network/barbershop/internal/app/domain/appointment"
	"github.com/R3E-Network/barbershop/internal/app/domain/bot"
	"github.com/R3E-Network/barbershop/internal/app/domain/makerequest"
	"github.com/R3E-Network/barbershop/internal/app/domain/master"
	"github.com/R3E-Network/barbershop/internal/app/storage"
)

const (
	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

// mapErr translates driver errors into storage sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqForeignKeyViolation, pqUniqueViolation:
			return fmt.Errorf("%s: %w", pqErr.Message, storage.ErrConflict)
		}
	}
	return err
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// --- MasterStore ------------------------------------------------------------

const masterColumns = `id, name, description, experience_years, is_active, photo_path, created_at`

func (s *Store) CreateMaster(ctx context.Context, m master.Master) (master.Master, error) {
	var out master.Master
	err := s.db.GetContext(ctx, &out, `
		INSERT INTO masters (name, description, experience_years, is_active, photo_path)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+masterColumns,
		m.Name, m.Description, m.ExperienceYears, m.IsActive, m.PhotoPath)
	if err != nil {
		return master.Master{}, mapErr(err)
	}
	return out, nil
}

func (s *Store) UpdateMaster(ctx context.Context, m master.Master) (master.Master, error) {
	var out master.Master
	err := s.db.GetContext(ctx, &out, `
		UPDATE masters
		SET name = $2, description = $3, experience_years = $4, is_active = $5, photo_path = $6
		WHERE id = $1
		RETURNING `+masterColumns,
		m.ID, m.Name, m.Description, m.ExperienceYears, m.IsActive, m.PhotoPath)
	if err != nil {
		return master.Master{}, mapErr(err)
	}
	return out, nil
}

func (s *Store) GetMaster(ctx context.Context, id int64) (master.Master, error) {
	var out master.Master
	if err := s.db.GetContext(ctx, &out, `SELECT `+masterColumns+` FROM masters WHERE id = $1`, id); err != nil {
		return master.Master{}, mapErr(err)
	}
	return out, nil
}

func (s *Store) FindMasterByName(ctx context.Context, name string) (master.Master, error) {
	var out master.Master
	err := s.db.GetContext(ctx, &out, `
		SELECT `+masterColumns+` FROM masters
		WHERE lower(name) = lower($1)
		ORDER BY id
		LIMIT 1`, name)
	if err != nil {
		return master.Master{}, mapErr(err)
	}
	return out, nil
}

func (s *Store) ListMasters(ctx context.Context) ([]master.Master, error) {
	var out []master.Master
	if err := s.db.SelectContext(ctx, &out, `SELECT `+masterColumns+` FROM masters ORDER BY id`); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) DeleteMaster(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM masters WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- WorkingHoursStore ------------------------------------------------------

const workingHoursColumns = `id, master_id, day_of_week, start_time, end_time`

func (s *Store) ListWorkingHours(ctx context.Context, masterID int64) ([]master.WorkingHours, error) {
	var out []master.WorkingHours
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+workingHoursColumns+` FROM working_hours
		WHERE master_id = $1
		ORDER BY day_of_week, start_time`, masterID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ReplaceWorkingHours(ctx context.Context, masterID int64, hours []master.WorkingHours) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := lockMaster(ctx, tx, masterID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM working_hours WHERE master_id = $1`, masterID); err != nil {
			return err
		}
		for _, wh := range hours {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO working_hours (master_id, day_of_week, start_time, end_time)
				VALUES ($1, $2, $3, $4)`, masterID, wh.DayOfWeek, wh.Start, wh.End)
			if err != nil {
				return mapErr(err)
			}
		}
		return nil
	})
}

// lockMaster takes a row lock on the master, serialising schedule writers.
func lockMaster(ctx context.Context, tx *sqlx.Tx, masterID int64) error {
	var id int64
	if err := tx.GetContext(ctx, &id, `SELECT id FROM masters WHERE id = $1 FOR UPDATE`, masterID); err != nil {
		return mapErr(err)
	}
	return nil
}

// --- AppointmentStore -------------------------------------------------------

const appointmentColumns = `id, master_id, customer_telegram_id, start_at, end_at, status, created_at, cancelled_at`

func (s *Store) GetAppointment(ctx context.Context, id int64) (appointment.Appointment, error) {
	var out appointment.Appointment
	if err := s.db.GetContext(ctx, &out, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id); err != nil {
		return appointment.Appointment{}, mapErr(err)
	}
	return out, nil
}

func (s *Store) ListAppointments(ctx context.Context, filter appointment.Filter) ([]appointment.Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.MasterID != nil {
		add("master_id = $%d", *filter.MasterID)
	}
	if filter.CustomerTelegramID != nil {
		add("customer_telegram_id = $%d", *filter.CustomerTelegramID)
	}
	if filter.From != nil {
		add("start_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("start_at < $%d", *filter.To)
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY start_at, id`

	var out []appointment.Appointment
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) WithMasterSchedule(ctx context.Context, masterID int64, fn func(ctx context.Context, sched storage.Schedule) error) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := lockMaster(ctx, tx, masterID); err != nil {
			return err
		}
		return fn(ctx, &schedule{tx: tx, masterID: masterID})
	})
}

// schedule operates inside the transaction holding the master row lock.
type schedule struct {
	tx       *sqlx.Tx
	masterID int64
}

func (t *schedule) WorkingHoursOn(ctx context.Context, dayOfWeek int) ([]master.WorkingHours, error) {
	var out []master.WorkingHours
	err := t.tx.SelectContext(ctx, &out, `
		SELECT `+workingHoursColumns+` FROM working_hours
		WHERE master_id = $1 AND day_of_week = $2
		ORDER BY start_time`, t.masterID, dayOfWeek)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *schedule) HasOverlap(ctx context.Context, start, end time.Time, excludeID int64) (bool, error) {
	var exists bool
	err := t.tx.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE master_id = $1 AND status = $2
			  AND start_at < $4 AND $3 < end_at
			  AND id <> $5
		)`, t.masterID, appointment.StatusBooked, start, end, excludeID)
	return exists, err
}

func (t *schedule) GetAppointment(ctx context.Context, id int64) (appointment.Appointment, error) {
	var out appointment.Appointment
	err := t.tx.GetContext(ctx, &out, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE id = $1 AND master_id = $2`, id, t.masterID)
	if err != nil {
		return appointment.Appointment{}, mapErr(err)
	}
	return out, nil
}

func (t *schedule) InsertAppointment(ctx context.Context, a appointment.Appointment) (appointment.Appointment, error) {
	var out appointment.Appointment
	err := t.tx.GetContext(ctx, &out, `
		INSERT INTO appointments (master_id, customer_telegram_id, start_at, end_at, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+appointmentColumns,
		t.masterID, a.CustomerTelegramID, a.StartAt, a.EndAt, a.Status)
	if err != nil {
		return appointment.Appointment{}, mapErr(err)
	}
	return out, nil
}

func (t *schedule) UpdateAppointment(ctx context.Context, a appointment.Appointment) (appointment.Appointment, error) {
	var out appointment.Appointment
	err := t.tx.GetContext(ctx, &out, `
		UPDATE appointments
		SET start_at = $3, end_at = $4, status = $5, cancelled_at = $6
		WHERE id = $1 AND master_id = $2
		RETURNING `+appointmentColumns,
		a.ID, t.masterID, a.StartAt, a.EndAt, a.Status, a.CancelledAt)
	if err != nil {
		return appointment.Appointment{}, mapErr(err)
	}
	return out, nil
}

// --- MakeRequestStore -------------------------------------------------------

const makeRequestColumns = `id, correlation_id, chat_id, user_id, message_id, status, created_at, updated_at, last_error`

func (s *Store) CreateMakeRequest(ctx context.Context, req makerequest.Request) (makerequest.Request, error) {
	if req.Status == "" {
		req.Status = makerequest.StatusCreated
	}
	var out makerequest.Request
	err := s.db.GetContext(ctx, &out, `
		INSERT INTO make_requests (correlation_id, chat_id, user_id, message_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+makeRequestColumns,
		req.CorrelationID, req.ChatID, req.UserID, req.MessageID, req.Status)
	if err != nil {
		return makerequest.Request{}, mapErr(err)
	}
	return out, nil
}

func (s *Store) GetMakeRequestByCorrelationID(ctx context.Context, correlationID string) (makerequest.Request, error) {
	var out makerequest.Request
	err := s.db.GetContext(ctx, &out, `SELECT `+makeRequestColumns+` FROM make_requests WHERE correlation_id = $1`, correlationID)
	if err != nil {
		return makerequest.Request{}, mapErr(err)
	}
	return out, nil
}

func (s *Store) SetMakeRequestStatus(ctx context.Context, id int64, status makerequest.Status, lastError *string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE make_requests
		SET status = $2, last_error = $3, updated_at = now()
		WHERE id = $1`, id, status, lastError)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) FailStaleMakeRequests(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE make_requests
		SET status = $1, last_error = $2, updated_at = now()
		WHERE status = $3 AND created_at < $4`,
		makerequest.StatusFailed, makerequest.TruncateError(reason), makerequest.StatusCreated, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// --- AdminStore -------------------------------------------------------------

func (s *Store) EnsureAdmin(ctx context.Context, telegramID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO admins (telegram_id) VALUES ($1)
		ON CONFLICT (telegram_id) DO NOTHING`, telegramID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

func (s *Store) ListAdmins(ctx context.Context) ([]admin.Admin, error) {
	var out []admin.Admin
	if err := s.db.SelectContext(ctx, &out, `SELECT id, telegram_id, created_at FROM admins ORDER BY id`); err != nil {
		return nil, err
	}
	return out, nil
}

// --- BotStore ---------------------------------------------------------------

const botSettingsColumns = `id, bot_token, is_enabled, updated_at`

func (s *Store) GetBotSettings(ctx context.Context) (bot.Settings, error) {
	var out bot.Settings
	if err := s.db.GetContext(ctx, &out, `SELECT `+botSettingsColumns+` FROM bot_settings WHERE id = $1`, bot.SettingsID); err != nil {
		return bot.Settings{}, mapErr(err)
	}
	return out, nil
}

func (s *Store) SaveBotToken(ctx context.Context, token string) (bot.Settings, error) {
	var out bot.Settings
	err := s.db.GetContext(ctx, &out, `
		INSERT INTO bot_settings (id, bot_token, is_enabled, updated_at)
		VALUES ($1, $2, TRUE, now())
		ON CONFLICT (id) DO UPDATE SET bot_token = EXCLUDED.bot_token, updated_at = now()
		RETURNING `+botSettingsColumns, bot.SettingsID, token)
	if err != nil {
		return bot.Settings{}, err
	}
	return out, nil
}

func (s *Store) SaveBotEnabled(ctx context.Context, enabled bool) (bot.Settings, error) {
	var out bot.Settings
	err := s.db.GetContext(ctx, &out, `
		INSERT INTO bot_settings (id, is_enabled, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET is_enabled = EXCLUDED.is_enabled, updated_at = now()
		RETURNING `+botSettingsColumns, bot.SettingsID, enabled)
	if err != nil {
		return bot.Settings{}, err
	}
	return out, nil
}

func (s *Store) AppendBotLog(ctx context.Context, entry bot.Log) (bot.Log, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	var out bot.Log
	err := s.db.GetContext(ctx, &out, `
		INSERT INTO bot_logs (level, message, details, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, level, message, details, created_at`,
		entry.Level, entry.Message, entry.Details, entry.CreatedAt)
	if err != nil {
		return bot.Log{}, err
	}
	return out, nil
}

func (s *Store) ListBotLogs(ctx context.Context, limit int) ([]bot.Log, error) {
	query := `SELECT id, level, message, details, created_at FROM bot_logs ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	var out []bot.Log
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) PruneBotLogs(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM bot_logs WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
