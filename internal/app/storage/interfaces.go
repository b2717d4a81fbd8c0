package storage

import (
	"context"
	"errors"
	"time"

	"github.com/R3E-Network/barbershop/internal/app/domain/admin"
	"github.com/R3E-Network/barbershop/internal/app/domain/appointment"
	"github.com/R3E-Network/barbershop/internal/app/domain/bot"
	"github.com/R3E-Network/barbershop/internal/app/domain/makerequest"
	"github.com/R3E-Network/barbershop/internal/app/domain/master"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a referential constraint,
	// e.g. deleting a master that still has appointments.
	ErrConflict = errors.New("conflict")
)

// MasterStore persists masters.
type MasterStore interface {
	CreateMaster(ctx context.Context, m master.Master) (master.Master, error)
	UpdateMaster(ctx context.Context, m master.Master) (master.Master, error)
	GetMaster(ctx context.Context, id int64) (master.Master, error)
	FindMasterByName(ctx context.Context, name string) (master.Master, error)
	ListMasters(ctx context.Context) ([]master.Master, error)
	DeleteMaster(ctx context.Context, id int64) error
}

// WorkingHoursStore persists master working hours.
type WorkingHoursStore interface {
	ListWorkingHours(ctx context.Context, masterID int64) ([]master.WorkingHours, error)
	// ReplaceWorkingHours atomically swaps the full set of rows for a master.
	ReplaceWorkingHours(ctx context.Context, masterID int64, hours []master.WorkingHours) error
}

// Schedule is the view of a master's calendar available while the master is
// locked by AppointmentStore.WithMasterSchedule.
type Schedule interface {
	WorkingHoursOn(ctx context.Context, dayOfWeek int) ([]master.WorkingHours, error)
	// HasOverlap reports a booked appointment intersecting [start, end),
	// ignoring excludeID when non-zero.
	HasOverlap(ctx context.Context, start, end time.Time, excludeID int64) (bool, error)
	GetAppointment(ctx context.Context, id int64) (appointment.Appointment, error)
	InsertAppointment(ctx context.Context, a appointment.Appointment) (appointment.Appointment, error)
	UpdateAppointment(ctx context.Context, a appointment.Appointment) (appointment.Appointment, error)
}

// AppointmentStore persists appointments.
type AppointmentStore interface {
	GetAppointment(ctx context.Context, id int64) (appointment.Appointment, error)
	ListAppointments(ctx context.Context, filter appointment.Filter) ([]appointment.Appointment, error)
	// WithMasterSchedule runs fn while holding an exclusive lock on the
	// master's schedule. Returning an error rolls back every write made by fn.
	// ErrNotFound is returned when the master does not exist.
	WithMasterSchedule(ctx context.Context, masterID int64, fn func(ctx context.Context, s Schedule) error) error
}

// MakeRequestStore persists correlation records for the Make integration.
type MakeRequestStore interface {
	CreateMakeRequest(ctx context.Context, req makerequest.Request) (makerequest.Request, error)
	GetMakeRequestByCorrelationID(ctx context.Context, correlationID string) (makerequest.Request, error)
	// SetMakeRequestStatus updates status and last error; a nil lastError clears it.
	SetMakeRequestStatus(ctx context.Context, id int64, status makerequest.Status, lastError *string) error
	// FailStaleMakeRequests marks requests still created before cutoff as failed.
	FailStaleMakeRequests(ctx context.Context, cutoff time.Time, reason string) (int64, error)
}

// AdminStore persists bootstrapped admins.
type AdminStore interface {
	// EnsureAdmin inserts the telegram id if missing and reports whether it did.
	EnsureAdmin(ctx context.Context, telegramID int64) (bool, error)
	ListAdmins(ctx context.Context) ([]admin.Admin, error)
}

// BotStore persists the singleton bot settings and lifecycle logs.
type BotStore interface {
	GetBotSettings(ctx context.Context) (bot.Settings, error)
	SaveBotToken(ctx context.Context, token string) (bot.Settings, error)
	SaveBotEnabled(ctx context.Context, enabled bool) (bot.Settings, error)

	AppendBotLog(ctx context.Context, entry bot.Log) (bot.Log, error)
	// ListBotLogs returns the newest entries first.
	ListBotLogs(ctx context.Context, limit int) ([]bot.Log, error)
	PruneBotLogs(ctx context.Context, before time.Time) (int64, error)
}

// Store aggregates every persistence concern of the backend.
type Store interface {
	MasterStore
	WorkingHoursStore
	AppointmentStore
	MakeRequestStore
	AdminStore
	BotStore
}
