// Package booking creates, reschedules and cancels appointments while
// enforcing working hours and the no-double-booking rule.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/R3E-Network/barbershop/internal/app/domain/appointment"
	"github.com/R3E-Network/barbershop/internal/app/domain/master"
	"github.com/R3E-Network/barbershop/internal/app/metrics"
	"github.com/R3E-Network/barbershop/internal/app/storage"
	"github.com/R3E-Network/barbershop/pkg/logger"
)

var (
	// ErrInvalidRange is returned when end is not after start.
	ErrInvalidRange = errors.New("end_at must be after start_at")
	// ErrOutsideWorkingHours is the class of errors for intervals that do not
	// fit the master's schedule. The concrete error carries the detail.
	ErrOutsideWorkingHours = errors.New("outside working hours")
	// ErrMasterBusy is returned when the interval overlaps a booked appointment.
	ErrMasterBusy = errors.New("Master is busy for this time range")
	// ErrAppointmentNotFound covers missing and already cancelled appointments.
	ErrAppointmentNotFound = errors.New("Appointment not found")
	// ErrMasterNotFound is returned when booking against an unknown master.
	ErrMasterNotFound = errors.New("Master not found")
)

var (
	errNoHoursForDay = &scheduleError{msg: "No working hours configured for this day"}
	errOutsideHours  = &scheduleError{msg: "Outside working hours"}
)

type scheduleError struct{ msg string }

func (e *scheduleError) Error() string { return e.msg }

func (e *scheduleError) Unwrap() error { return ErrOutsideWorkingHours }

// CreateAppointment is the input of Service.Create.
type CreateAppointment struct {
	MasterID           int64
	CustomerTelegramID int64
	StartAt            time.Time
	EndAt              time.Time
}

// Service implements the booking rules on top of an AppointmentStore.
type Service struct {
	store storage.AppointmentStore
	loc   *time.Location
	log   *logger.Logger
	now   func() time.Time
}

// New constructs a booking service. Working hours are interpreted as wall
// clock times in loc.
func New(store storage.AppointmentStore, loc *time.Location, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("booking")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, loc: loc, log: log, now: time.Now}
}

// Create books a new appointment.
func (s *Service) Create(ctx context.Context, cmd CreateAppointment) (appointment.Appointment, error) {
	if !cmd.EndAt.After(cmd.StartAt) {
		return s.fail("create", appointment.Appointment{}, ErrInvalidRange)
	}

	var created appointment.Appointment
	err := s.store.WithMasterSchedule(ctx, cmd.MasterID, func(ctx context.Context, sched storage.Schedule) error {
		if err := s.checkSlot(ctx, sched, cmd.StartAt, cmd.EndAt, 0); err != nil {
			return err
		}
		var err error
		created, err = sched.InsertAppointment(ctx, appointment.Appointment{
			MasterID:           cmd.MasterID,
			CustomerTelegramID: cmd.CustomerTelegramID,
			StartAt:            cmd.StartAt.UTC(),
			EndAt:              cmd.EndAt.UTC(),
			Status:             appointment.StatusBooked,
		})
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		err = ErrMasterNotFound
	}
	if err != nil {
		return s.fail("create", appointment.Appointment{}, err)
	}

	metrics.RecordBooking("create", "ok")
	s.log.WithField("appointment_id", created.ID).
		WithField("master_id", created.MasterID).
		WithField("customer_telegram_id", created.CustomerTelegramID).
		Info("appointment booked")
	return created, nil
}

// Reschedule moves a booked appointment to a new interval.
func (s *Service) Reschedule(ctx context.Context, id int64, start, end time.Time) (appointment.Appointment, error) {
	existing, err := s.bookedAppointment(ctx, id)
	if err != nil {
		return s.fail("reschedule", appointment.Appointment{}, err)
	}
	if !end.After(start) {
		return s.fail("reschedule", appointment.Appointment{}, ErrInvalidRange)
	}

	var updated appointment.Appointment
	err = s.store.WithMasterSchedule(ctx, existing.MasterID, func(ctx context.Context, sched storage.Schedule) error {
		current, err := lockedBooked(ctx, sched, id)
		if err != nil {
			return err
		}
		if err := s.checkSlot(ctx, sched, start, end, id); err != nil {
			return err
		}
		current.StartAt = start.UTC()
		current.EndAt = end.UTC()
		updated, err = sched.UpdateAppointment(ctx, current)
		return err
	})
	if err != nil {
		return s.fail("reschedule", appointment.Appointment{}, err)
	}

	metrics.RecordBooking("reschedule", "ok")
	s.log.WithField("appointment_id", id).Info("appointment rescheduled")
	return updated, nil
}

// Cancel marks a booked appointment as cancelled.
func (s *Service) Cancel(ctx context.Context, id int64) (appointment.Appointment, error) {
	existing, err := s.bookedAppointment(ctx, id)
	if err != nil {
		return s.fail("cancel", appointment.Appointment{}, err)
	}

	var cancelled appointment.Appointment
	err = s.store.WithMasterSchedule(ctx, existing.MasterID, func(ctx context.Context, sched storage.Schedule) error {
		current, err := lockedBooked(ctx, sched, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		current.Status = appointment.StatusCancelled
		current.CancelledAt = &now
		cancelled, err = sched.UpdateAppointment(ctx, current)
		return err
	})
	if err != nil {
		return s.fail("cancel", appointment.Appointment{}, err)
	}

	metrics.RecordBooking("cancel", "ok")
	s.log.WithField("appointment_id", id).Info("appointment cancelled")
	return cancelled, nil
}

// List returns appointments matching filter ordered by start time.
func (s *Service) List(ctx context.Context, filter appointment.Filter) ([]appointment.Appointment, error) {
	return s.store.ListAppointments(ctx, filter)
}

func (s *Service) bookedAppointment(ctx context.Context, id int64) (appointment.Appointment, error) {
	a, err := s.store.GetAppointment(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return appointment.Appointment{}, ErrAppointmentNotFound
	}
	if err != nil {
		return appointment.Appointment{}, err
	}
	if a.Status != appointment.StatusBooked {
		return appointment.Appointment{}, ErrAppointmentNotFound
	}
	return a, nil
}

// lockedBooked re-reads the appointment under the master lock.
func lockedBooked(ctx context.Context, sched storage.Schedule, id int64) (appointment.Appointment, error) {
	a, err := sched.GetAppointment(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return appointment.Appointment{}, ErrAppointmentNotFound
	}
	if err != nil {
		return appointment.Appointment{}, err
	}
	if a.Status != appointment.StatusBooked {
		return appointment.Appointment{}, ErrAppointmentNotFound
	}
	return a, nil
}

func (s *Service) checkSlot(ctx context.Context, sched storage.Schedule, start, end time.Time, excludeID int64) error {
	if err := s.checkWorkingHours(ctx, sched, start, end); err != nil {
		return err
	}
	busy, err := sched.HasOverlap(ctx, start, end, excludeID)
	if err != nil {
		return fmt.Errorf("check overlap: %w", err)
	}
	if busy {
		return ErrMasterBusy
	}
	return nil
}

func (s *Service) checkWorkingHours(ctx context.Context, sched storage.Schedule, start, end time.Time) error {
	localStart := start.In(s.loc)
	localEnd := end.In(s.loc)

	hours, err := sched.WorkingHoursOn(ctx, master.Weekday(localStart))
	if err != nil {
		return fmt.Errorf("load working hours: %w", err)
	}
	if len(hours) == 0 {
		return errNoHoursForDay
	}
	if !sameDay(localStart, localEnd) {
		return errOutsideHours
	}

	startClock, endClock := master.ClockOf(localStart), master.ClockOf(localEnd)
	for _, wh := range hours {
		if wh.Contains(startClock, endClock) {
			return nil
		}
	}
	return errOutsideHours
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (s *Service) fail(op string, zero appointment.Appointment, err error) (appointment.Appointment, error) {
	metrics.RecordBooking(op, outcome(err))
	return zero, err
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRange):
		return "invalid_range"
	case errors.Is(err, ErrOutsideWorkingHours):
		return "outside_hours"
	case errors.Is(err, ErrMasterBusy):
		return "busy"
	case errors.Is(err, ErrAppointmentNotFound), errors.Is(err, ErrMasterNotFound):
		return "not_found"
	default:
		return "error"
	}
}
