package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/barbershop/internal/app/domain/appointment"
	"github.com/R3E-Network/barbershop/internal/app/domain/bot"
	"github.com/R3E-Network/barbershop/internal/app/domain/makerequest"
	"github.com/R3E-Network/barbershop/internal/app/domain/master"
	"github.com/R3E-Network/barbershop/internal/app/storage"
)

func TestScheduleRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	m, err := s.CreateMaster(ctx, master.Master{Name: "Ivan", IsActive: true})
	require.NoError(t, err)

	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	boom := errors.New("boom")
	err = s.WithMasterSchedule(ctx, m.ID, func(ctx context.Context, sched storage.Schedule) error {
		_, err := sched.InsertAppointment(ctx, appointment.Appointment{
			CustomerTelegramID: 1, StartAt: start, EndAt: start.Add(time.Hour), Status: appointment.StatusBooked,
		})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	list, err := s.ListAppointments(ctx, appointment.Filter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestScheduleSeesPendingWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	m, _ := s.CreateMaster(ctx, master.Master{Name: "Ivan"})
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	err := s.WithMasterSchedule(ctx, m.ID, func(ctx context.Context, sched storage.Schedule) error {
		_, err := sched.InsertAppointment(ctx, appointment.Appointment{
			CustomerTelegramID: 1, StartAt: start, EndAt: start.Add(time.Hour), Status: appointment.StatusBooked,
		})
		require.NoError(t, err)
		busy, err := sched.HasOverlap(ctx, start.Add(30*time.Minute), start.Add(90*time.Minute), 0)
		require.NoError(t, err)
		assert.True(t, busy)
		return nil
	})
	require.NoError(t, err)
}

func TestScheduleUnknownMaster(t *testing.T) {
	s := New()
	err := s.WithMasterSchedule(context.Background(), 99, func(context.Context, storage.Schedule) error { return nil })
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteMasterRestrictedByAppointments(t *testing.T) {
	ctx := context.Background()
	s := New()
	m, _ := s.CreateMaster(ctx, master.Master{Name: "Ivan"})
	start := time.Now().UTC()
	require.NoError(t, s.WithMasterSchedule(ctx, m.ID, func(ctx context.Context, sched storage.Schedule) error {
		_, err := sched.InsertAppointment(ctx, appointment.Appointment{StartAt: start, EndAt: start.Add(time.Hour), Status: appointment.StatusBooked})
		return err
	}))

	assert.ErrorIs(t, s.DeleteMaster(ctx, m.ID), storage.ErrConflict)
	assert.ErrorIs(t, s.DeleteMaster(ctx, 12345), storage.ErrNotFound)
}

func TestDeleteMasterWaitsForOpenSchedule(t *testing.T) {
	ctx := context.Background()
	s := New()
	m, _ := s.CreateMaster(ctx, master.Master{Name: "Ivan"})
	start := time.Now().UTC()

	inserted := make(chan struct{})
	release := make(chan struct{})
	booked := make(chan error, 1)
	go func() {
		booked <- s.WithMasterSchedule(ctx, m.ID, func(ctx context.Context, sched storage.Schedule) error {
			_, err := sched.InsertAppointment(ctx, appointment.Appointment{StartAt: start, EndAt: start.Add(time.Hour), Status: appointment.StatusBooked})
			close(inserted)
			<-release
			return err
		})
	}()
	<-inserted

	deleted := make(chan error, 1)
	go func() { deleted <- s.DeleteMaster(ctx, m.ID) }()

	select {
	case err := <-deleted:
		t.Fatalf("delete finished while a booking was open: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-booked)
	assert.ErrorIs(t, <-deleted, storage.ErrConflict)

	_, err := s.GetMaster(ctx, m.ID)
	require.NoError(t, err)
	list, err := s.ListAppointments(ctx, appointment.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, m.ID, list[0].MasterID)
}

func TestScheduleAfterDeleteFindsNoMaster(t *testing.T) {
	ctx := context.Background()
	s := New()
	m, _ := s.CreateMaster(ctx, master.Master{Name: "Ivan"})
	require.NoError(t, s.DeleteMaster(ctx, m.ID))

	called := false
	err := s.WithMasterSchedule(ctx, m.ID, func(context.Context, storage.Schedule) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.False(t, called)
}

func TestListAppointmentsFilter(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, _ := s.CreateMaster(ctx, master.Master{Name: "A"})
	b, _ := s.CreateMaster(ctx, master.Master{Name: "B"})
	base := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	insert := func(masterID, customer int64, start time.Time) {
		require.NoError(t, s.WithMasterSchedule(ctx, masterID, func(ctx context.Context, sched storage.Schedule) error {
			_, err := sched.InsertAppointment(ctx, appointment.Appointment{
				CustomerTelegramID: customer, StartAt: start, EndAt: start.Add(time.Hour), Status: appointment.StatusBooked,
			})
			return err
		}))
	}
	insert(a.ID, 1, base.Add(2*time.Hour))
	insert(a.ID, 2, base)
	insert(b.ID, 1, base.Add(time.Hour))

	all, err := s.ListAppointments(ctx, appointment.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].StartAt.Equal(base))

	masterID := a.ID
	byMaster, _ := s.ListAppointments(ctx, appointment.Filter{MasterID: &masterID})
	assert.Len(t, byMaster, 2)

	customer := int64(1)
	from := base.Add(time.Hour)
	to := base.Add(2 * time.Hour)
	window, _ := s.ListAppointments(ctx, appointment.Filter{CustomerTelegramID: &customer, From: &from, To: &to})
	require.Len(t, window, 1)
	assert.Equal(t, b.ID, window[0].MasterID)
}

func TestMakeRequestLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	req, err := s.CreateMakeRequest(ctx, makerequest.Request{CorrelationID: "abc12345", ChatID: 10, UserID: 20})
	require.NoError(t, err)
	assert.Equal(t, makerequest.StatusCreated, req.Status)

	_, err = s.CreateMakeRequest(ctx, makerequest.Request{CorrelationID: "abc12345"})
	assert.ErrorIs(t, err, storage.ErrConflict)

	n, err := s.FailStaleMakeRequests(ctx, time.Now().Add(time.Minute), "timed out")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetMakeRequestByCorrelationID(ctx, "abc12345")
	require.NoError(t, err)
	assert.Equal(t, makerequest.StatusFailed, got.Status)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "timed out", *got.LastError)

	require.NoError(t, s.SetMakeRequestStatus(ctx, got.ID, makerequest.StatusCompleted, nil))
	got, _ = s.GetMakeRequestByCorrelationID(ctx, "abc12345")
	assert.Equal(t, makerequest.StatusCompleted, got.Status)
	assert.Nil(t, got.LastError)
}

func TestBotSettingsAndLogs(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.GetBotSettings(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	settings, err := s.SaveBotEnabled(ctx, false)
	require.NoError(t, err)
	assert.False(t, settings.IsEnabled)
	assert.Nil(t, settings.BotToken)

	settings, err = s.SaveBotToken(ctx, "123:abc")
	require.NoError(t, err)
	assert.False(t, settings.IsEnabled)
	assert.Equal(t, "123:abc", *settings.BotToken)

	old := bot.NewLog(bot.LevelInfo, "old", "")
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	_, _ = s.AppendBotLog(ctx, old)
	_, _ = s.AppendBotLog(ctx, bot.NewLog(bot.LevelInfo, "first", ""))
	_, _ = s.AppendBotLog(ctx, bot.NewLog(bot.LevelError, "second", "details"))

	logs, err := s.ListBotLogs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "second", logs[0].Message)
	assert.Equal(t, "first", logs[1].Message)

	removed, err := s.PruneBotLogs(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	logs, _ = s.ListBotLogs(ctx, 0)
	assert.Len(t, logs, 2)
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.EnsureAdmin(ctx, 42)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.EnsureAdmin(ctx, 42)
	require.NoError(t, err)
	assert.False(t, created)

	admins, _ := s.ListAdmins(ctx)
	assert.Len(t, admins, 1)
}
