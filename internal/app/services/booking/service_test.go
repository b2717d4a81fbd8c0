package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/barbershop/internal/app/domain/appointment"
	"github.com/R3E-Network/barbershop/internal/app/domain/master"
	"github.com/R3E-Network/barbershop/internal/app/storage/memory"
)

// monday is 2024-01-01, a Monday.
var monday = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return monday.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func setup(t *testing.T, loc *time.Location) (*Service, *memory.Store, master.Master) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	m, err := store.CreateMaster(ctx, master.Master{Name: "Ivan", IsActive: true})
	require.NoError(t, err)
	require.NoError(t, store.ReplaceWorkingHours(ctx, m.ID, []master.WorkingHours{
		{DayOfWeek: 0, Start: 9 * 3600, End: 18 * 3600},
	}))
	return New(store, loc, nil), store, m
}

func TestCreateBooksWithinWorkingHours(t *testing.T) {
	svc, _, m := setup(t, time.UTC)

	a, err := svc.Create(context.Background(), CreateAppointment{
		MasterID: m.ID, CustomerTelegramID: 7, StartAt: at(10, 0), EndAt: at(11, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusBooked, a.Status)
	assert.Equal(t, m.ID, a.MasterID)
	assert.NotZero(t, a.ID)
}

func TestCreateValidation(t *testing.T) {
	svc, _, m := setup(t, time.UTC)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateAppointment{MasterID: m.ID, StartAt: at(10, 0), EndAt: at(10, 0)})
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = svc.Create(ctx, CreateAppointment{MasterID: m.ID, StartAt: at(8, 30), EndAt: at(9, 30)})
	require.ErrorIs(t, err, ErrOutsideWorkingHours)
	assert.Equal(t, "Outside working hours", err.Error())

	_, err = svc.Create(ctx, CreateAppointment{MasterID: m.ID, StartAt: at(17, 30), EndAt: at(18, 0)})
	assert.NoError(t, err, "end equal to closing time fits")

	tuesday := at(10, 0).AddDate(0, 0, 1)
	_, err = svc.Create(ctx, CreateAppointment{MasterID: m.ID, StartAt: tuesday, EndAt: tuesday.Add(time.Hour)})
	require.ErrorIs(t, err, ErrOutsideWorkingHours)
	assert.Equal(t, "No working hours configured for this day", err.Error())

	_, err = svc.Create(ctx, CreateAppointment{MasterID: 999, StartAt: at(10, 0), EndAt: at(11, 0)})
	assert.ErrorIs(t, err, ErrMasterNotFound)
}

func TestCreateRejectsOverlap(t *testing.T) {
	svc, _, m := setup(t, time.UTC)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateAppointment{MasterID: m.ID, StartAt: at(10, 0), EndAt: at(11, 0)})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateAppointment{MasterID: m.ID, StartAt: at(10, 30), EndAt: at(11, 30)})
	require.ErrorIs(t, err, ErrMasterBusy)
	assert.Equal(t, "Master is busy for this time range", err.Error())

	// Touching intervals do not overlap.
	_, err = svc.Create(ctx, CreateAppointment{MasterID: m.ID, StartAt: at(11, 0), EndAt: at(12, 0)})
	assert.NoError(t, err)
	_, err = svc.Create(ctx, CreateAppointment{MasterID: m.ID, StartAt: at(9, 0), EndAt: at(10, 0)})
	assert.NoError(t, err)
}

func TestCancelledAppointmentsFreeTheSlot(t *testing.T) {
	svc, _, m := setup(t, time.UTC)
	ctx := context.Background()

	a, err := svc.Create(ctx, CreateAppointment{MasterID: m.ID, StartAt: at(10, 0), EndAt: at(11, 0)})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = svc.Cancel(ctx, a.ID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	_, err = svc.Create(ctx, CreateAppointment{MasterID: m.ID, StartAt: at(10, 0), EndAt: at(11, 0)})
	assert.NoError(t, err)
}

func TestReschedule(t *testing.T) {
	svc, _, m := setup(t, time.UTC)
	ctx := context.Background()

	a, err := svc.Create(ctx, CreateAppointment{MasterID: m.ID, StartAt: at(10, 0), EndAt: at(11, 0)})
	require.NoError(t, err)
	other, err := svc.Create(ctx, CreateAppointment{MasterID: m.ID, StartAt: at(12, 0), EndAt: at(13, 0)})
	require.NoError(t, err)

	// Shifting within its own slot ignores itself.
	moved, err := svc.Reschedule(ctx, a.ID, at(10, 30), at(11, 30))
	require.NoError(t, err)
	assert.True(t, moved.StartAt.Equal(at(10, 30)))

	_, err = svc.Reschedule(ctx, a.ID, at(12, 30), at(13, 30))
	assert.ErrorIs(t, err, ErrMasterBusy)

	_, err = svc.Reschedule(ctx, a.ID, at(17, 30), at(18, 30))
	assert.ErrorIs(t, err, ErrOutsideWorkingHours)

	_, err = svc.Reschedule(ctx, 4242, at(10, 0), at(11, 0))
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	_, err = svc.Cancel(ctx, other.ID)
	require.NoError(t, err)
	_, err = svc.Reschedule(ctx, other.ID, at(14, 0), at(15, 0))
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestWorkingHoursUseConfiguredTimezone(t *testing.T) {
	moscow := time.FixedZone("MSK", 3*3600)
	svc, _, m := setup(t, moscow)
	ctx := context.Background()

	// 07:00 UTC is 10:00 in Moscow.
	_, err := svc.Create(ctx, CreateAppointment{MasterID: m.ID, StartAt: at(7, 0), EndAt: at(8, 0)})
	require.NoError(t, err)

	// 16:00 UTC is 19:00 in Moscow, after closing.
	_, err = svc.Create(ctx, CreateAppointment{MasterID: m.ID, StartAt: at(16, 0), EndAt: at(17, 0)})
	assert.ErrorIs(t, err, ErrOutsideWorkingHours)
}

func TestCrossMidnightIsRejected(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	m, _ := store.CreateMaster(ctx, master.Master{Name: "Night"})
	require.NoError(t, store.ReplaceWorkingHours(ctx, m.ID, []master.WorkingHours{
		{DayOfWeek: 0, Start: 0, End: 23*3600 + 59*60},
		{DayOfWeek: 1, Start: 0, End: 23*3600 + 59*60},
	}))
	svc := New(store, time.UTC, nil)

	_, err := svc.Create(ctx, CreateAppointment{MasterID: m.ID, StartAt: at(23, 30), EndAt: at(24, 30)})
	assert.ErrorIs(t, err, ErrOutsideWorkingHours)
}

func TestConcurrentBookingsNeverDoubleBook(t *testing.T) {
	svc, store, m := setup(t, time.UTC)
	ctx := context.Background()

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		busy    int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(customer int64) {
			defer wg.Done()
			_, err := svc.Create(ctx, CreateAppointment{
				MasterID: m.ID, CustomerTelegramID: customer, StartAt: at(14, 0), EndAt: at(15, 0),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrMasterBusy):
				busy++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(i))
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, workers-1, busy)

	masterID := m.ID
	list, err := store.ListAppointments(ctx, appointment.Filter{MasterID: &masterID})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestListDelegatesFilter(t *testing.T) {
	svc, _, m := setup(t, time.UTC)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateAppointment{MasterID: m.ID, CustomerTelegramID: 1, StartAt: at(10, 0), EndAt: at(11, 0)})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateAppointment{MasterID: m.ID, CustomerTelegramID: 2, StartAt: at(12, 0), EndAt: at(13, 0)})
	require.NoError(t, err)

	customer := int64(2)
	list, err := svc.List(ctx, appointment.Filter{CustomerTelegramID: &customer})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(2), list[0].CustomerTelegramID)
}
