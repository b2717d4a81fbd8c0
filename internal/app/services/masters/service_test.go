package masters

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/barbershop/internal/app/domain/appointment"
	"github.com/R3E-Network/barbershop/internal/app/domain/master"
	"github.com/R3E-Network/barbershop/internal/app/services/media"
	"github.com/R3E-Network/barbershop/internal/app/storage"
	"github.com/R3E-Network/barbershop/internal/app/storage/memory"
)

type countingCache struct {
	data        []master.Master
	ok          bool
	invalidated int
}

func (c *countingCache) Get(context.Context) ([]master.Master, bool) { return c.data, c.ok }
func (c *countingCache) Set(_ context.Context, m []master.Master)     { c.data, c.ok = m, true }
func (c *countingCache) Invalidate(context.Context) {
	c.data, c.ok = nil, false
	c.invalidated++
}

func pngPhoto(t *testing.T) Photo {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 20, 10))))
	return Photo{ContentType: "image/png", Data: buf.Bytes()}
}

func newService(t *testing.T) (*Service, *memory.Store, *countingCache, string) {
	t.Helper()
	root := t.TempDir()
	store := memory.New()
	c := &countingCache{}
	return New(store, media.New(root, "/media", "https://cdn.example"), c, nil), store, c, root
}

func intPtr(v int) *int { return &v }

func TestCreateValidatesInput(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()

	var verr *ValidationError
	_, err := svc.Create(ctx, Input{Name: "  "}, nil)
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "name", verr.Field)

	_, err = svc.Create(ctx, Input{Name: "Ivan", ExperienceYears: intPtr(81)}, nil)
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "experience_years", verr.Field)

	blank := "   "
	m, err := svc.Create(ctx, Input{Name: " Ivan ", Description: &blank, ExperienceYears: intPtr(80), IsActive: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Ivan", m.Name)
	assert.Nil(t, m.Description)
	assert.Nil(t, svc.PhotoURL(m))
}

func TestListUsesCacheAndMutationsInvalidate(t *testing.T) {
	svc, _, c, _ := newService(t)
	ctx := context.Background()

	m, err := svc.Create(ctx, Input{Name: "Ivan", IsActive: true}, nil)
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, c.ok)

	before := c.invalidated
	_, err = svc.Update(ctx, m.ID, Input{Name: "Ivan Petrov", IsActive: false})
	require.NoError(t, err)
	assert.Equal(t, before+1, c.invalidated)
	assert.False(t, c.ok)

	list, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ivan Petrov", list[0].Name)
	assert.False(t, list[0].IsActive)
}

func TestCreateWithPhotoAndReplace(t *testing.T) {
	svc, _, _, root := newService(t)
	ctx := context.Background()

	photo := pngPhoto(t)
	m, err := svc.Create(ctx, Input{Name: "Ivan", IsActive: true}, &photo)
	require.NoError(t, err)
	require.NotNil(t, m.PhotoPath)
	assert.Equal(t, "masters/1.jpg", *m.PhotoPath)
	url := svc.PhotoURL(m)
	require.NotNil(t, url)
	assert.Equal(t, "https://cdn.example/media/masters/1.jpg", *url)

	_, err = os.Stat(filepath.Join(root, "masters", "1.jpg"))
	require.NoError(t, err)

	require.NoError(t, svc.DeletePhoto(ctx, m.ID))
	got, err := svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, got.PhotoPath)
	_, err = os.Stat(filepath.Join(root, "masters", "1.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestCreateWithInvalidPhotoRollsBack(t *testing.T) {
	svc, store, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, Input{Name: "Ivan"}, &Photo{ContentType: "text/plain", Data: []byte("x")})
	assert.ErrorIs(t, err, media.ErrNotImage)

	list, err := store.ListMasters(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDelete(t *testing.T) {
	svc, store, _, root := newService(t)
	ctx := context.Background()

	photo := pngPhoto(t)
	m, err := svc.Create(ctx, Input{Name: "Ivan"}, &photo)
	require.NoError(t, err)
	busy, err := svc.Create(ctx, Input{Name: "Busy"}, nil)
	require.NoError(t, err)

	start := time.Now().UTC()
	require.NoError(t, store.WithMasterSchedule(ctx, busy.ID, func(ctx context.Context, sched storage.Schedule) error {
		_, err := sched.InsertAppointment(ctx, appointment.Appointment{StartAt: start, EndAt: start.Add(time.Hour), Status: appointment.StatusBooked})
		return err
	}))

	require.NoError(t, svc.Delete(ctx, m.ID))
	assert.ErrorIs(t, svc.Delete(ctx, m.ID), ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, busy.ID), ErrHasAppointments)

	_, err = os.Stat(filepath.Join(root, "masters", "1.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestWorkingHours(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	m, err := svc.Create(ctx, Input{Name: "Ivan"}, nil)
	require.NoError(t, err)

	require.NoError(t, svc.SetWorkingHours(ctx, m.ID, []HoursInput{
		{DayOfWeek: 2, Start: "10:00", End: "14:00"},
		{DayOfWeek: 0, Start: "09:00", End: "18:00"},
	}))
	hours, err := svc.WorkingHours(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, hours, 2)
	assert.Equal(t, 0, hours[0].DayOfWeek)
	assert.Equal(t, "09:00", hours[0].Start.String())

	// Replacing drops previous rows.
	require.NoError(t, svc.SetWorkingHours(ctx, m.ID, []HoursInput{{DayOfWeek: 4, Start: "12:00", End: "13:00"}}))
	hours, _ = svc.WorkingHours(ctx, m.ID)
	require.Len(t, hours, 1)
	assert.Equal(t, 4, hours[0].DayOfWeek)

	assert.ErrorIs(t, svc.SetWorkingHours(ctx, 999, nil), ErrNotFound)
	_, err = svc.WorkingHours(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseHoursValidation(t *testing.T) {
	tests := []struct {
		name string
		in   HoursInput
	}{
		{"day too large", HoursInput{DayOfWeek: 7, Start: "09:00", End: "10:00"}},
		{"bad start", HoursInput{DayOfWeek: 0, Start: "9am", End: "10:00"}},
		{"bad end", HoursInput{DayOfWeek: 0, Start: "09:00", End: "25:00"}},
		{"start after end", HoursInput{DayOfWeek: 0, Start: "12:00", End: "10:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHours([]HoursInput{tt.in})
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}
