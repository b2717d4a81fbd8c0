package seed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/barbershop/internal/app/services/masters"
	"github.com/R3E-Network/barbershop/internal/app/storage/memory"
	"github.com/R3E-Network/barbershop/pkg/logger"
)

const sample = `
masters:
  - name: Ivan
    description: Classic cuts
    experience_years: 7
    working_hours:
      - {day_of_week: 0, start_time: "09:00", end_time: "18:00"}
      - {day_of_week: 5, start_time: "10:00", end_time: "16:00"}
  - name: Olga
    is_active: false
`

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := masters.New(store, nil, nil, logger.Discard())

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	f, err := Load(path)
	require.NoError(t, err)
	require.Len(t, f.Masters, 2)

	res, err := Apply(ctx, f, store, svc, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, Result{Created: 2}, res)

	res, err = Apply(ctx, f, store, svc, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 2}, res)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].IsActive)
	assert.False(t, list[1].IsActive)
	require.NotNil(t, list[0].ExperienceYears)
	assert.Equal(t, 7, *list[0].ExperienceYears)

	hours, err := svc.WorkingHours(ctx, list[0].ID)
	require.NoError(t, err)
	require.Len(t, hours, 2)
	assert.Equal(t, "10:00", hours[1].Start.String())
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse(strings.NewReader("masters:\n  - name: A\n    price: 10\n"))
	assert.Error(t, err)
}

func TestApplyRejectsBadHoursBeforeCreating(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := masters.New(store, nil, nil, logger.Discard())

	f, err := Parse(strings.NewReader("masters:\n  - name: A\n    working_hours:\n      - {day_of_week: 9, start_time: \"09:00\", end_time: \"10:00\"}\n"))
	require.NoError(t, err)

	_, err = Apply(ctx, f, store, svc, logger.Discard())
	var verr *masters.ValidationError
	assert.ErrorAs(t, err, &verr)

	list, _ := store.ListMasters(ctx)
	assert.Empty(t, list)
}

func TestParseEmptyDocument(t *testing.T) {
	f, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Masters)
}
