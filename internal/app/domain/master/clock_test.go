package master

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want Clock
		ok   bool
	}{
		{"09:00", 9 * 3600, true},
		{"23:59", 23*3600 + 59*60, true},
		{"10:30:15", 10*3600 + 30*60 + 15, true},
		{" 08:05 ", 8*3600 + 5*60, true},
		{"24:00", 0, false},
		{"9", 0, false},
		{"aa:bb", 0, false},
		{"10:60", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClockFormatting(t *testing.T) {
	c := Clock(9*3600 + 5*60 + 7)
	assert.Equal(t, "09:05", c.String())
	v, err := c.Value()
	require.NoError(t, err)
	assert.Equal(t, "09:05:07", v)
}

func TestClockScan(t *testing.T) {
	var c Clock
	require.NoError(t, c.Scan([]byte("18:30:00")))
	assert.Equal(t, "18:30", c.String())

	require.NoError(t, c.Scan("07:15:00.000001"))
	assert.Equal(t, "07:15", c.String())

	require.NoError(t, c.Scan(time.Date(0, 1, 1, 12, 45, 0, 0, time.UTC)))
	assert.Equal(t, "12:45", c.String())

	assert.Error(t, c.Scan(42))
}

func TestWeekdayStartsMonday(t *testing.T) {
	monday := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, Weekday(monday))
	assert.Equal(t, 6, Weekday(monday.AddDate(0, 0, 6)))
}

func TestWorkingHoursContains(t *testing.T) {
	wh := WorkingHours{Start: 9 * 3600, End: 18 * 3600}
	assert.True(t, wh.Contains(9*3600, 10*3600))
	assert.True(t, wh.Contains(17*3600, 18*3600))
	assert.False(t, wh.Contains(8*3600, 10*3600))
	assert.False(t, wh.Contains(17*3600, 18*3600+1))
}
