package master

import "time"

// MaxExperienceYears bounds Master.ExperienceYears.
const MaxExperienceYears = 80

// Master is a barber that customers book appointments with.
type Master struct {
	ID              int64     `db:"id"`
	Name            string    `db:"name"`
	Description     *string   `db:"description"`
	ExperienceYears *int      `db:"experience_years"`
	IsActive        bool      `db:"is_active"`
	PhotoPath       *string   `db:"photo_path"` // relative to the media root, e.g. "masters/1.jpg"
	CreatedAt       time.Time `db:"created_at"`
}

// WorkingHours is one working interval of a master on a weekday.
type WorkingHours struct {
	ID        int64 `db:"id"`
	MasterID  int64 `db:"master_id"`
	DayOfWeek int   `db:"day_of_week"` // 0=Mon .. 6=Sun
	Start     Clock `db:"start_time"`
	End       Clock `db:"end_time"`
}

// Contains reports whether [start, end] (both wall clock on the same day)
// fits inside the interval.
func (w WorkingHours) Contains(start, end Clock) bool {
	return w.Start <= start && end <= w.End
}
