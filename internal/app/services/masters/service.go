// Package masters manages masters, their photos and working hours.
package masters

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/R3E-Network/barbershop/internal/app/cache"
	"github.com/R3E-Network/barbershop/internal/app/domain/master"
	"github.com/R3E-Network/barbershop/internal/app/services/media"
	"github.com/R3E-Network/barbershop/internal/app/storage"
	"github.com/R3E-Network/barbershop/pkg/logger"
)

const (
	maxNameLength        = 200
	maxDescriptionLength = 2000
)

// ErrNotFound is returned for unknown master ids.
var ErrNotFound = errors.New("Master not found")

// ErrHasAppointments is returned when deleting a master that still has
// appointments.
var ErrHasAppointments = errors.New("Master has appointments")

// ValidationError reports an invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Store is the persistence the service needs.
type Store interface {
	storage.MasterStore
	storage.WorkingHoursStore
}

// Input carries the editable master fields.
type Input struct {
	Name            string
	Description     *string
	ExperienceYears *int
	IsActive        bool
}

// Photo is an uploaded image.
type Photo struct {
	ContentType string
	Data        []byte
}

// HoursInput is one working interval in "HH:MM" notation.
type HoursInput struct {
	DayOfWeek int
	Start     string
	End       string
}

// Service manages masters.
type Service struct {
	store Store
	media *media.Store
	cache cache.Masters
	log   *logger.Logger
}

// New constructs the service. A nil cache disables caching.
func New(store Store, mediaStore *media.Store, masterCache cache.Masters, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("masters")
	}
	if masterCache == nil {
		masterCache = cache.Noop{}
	}
	return &Service{store: store, media: mediaStore, cache: masterCache, log: log}
}

// PhotoURL returns the public URL of the master's photo, or nil.
func (s *Service) PhotoURL(m master.Master) *string {
	if m.PhotoPath == nil || *m.PhotoPath == "" || s.media == nil {
		return nil
	}
	url := s.media.PublicURL(*m.PhotoPath)
	return &url
}

// List returns all masters ordered by id.
func (s *Service) List(ctx context.Context) ([]master.Master, error) {
	if cached, ok := s.cache.Get(ctx); ok {
		return cached, nil
	}
	list, err := s.store.ListMasters(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	s.cache.Set(ctx, list)
	return list, nil
}

// Get returns a master by id.
func (s *Service) Get(ctx context.Context, id int64) (master.Master, error) {
	m, err := s.store.GetMaster(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return master.Master{}, ErrNotFound
	}
	return m, err
}

// Create inserts a master and stores its photo when given. A failed photo
// upload removes the freshly created master again.
func (s *Service) Create(ctx context.Context, in Input, photo *Photo) (master.Master, error) {
	if err := normalize(&in); err != nil {
		return master.Master{}, err
	}
	created, err := s.store.CreateMaster(ctx, master.Master{
		Name:            in.Name,
		Description:     in.Description,
		ExperienceYears: in.ExperienceYears,
		IsActive:        in.IsActive,
	})
	if err != nil {
		return master.Master{}, err
	}
	s.cache.Invalidate(ctx)

	if photo != nil {
		updated, err := s.SetPhoto(ctx, created.ID, *photo)
		if err != nil {
			if delErr := s.store.DeleteMaster(ctx, created.ID); delErr != nil {
				s.log.WithError(delErr).WithField("master_id", created.ID).Warn("rollback master after photo failure")
			}
			s.cache.Invalidate(ctx)
			return master.Master{}, err
		}
		created = updated
	}

	s.log.WithField("master_id", created.ID).Info("master created")
	return created, nil
}

// Update replaces the editable fields of a master.
func (s *Service) Update(ctx context.Context, id int64, in Input) (master.Master, error) {
	if err := normalize(&in); err != nil {
		return master.Master{}, err
	}
	m, err := s.Get(ctx, id)
	if err != nil {
		return master.Master{}, err
	}
	m.Name = in.Name
	m.Description = in.Description
	m.ExperienceYears = in.ExperienceYears
	m.IsActive = in.IsActive

	updated, err := s.store.UpdateMaster(ctx, m)
	if errors.Is(err, storage.ErrNotFound) {
		return master.Master{}, ErrNotFound
	}
	if err != nil {
		return master.Master{}, err
	}
	s.cache.Invalidate(ctx)
	return updated, nil
}

// Delete removes a master, its working hours and, best effort, its photo.
func (s *Service) Delete(ctx context.Context, id int64) error {
	m, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteMaster(ctx, id); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return ErrNotFound
		case errors.Is(err, storage.ErrConflict):
			return ErrHasAppointments
		}
		return err
	}
	s.cache.Invalidate(ctx)

	if m.PhotoPath != nil && s.media != nil {
		if err := s.media.Delete(*m.PhotoPath); err != nil {
			s.log.WithError(err).WithField("master_id", id).Warn("delete master photo")
		}
	}
	s.log.WithField("master_id", id).Info("master deleted")
	return nil
}

// SetPhoto compresses and stores photo, replacing any previous file.
func (s *Service) SetPhoto(ctx context.Context, id int64, photo Photo) (master.Master, error) {
	if s.media == nil {
		return master.Master{}, fmt.Errorf("media storage is not configured")
	}
	m, err := s.Get(ctx, id)
	if err != nil {
		return master.Master{}, err
	}
	saved, err := s.media.CompressAndSave(id, photo.ContentType, photo.Data)
	if err != nil {
		return master.Master{}, err
	}
	if m.PhotoPath != nil && *m.PhotoPath != saved.RelativePath {
		if err := s.media.Delete(*m.PhotoPath); err != nil {
			s.log.WithError(err).WithField("master_id", id).Warn("delete previous photo")
		}
	}

	m.PhotoPath = &saved.RelativePath
	updated, err := s.store.UpdateMaster(ctx, m)
	if err != nil {
		return master.Master{}, err
	}
	s.cache.Invalidate(ctx)
	s.log.WithField("master_id", id).WithField("size", saved.Size).Info("master photo stored")
	return updated, nil
}

// DeletePhoto removes the master's photo if it has one.
func (s *Service) DeletePhoto(ctx context.Context, id int64) error {
	m, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.PhotoPath == nil {
		return nil
	}
	if s.media != nil {
		if err := s.media.Delete(*m.PhotoPath); err != nil {
			s.log.WithError(err).WithField("master_id", id).Warn("delete master photo")
		}
	}
	m.PhotoPath = nil
	if _, err := s.store.UpdateMaster(ctx, m); err != nil {
		return err
	}
	s.cache.Invalidate(ctx)
	return nil
}

// WorkingHours returns the master's intervals ordered by day and start.
func (s *Service) WorkingHours(ctx context.Context, id int64) ([]master.WorkingHours, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	hours, err := s.store.ListWorkingHours(ctx, id)
	if err != nil {
		return nil, err
	}
	sort.Slice(hours, func(i, j int) bool {
		if hours[i].DayOfWeek != hours[j].DayOfWeek {
			return hours[i].DayOfWeek < hours[j].DayOfWeek
		}
		return hours[i].Start < hours[j].Start
	})
	return hours, nil
}

// SetWorkingHours replaces every working interval of the master.
func (s *Service) SetWorkingHours(ctx context.Context, id int64, in []HoursInput) error {
	rows, err := ParseHours(in)
	if err != nil {
		return err
	}
	if err := s.store.ReplaceWorkingHours(ctx, id, rows); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.log.WithField("master_id", id).WithField("intervals", len(rows)).Info("working hours replaced")
	return nil
}

// ParseHours validates and converts working hour inputs.
func ParseHours(in []HoursInput) ([]master.WorkingHours, error) {
	rows := make([]master.WorkingHours, 0, len(in))
	for i, h := range in {
		field := fmt.Sprintf("working_hours[%d]", i)
		if h.DayOfWeek < 0 || h.DayOfWeek > 6 {
			return nil, &ValidationError{Field: field + ".day_of_week", Message: "must be between 0 and 6"}
		}
		start, err := master.ParseClock(h.Start)
		if err != nil {
			return nil, &ValidationError{Field: field + ".start_time", Message: err.Error()}
		}
		end, err := master.ParseClock(h.End)
		if err != nil {
			return nil, &ValidationError{Field: field + ".end_time", Message: err.Error()}
		}
		if start >= end {
			return nil, &ValidationError{Field: field, Message: "start_time must be before end_time"}
		}
		rows = append(rows, master.WorkingHours{DayOfWeek: h.DayOfWeek, Start: start, End: end})
	}
	return rows, nil
}

func normalize(in *Input) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if len([]rune(in.Name)) > maxNameLength {
		return &ValidationError{Field: "name", Message: fmt.Sprintf("must be at most %d characters", maxNameLength)}
	}
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		if d == "" {
			in.Description = nil
		} else if len([]rune(d)) > maxDescriptionLength {
			return &ValidationError{Field: "description", Message: fmt.Sprintf("must be at most %d characters", maxDescriptionLength)}
		} else {
			in.Description = &d
		}
	}
	if in.ExperienceYears != nil && (*in.ExperienceYears < 0 || *in.ExperienceYears > master.MaxExperienceYears) {
		return &ValidationError{Field: "experience_years", Message: fmt.Sprintf("must be between 0 and %d", master.MaxExperienceYears)}
	}
	return nil
}
