// Package seed loads masters and their working hours from a YAML file.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/barbershop/internal/app/services/masters"
	"github.com/R3E-Network/barbershop/internal/app/storage"
	"github.com/R3E-Network/barbershop/pkg/logger"
)

// File is the seed document.
type File struct {
	Masters []Master `yaml:"masters"`
}

// Master is one seeded master.
type Master struct {
	Name            string  `yaml:"name"`
	Description     *string `yaml:"description"`
	ExperienceYears *int    `yaml:"experience_years"`
	IsActive        *bool   `yaml:"is_active"`
	WorkingHours    []Hours `yaml:"working_hours"`
}

// Hours is one working interval.
type Hours struct {
	DayOfWeek int    `yaml:"day_of_week"`
	Start     string `yaml:"start_time"`
	End       string `yaml:"end_time"`
}

// Result counts what Apply did.
type Result struct {
	Created int
	Skipped int
}

// Load reads and parses a seed file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes a seed document, rejecting unknown fields.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &f, nil
}

// Apply creates every master whose name does not exist yet. Existing masters
// are left untouched, so Apply can run repeatedly.
func Apply(ctx context.Context, f *File, finder storage.MasterStore, svc *masters.Service, log *logger.Logger) (Result, error) {
	if log == nil {
		log = logger.NewDefault("seed")
	}
	var res Result
	for i, m := range f.Masters {
		// Validate hours up front so a bad entry does not leave a master behind.
		hours := make([]masters.HoursInput, 0, len(m.WorkingHours))
		for _, h := range m.WorkingHours {
			hours = append(hours, masters.HoursInput{DayOfWeek: h.DayOfWeek, Start: h.Start, End: h.End})
		}
		if _, err := masters.ParseHours(hours); err != nil {
			return res, fmt.Errorf("masters[%d]: %w", i, err)
		}

		_, err := finder.FindMasterByName(ctx, m.Name)
		switch {
		case err == nil:
			res.Skipped++
			log.WithField("name", m.Name).Debug("master exists, skipping")
			continue
		case !errors.Is(err, storage.ErrNotFound):
			return res, fmt.Errorf("lookup master %q: %w", m.Name, err)
		}

		active := true
		if m.IsActive != nil {
			active = *m.IsActive
		}
		created, err := svc.Create(ctx, masters.Input{
			Name:            m.Name,
			Description:     m.Description,
			ExperienceYears: m.ExperienceYears,
			IsActive:        active,
		}, nil)
		if err != nil {
			return res, fmt.Errorf("masters[%d]: %w", i, err)
		}
		if len(hours) > 0 {
			if err := svc.SetWorkingHours(ctx, created.ID, hours); err != nil {
				return res, fmt.Errorf("masters[%d] working hours: %w", i, err)
			}
		}
		res.Created++
		log.WithField("master_id", created.ID).WithField("name", created.Name).Info("master seeded")
	}
	return res, nil
}
