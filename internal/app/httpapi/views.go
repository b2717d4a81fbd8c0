package httpapi

import (
	"time"

	"github.com/R3E-Network/barbershop/internal/app/domain/appointment"
	"github.com/R3E-Network/barbershop/internal/app/domain/bot"
	"github.com/R3E-Network/barbershop/internal/app/domain/master"
	"github.com/R3E-Network/barbershop/internal/app/services/telegram"
)

type masterView struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Description     *string `json:"description"`
	ExperienceYears *int    `json:"experience_years"`
	IsActive        bool    `json:"is_active"`
	PhotoURL        *string `json:"photo_url"`
}

func (h *handler) masterView(m master.Master) masterView {
	return masterView{
		ID:              m.ID,
		Name:            m.Name,
		Description:     m.Description,
		ExperienceYears: m.ExperienceYears,
		IsActive:        m.IsActive,
		PhotoURL:        h.masters.PhotoURL(m),
	}
}

type workingHoursView struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func workingHoursViews(rows []master.WorkingHours) []workingHoursView {
	out := make([]workingHoursView, 0, len(rows))
	for _, r := range rows {
		out = append(out, workingHoursView{DayOfWeek: r.DayOfWeek, StartTime: r.Start.String(), EndTime: r.End.String()})
	}
	return out
}

type appointmentView struct {
	ID                 int64      `json:"id"`
	MasterID           int64      `json:"master_id"`
	CustomerTelegramID int64      `json:"customer_telegram_id"`
	StartAt            time.Time  `json:"start_at"`
	EndAt              time.Time  `json:"end_at"`
	Status             string     `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	CancelledAt        *time.Time `json:"cancelled_at"`
}

func newAppointmentView(a appointment.Appointment) appointmentView {
	return appointmentView{
		ID:                 a.ID,
		MasterID:           a.MasterID,
		CustomerTelegramID: a.CustomerTelegramID,
		StartAt:            a.StartAt,
		EndAt:              a.EndAt,
		Status:             string(a.Status),
		CreatedAt:          a.CreatedAt,
		CancelledAt:        a.CancelledAt,
	}
}

func appointmentViews(list []appointment.Appointment) []appointmentView {
	out := make([]appointmentView, 0, len(list))
	for _, a := range list {
		out = append(out, newAppointmentView(a))
	}
	return out
}

type botView struct {
	telegram.Status
	IsEnabled   bool       `json:"is_enabled"`
	HasToken    bool       `json:"has_token"`
	TokenSource string     `json:"token_source"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

type botLogView struct {
	ID        int64     `json:"id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Details   *string   `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

func newBotLogView(l bot.Log) botLogView {
	return botLogView{ID: l.ID, Level: string(l.Level), Message: l.Message, Details: l.Details, CreatedAt: l.CreatedAt}
}

func botLogViews(logs []bot.Log) []botLogView {
	out := make([]botLogView, 0, len(logs))
	for _, l := range logs {
		out = append(out, newBotLogView(l))
	}
	return out
}
