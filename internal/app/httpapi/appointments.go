package httpapi

import (
	"net/http"

	"github.com/R3E-Network/barbershop/internal/app/services/booking"
	"github.com/R3E-Network/barbershop/internal/httputil"
)

type createAppointmentBody struct {
	MasterID           *int64  `json:"master_id"`
	CustomerTelegramID *int64  `json:"customer_telegram_id"`
	StartAt            *string `json:"start_at"`
	EndAt              *string `json:"end_at"`
}

type rescheduleBody struct {
	StartAt *string `json:"start_at"`
	EndAt   *string `json:"end_at"`
}

func (h *handler) createAppointment(w http.ResponseWriter, r *http.Request) {
	var body createAppointmentBody
	if ferr := httputil.DecodeJSON(r, &body); ferr != nil {
		httputil.WriteValidation(w, *ferr)
		return
	}
	if body.MasterID == nil {
		httputil.WriteValidation(w, httputil.FieldError{Loc: []string{"body", "master_id"}, Msg: "field required"})
		return
	}
	if body.CustomerTelegramID == nil {
		httputil.WriteValidation(w, httputil.FieldError{Loc: []string{"body", "customer_telegram_id"}, Msg: "field required"})
		return
	}
	start, ferr := requireDateTime(body.StartAt, "start_at", h.opts.Location)
	if ferr != nil {
		httputil.WriteValidation(w, *ferr)
		return
	}
	end, ferr := requireDateTime(body.EndAt, "end_at", h.opts.Location)
	if ferr != nil {
		httputil.WriteValidation(w, *ferr)
		return
	}

	appt, err := h.booking.Create(r.Context(), booking.CreateAppointment{
		MasterID:           *body.MasterID,
		CustomerTelegramID: *body.CustomerTelegramID,
		StartAt:            start,
		EndAt:              end,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, newAppointmentView(appt))
}

func (h *handler) rescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body rescheduleBody
	if ferr := httputil.DecodeJSON(r, &body); ferr != nil {
		httputil.WriteValidation(w, *ferr)
		return
	}
	start, ferr := requireDateTime(body.StartAt, "start_at", h.opts.Location)
	if ferr != nil {
		httputil.WriteValidation(w, *ferr)
		return
	}
	end, ferr := requireDateTime(body.EndAt, "end_at", h.opts.Location)
	if ferr != nil {
		httputil.WriteValidation(w, *ferr)
		return
	}

	appt, err := h.booking.Reschedule(r.Context(), id, start, end)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newAppointmentView(appt))
}

func (h *handler) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	appt, err := h.booking.Cancel(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newAppointmentView(appt))
}

func (h *handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	filter, ferr := appointmentFilter(r, h.opts.Location)
	if ferr != nil {
		httputil.WriteValidation(w, *ferr)
		return
	}
	list, err := h.booking.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, appointmentViews(list))
}
