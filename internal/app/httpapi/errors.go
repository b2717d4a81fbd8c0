package httpapi

import (
	"errors"
	"net/http"

	"github.com/R3E-Network/barbershop/internal/app/services/booking"
	"github.com/R3E-Network/barbershop/internal/app/services/masters"
	"github.com/R3E-Network/barbershop/internal/app/services/media"
	"github.com/R3E-Network/barbershop/internal/httputil"
)

// writeServiceError maps service errors to HTTP responses. Unknown errors
// are logged and reported as 500.
func (h *handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *masters.ValidationError
	switch {
	case errors.As(err, &verr):
		httputil.WriteValidation(w, httputil.FieldError{Loc: []string{"body", verr.Field}, Msg: verr.Message})
	case errors.Is(err, booking.ErrOutsideWorkingHours), errors.Is(err, booking.ErrInvalidRange):
		httputil.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, booking.ErrMasterBusy):
		httputil.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		httputil.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrMasterNotFound), errors.Is(err, masters.ErrNotFound):
		httputil.WriteError(w, http.StatusNotFound, "Master not found")
	case errors.Is(err, masters.ErrHasAppointments):
		httputil.WriteError(w, http.StatusConflict, err.Error())
	case mediaError(err) != nil:
		httputil.WriteError(w, http.StatusBadRequest, mediaError(err).Error())
	default:
		h.log.WithError(err).
			WithField("method", r.Method).
			WithField("path", r.URL.Path).
			Error("request failed")
		httputil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

// mediaError returns the upload sentinel err wraps, if any.
func mediaError(err error) error {
	for _, sentinel := range []error{media.ErrEmptyFile, media.ErrFileTooLarge, media.ErrNotImage, media.ErrInvalidImage} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}
