package httpapi

import (
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/R3E-Network/barbershop/internal/app/domain/makerequest"
	"github.com/R3E-Network/barbershop/internal/app/services/telegram"
	"github.com/R3E-Network/barbershop/internal/app/storage"
	"github.com/R3E-Network/barbershop/internal/httputil"
)

const (
	minCorrelationIDLength = 8
	maxCorrelationIDLength = 64
)

type callbackBody struct {
	CorrelationID *string `json:"correlation_id"`
	Text          *string `json:"text"`
}

// makeCallback relays Make's reply to the chat the correlation id belongs to.
func (h *handler) makeCallback(w http.ResponseWriter, r *http.Request) {
	var body callbackBody
	if ferr := httputil.DecodeJSON(r, &body); ferr != nil {
		httputil.WriteValidation(w, *ferr)
		return
	}
	if body.CorrelationID == nil {
		httputil.WriteValidation(w, httputil.FieldError{Loc: []string{"body", "correlation_id"}, Msg: "field required"})
		return
	}
	if n := utf8.RuneCountInString(*body.CorrelationID); n < minCorrelationIDLength || n > maxCorrelationIDLength {
		httputil.WriteValidation(w, httputil.FieldError{Loc: []string{"body", "correlation_id"}, Msg: "length must be between 8 and 64"})
		return
	}
	if body.Text == nil {
		httputil.WriteValidation(w, httputil.FieldError{Loc: []string{"body", "text"}, Msg: "field required"})
		return
	}

	req, err := h.makeRequests.GetMakeRequestByCorrelationID(r.Context(), *body.CorrelationID)
	if errors.Is(err, storage.ErrNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "Unknown correlation_id")
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if err := h.bot.SendText(r.Context(), req.ChatID, *body.Text); err != nil {
		if errors.Is(err, telegram.ErrNotRunning) {
			httputil.WriteError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.log.WithError(err).WithField("correlation_id", req.CorrelationID).Error("send callback reply")
		httputil.WriteError(w, http.StatusBadGateway, "Failed to send message")
		return
	}

	if err := h.makeRequests.SetMakeRequestStatus(r.Context(), req.ID, makerequest.StatusCompleted, nil); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteOK(w)
}
