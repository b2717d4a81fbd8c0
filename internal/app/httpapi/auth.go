package httpapi

import (
	"net/http"
	"time"

	"github.com/R3E-Network/barbershop/internal/httputil"
	"github.com/R3E-Network/barbershop/internal/middleware"
)

type loginBody struct {
	Password *string `json:"password"`
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if ferr := httputil.DecodeJSON(r, &body); ferr != nil {
		httputil.WriteValidation(w, *ferr)
		return
	}
	if body.Password == nil {
		httputil.WriteValidation(w, httputil.FieldError{Loc: []string{"body", "password"}, Msg: "field required"})
		return
	}
	if authErr := h.session.Login(w, *body.Password); authErr != nil {
		h.log.WithField("remote_addr", r.RemoteAddr).WithField("reason", authErr.Detail).Warn("admin login rejected")
		httputil.WriteError(w, authErr.Status, authErr.Detail)
		return
	}
	h.audit.add(auditEntry{
		Time:       time.Now().UTC(),
		Actor:      "admin-session",
		Method:     r.Method,
		Path:       r.URL.Path,
		Status:     http.StatusOK,
		TraceID:    middleware.TraceID(r.Context()),
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	})
	httputil.WriteOK(w)
}

func (h *handler) logout(w http.ResponseWriter, _ *http.Request) {
	h.session.Logout(w)
	httputil.WriteOK(w)
}

func (h *handler) auditEntries(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.audit.listLimit(queryLimit(r, 100)))
}
