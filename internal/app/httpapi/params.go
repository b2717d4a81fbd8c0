package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/barbershop/internal/app/domain/appointment"
	"github.com/R3E-Network/barbershop/internal/httputil"
)

// pathID returns the {id} route variable. Routes constrain it to digits, so
// only overflow can fail.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		httputil.WriteValidation(w, httputil.FieldError{Loc: []string{"path", "id"}, Msg: "value is not a valid integer"})
		return 0, false
	}
	return id, true
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseDateTime accepts RFC 3339 timestamps and, for values without an
// offset, interprets them in loc.
func parseDateTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime format")
}

// requireDateTime parses a required body field.
func requireDateTime(raw *string, field string, loc *time.Location) (time.Time, *httputil.FieldError) {
	if raw == nil {
		return time.Time{}, &httputil.FieldError{Loc: []string{"body", field}, Msg: "field required"}
	}
	t, err := parseDateTime(*raw, loc)
	if err != nil {
		return time.Time{}, &httputil.FieldError{Loc: []string{"body", field}, Msg: err.Error()}
	}
	return t, nil
}

// appointmentFilter reads master_id, customer_telegram_id, from_dt and to_dt.
func appointmentFilter(r *http.Request, loc *time.Location) (appointment.Filter, *httputil.FieldError) {
	q := r.URL.Query()
	var f appointment.Filter

	intParam := func(name string) (*int64, *httputil.FieldError) {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			return nil, nil
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &httputil.FieldError{Loc: []string{"query", name}, Msg: "value is not a valid integer"}
		}
		return &v, nil
	}
	timeParam := func(name string) (*time.Time, *httputil.FieldError) {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			return nil, nil
		}
		t, err := parseDateTime(raw, loc)
		if err != nil {
			return nil, &httputil.FieldError{Loc: []string{"query", name}, Msg: err.Error()}
		}
		return &t, nil
	}

	var ferr *httputil.FieldError
	if f.MasterID, ferr = intParam("master_id"); ferr != nil {
		return f, ferr
	}
	if f.CustomerTelegramID, ferr = intParam("customer_telegram_id"); ferr != nil {
		return f, ferr
	}
	if f.From, ferr = timeParam("from_dt"); ferr != nil {
		return f, ferr
	}
	if f.To, ferr = timeParam("to_dt"); ferr != nil {
		return f, ferr
	}
	return f, nil
}

// queryLimit reads ?limit, falling back to def for missing or invalid values.
func queryLimit(r *http.Request, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
