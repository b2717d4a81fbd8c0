package httpapi

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/R3E-Network/barbershop/internal/app/services/masters"
	"github.com/R3E-Network/barbershop/internal/app/services/media"
	"github.com/R3E-Network/barbershop/internal/httputil"
)

// multipart bodies may carry a full-size photo plus form fields.
const maxMultipartBody = media.MaxUploadSize + 1<<20

type masterBody struct {
	Name            *string `json:"name"`
	Description     *string `json:"description"`
	ExperienceYears *int    `json:"experience_years"`
	IsActive        *bool   `json:"is_active"`
}

func (b masterBody) input() (masters.Input, *httputil.FieldError) {
	if b.Name == nil {
		return masters.Input{}, &httputil.FieldError{Loc: []string{"body", "name"}, Msg: "field required"}
	}
	active := true
	if b.IsActive != nil {
		active = *b.IsActive
	}
	return masters.Input{
		Name:            *b.Name,
		Description:     b.Description,
		ExperienceYears: b.ExperienceYears,
		IsActive:        active,
	}, nil
}

func (h *handler) listMasters(w http.ResponseWriter, r *http.Request) {
	list, err := h.masters.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out := make([]masterView, 0, len(list))
	for _, m := range list {
		out = append(out, h.masterView(m))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *handler) getMaster(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	m, err := h.masters.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.masterView(m))
}

// makeCreateMaster creates an active master from a JSON body.
func (h *handler) makeCreateMaster(w http.ResponseWriter, r *http.Request) {
	var body masterBody
	if ferr := httputil.DecodeJSON(r, &body); ferr != nil {
		httputil.WriteValidation(w, *ferr)
		return
	}
	body.IsActive = nil
	in, ferr := body.input()
	if ferr != nil {
		httputil.WriteValidation(w, *ferr)
		return
	}
	m, err := h.masters.Create(r.Context(), in, nil)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.masterView(m))
}

// adminCreateMaster creates a master from a multipart form with an
// optional photo in "file".
func (h *handler) adminCreateMaster(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
	if err := r.ParseMultipartForm(maxMultipartBody); err != nil {
		h.writeFormError(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	var body masterBody
	if name, ok := formValue(r, "name"); ok {
		body.Name = &name
	}
	if desc, ok := formValue(r, "description"); ok {
		body.Description = &desc
	}
	if raw, ok := formValue(r, "experience_years"); ok && strings.TrimSpace(raw) != "" {
		years, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			httputil.WriteValidation(w, httputil.FieldError{Loc: []string{"body", "experience_years"}, Msg: "value is not a valid integer"})
			return
		}
		body.ExperienceYears = &years
	}
	if raw, ok := formValue(r, "is_active"); ok {
		active, err := parseFormBool(raw)
		if err != nil {
			httputil.WriteValidation(w, httputil.FieldError{Loc: []string{"body", "is_active"}, Msg: "value could not be parsed to a boolean"})
			return
		}
		body.IsActive = &active
	}
	in, ferr := body.input()
	if ferr != nil {
		httputil.WriteValidation(w, *ferr)
		return
	}

	photo, err := formPhoto(r, false)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	m, err := h.masters.Create(r.Context(), in, photo)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, h.masterView(m))
}

func (h *handler) updateMaster(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body masterBody
	if ferr := httputil.DecodeJSON(r, &body); ferr != nil {
		httputil.WriteValidation(w, *ferr)
		return
	}
	in, ferr := body.input()
	if ferr != nil {
		httputil.WriteValidation(w, *ferr)
		return
	}
	m, err := h.masters.Update(r.Context(), id, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.masterView(m))
}

func (h *handler) deleteMaster(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.masters.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteOK(w)
}

func (h *handler) uploadPhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
	if err := r.ParseMultipartForm(maxMultipartBody); err != nil {
		h.writeFormError(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	photo, err := formPhoto(r, true)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			httputil.WriteValidation(w, httputil.FieldError{Loc: []string{"body", "file"}, Msg: "field required"})
			return
		}
		h.writeServiceError(w, r, err)
		return
	}
	m, err := h.masters.SetPhoto(r.Context(), id, *photo)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.masterView(m))
}

func (h *handler) deletePhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.masters.DeletePhoto(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteOK(w)
}

type workingHoursBody struct {
	DayOfWeek *int   `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (h *handler) getWorkingHours(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rows, err := h.masters.WorkingHours(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, workingHoursViews(rows))
}

func (h *handler) setWorkingHours(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body []workingHoursBody
	if ferr := httputil.DecodeJSON(r, &body); ferr != nil {
		httputil.WriteValidation(w, *ferr)
		return
	}
	in := make([]masters.HoursInput, 0, len(body))
	for i, b := range body {
		if b.DayOfWeek == nil {
			httputil.WriteValidation(w, httputil.FieldError{Loc: []string{"body", strconv.Itoa(i), "day_of_week"}, Msg: "field required"})
			return
		}
		in = append(in, masters.HoursInput{DayOfWeek: *b.DayOfWeek, Start: b.StartTime, End: b.EndTime})
	}
	if err := h.masters.SetWorkingHours(r.Context(), id, in); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteOK(w)
}

func (h *handler) writeFormError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		httputil.WriteError(w, http.StatusBadRequest, media.ErrFileTooLarge.Error())
		return
	}
	httputil.WriteValidation(w, httputil.FieldError{Loc: []string{"body"}, Msg: "invalid multipart form"})
}

func formValue(r *http.Request, key string) (string, bool) {
	values, ok := r.MultipartForm.Value[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func parseFormBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(raw))
}

// formPhoto reads the "file" part. A missing optional file yields nil; a
// missing required file yields http.ErrMissingFile.
func formPhoto(r *http.Request, required bool) (*masters.Photo, error) {
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		if required {
			return nil, http.ErrMissingFile
		}
		return nil, nil
	}
	return readPhoto(files[0])
}

func readPhoto(fh *multipart.FileHeader) (*masters.Photo, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, media.MaxUploadSize+1))
	if err != nil {
		return nil, err
	}
	return &masters.Photo{ContentType: fh.Header.Get("Content-Type"), Data: data}, nil
}
