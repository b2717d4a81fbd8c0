// Package memory provides a thread-safe in-memory implementation of the
// storage interfaces. It backs tests and database-less development runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/R3E-Network/barbershop/internal/app/domain/admin"
	"github.com/R3E-Network/barbershop/internal/app/domain/appointment"
	"github.com/R3E-Network/barbershop/internal/app/domain/bot"
	"github.com/R3E-Network/barbershop/internal/app/domain/makerequest"
	"github.com/R3E-Network/barbershop/internal/app/domain/master"
	"github.com/R3E-Network/barbershop/internal/app/storage"
)

// Store keeps every record in maps guarded by a single mutex.
type Store struct {
	mu     sync.RWMutex
	nextID int64

	masters      map[int64]master.Master
	workingHours map[int64][]master.WorkingHours
	appointments map[int64]appointment.Appointment
	makeRequests map[int64]makerequest.Request
	admins       map[int64]admin.Admin
	botSettings  *bot.Settings
	botLogs      []bot.Log

	// scheduleLocks serialises WithMasterSchedule per master.
	scheduleLocks map[int64]*sync.Mutex
	locksMu       sync.Mutex
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:        1,
		masters:       make(map[int64]master.Master),
		workingHours:  make(map[int64][]master.WorkingHours),
		appointments:  make(map[int64]appointment.Appointment),
		makeRequests:  make(map[int64]makerequest.Request),
		admins:        make(map[int64]admin.Admin),
		scheduleLocks: make(map[int64]*sync.Mutex),
	}
}

func (s *Store) nextIDLocked() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// --- MasterStore ------------------------------------------------------------

func (s *Store) CreateMaster(_ context.Context, m master.Master) (master.Master, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.ID = s.nextIDLocked()
	m.CreatedAt = time.Now().UTC()
	s.masters[m.ID] = m
	return m, nil
}

func (s *Store) UpdateMaster(_ context.Context, m master.Master) (master.Master, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.masters[m.ID]
	if !ok {
		return master.Master{}, storage.ErrNotFound
	}
	m.CreatedAt = existing.CreatedAt
	s.masters[m.ID] = m
	return m, nil
}

func (s *Store) GetMaster(_ context.Context, id int64) (master.Master, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.masters[id]
	if !ok {
		return master.Master{}, storage.ErrNotFound
	}
	return m, nil
}

func (s *Store) FindMasterByName(_ context.Context, name string) (master.Master, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *master.Master
	for _, m := range s.masters {
		if strings.EqualFold(m.Name, name) && (found == nil || m.ID < found.ID) {
			m := m
			found = &m
		}
	}
	if found == nil {
		return master.Master{}, storage.ErrNotFound
	}
	return *found, nil
}

func (s *Store) ListMasters(_ context.Context) ([]master.Master, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]master.Master, 0, len(s.masters))
	for _, m := range s.masters {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteMaster waits for any open schedule on the master, so a booking in
// flight either lands first and blocks the delete or sees the master gone.
func (s *Store) DeleteMaster(_ context.Context, id int64) error {
	lock := s.scheduleLock(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.masters[id]; !ok {
		return storage.ErrNotFound
	}
	for _, a := range s.appointments {
		if a.MasterID == id {
			return fmt.Errorf("master %d has appointments: %w", id, storage.ErrConflict)
		}
	}
	delete(s.masters, id)
	delete(s.workingHours, id)
	return nil
}

// --- WorkingHoursStore ------------------------------------------------------

func (s *Store) ListWorkingHours(_ context.Context, masterID int64) ([]master.WorkingHours, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]master.WorkingHours(nil), s.workingHours[masterID]...), nil
}

func (s *Store) ReplaceWorkingHours(_ context.Context, masterID int64, hours []master.WorkingHours) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.masters[masterID]; !ok {
		return storage.ErrNotFound
	}
	rows := make([]master.WorkingHours, 0, len(hours))
	for _, wh := range hours {
		wh.ID = s.nextIDLocked()
		wh.MasterID = masterID
		rows = append(rows, wh)
	}
	s.workingHours[masterID] = rows
	return nil
}

// --- AppointmentStore -------------------------------------------------------

func (s *Store) GetAppointment(_ context.Context, id int64) (appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.appointments[id]
	if !ok {
		return appointment.Appointment{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListAppointments(_ context.Context, filter appointment.Filter) ([]appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []appointment.Appointment
	for _, a := range s.appointments {
		if filter.Match(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartAt.Before(out[j].StartAt)
	})
	return out, nil
}

func (s *Store) WithMasterSchedule(ctx context.Context, masterID int64, fn func(ctx context.Context, sched storage.Schedule) error) error {
	lock := s.scheduleLock(masterID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.GetMaster(ctx, masterID); err != nil {
		return err
	}

	tx := &schedule{store: s, masterID: masterID}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.masters[masterID]; !ok {
		return storage.ErrNotFound
	}
	for _, a := range tx.pending {
		s.appointments[a.ID] = a
	}
	return nil
}

func (s *Store) scheduleLock(masterID int64) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.scheduleLocks[masterID]
	if !ok {
		lock = &sync.Mutex{}
		s.scheduleLocks[masterID] = lock
	}
	return lock
}

// schedule buffers writes until the callback succeeds.
type schedule struct {
	store    *Store
	masterID int64
	pending  []appointment.Appointment
}

func (t *schedule) WorkingHoursOn(ctx context.Context, dayOfWeek int) ([]master.WorkingHours, error) {
	rows, err := t.store.ListWorkingHours(ctx, t.masterID)
	if err != nil {
		return nil, err
	}
	var out []master.WorkingHours
	for _, wh := range rows {
		if wh.DayOfWeek == dayOfWeek {
			out = append(out, wh)
		}
	}
	return out, nil
}

func (t *schedule) HasOverlap(_ context.Context, start, end time.Time, excludeID int64) (bool, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	for _, a := range t.view() {
		if a.MasterID != t.masterID || a.Status != appointment.StatusBooked {
			continue
		}
		if excludeID != 0 && a.ID == excludeID {
			continue
		}
		if a.Overlaps(start, end) {
			return true, nil
		}
	}
	return false, nil
}

// view merges committed and pending appointments. Caller holds store.mu.
func (t *schedule) view() map[int64]appointment.Appointment {
	out := make(map[int64]appointment.Appointment, len(t.store.appointments)+len(t.pending))
	for id, a := range t.store.appointments {
		out[id] = a
	}
	for _, a := range t.pending {
		out[a.ID] = a
	}
	return out
}

func (t *schedule) GetAppointment(_ context.Context, id int64) (appointment.Appointment, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	a, ok := t.view()[id]
	if !ok || a.MasterID != t.masterID {
		return appointment.Appointment{}, storage.ErrNotFound
	}
	return a, nil
}

func (t *schedule) InsertAppointment(_ context.Context, a appointment.Appointment) (appointment.Appointment, error) {
	t.store.mu.Lock()
	a.ID = t.store.nextIDLocked()
	t.store.mu.Unlock()

	a.MasterID = t.masterID
	a.CreatedAt = time.Now().UTC()
	t.pending = append(t.pending, a)
	return a, nil
}

func (t *schedule) UpdateAppointment(ctx context.Context, a appointment.Appointment) (appointment.Appointment, error) {
	existing, err := t.GetAppointment(ctx, a.ID)
	if err != nil {
		return appointment.Appointment{}, err
	}
	a.MasterID = existing.MasterID
	a.CreatedAt = existing.CreatedAt
	t.pending = append(t.pending, a)
	return a, nil
}

// --- MakeRequestStore -------------------------------------------------------

func (s *Store) CreateMakeRequest(_ context.Context, req makerequest.Request) (makerequest.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.makeRequests {
		if existing.CorrelationID == req.CorrelationID {
			return makerequest.Request{}, fmt.Errorf("correlation id %s: %w", req.CorrelationID, storage.ErrConflict)
		}
	}
	now := time.Now().UTC()
	req.ID = s.nextIDLocked()
	req.CreatedAt = now
	req.UpdatedAt = now
	if req.Status == "" {
		req.Status = makerequest.StatusCreated
	}
	s.makeRequests[req.ID] = req
	return req, nil
}

func (s *Store) GetMakeRequestByCorrelationID(_ context.Context, correlationID string) (makerequest.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, req := range s.makeRequests {
		if req.CorrelationID == correlationID {
			return req, nil
		}
	}
	return makerequest.Request{}, storage.ErrNotFound
}

func (s *Store) SetMakeRequestStatus(_ context.Context, id int64, status makerequest.Status, lastError *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.makeRequests[id]
	if !ok {
		return storage.ErrNotFound
	}
	req.Status = status
	req.LastError = lastError
	req.UpdatedAt = time.Now().UTC()
	s.makeRequests[id] = req
	return nil
}

func (s *Store) FailStaleMakeRequests(_ context.Context, cutoff time.Time, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, req := range s.makeRequests {
		if req.Status != makerequest.StatusCreated || !req.CreatedAt.Before(cutoff) {
			continue
		}
		msg := reason
		req.Status = makerequest.StatusFailed
		req.LastError = &msg
		req.UpdatedAt = time.Now().UTC()
		s.makeRequests[id] = req
		n++
	}
	return n, nil
}

// --- AdminStore -------------------------------------------------------------

func (s *Store) EnsureAdmin(_ context.Context, telegramID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.admins {
		if a.TelegramID == telegramID {
			return false, nil
		}
	}
	a := admin.Admin{ID: s.nextIDLocked(), TelegramID: telegramID, CreatedAt: time.Now().UTC()}
	s.admins[a.ID] = a
	return true, nil
}

func (s *Store) ListAdmins(_ context.Context) ([]admin.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]admin.Admin, 0, len(s.admins))
	for _, a := range s.admins {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- BotStore ---------------------------------------------------------------

func (s *Store) GetBotSettings(_ context.Context) (bot.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.botSettings == nil {
		return bot.Settings{}, storage.ErrNotFound
	}
	return *s.botSettings, nil
}

func (s *Store) SaveBotToken(_ context.Context, token string) (bot.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.settingsLocked()
	settings.BotToken = &token
	settings.UpdatedAt = time.Now().UTC()
	return *settings, nil
}

func (s *Store) SaveBotEnabled(_ context.Context, enabled bool) (bot.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.settingsLocked()
	settings.IsEnabled = enabled
	settings.UpdatedAt = time.Now().UTC()
	return *settings, nil
}

func (s *Store) settingsLocked() *bot.Settings {
	if s.botSettings == nil {
		s.botSettings = &bot.Settings{ID: bot.SettingsID, IsEnabled: true}
	}
	return s.botSettings
}

func (s *Store) AppendBotLog(_ context.Context, entry bot.Log) (bot.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = s.nextIDLocked()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.botLogs = append(s.botLogs, entry)
	return entry, nil
}

func (s *Store) ListBotLogs(_ context.Context, limit int) ([]bot.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]bot.Log, 0, len(s.botLogs))
	for i := len(s.botLogs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, s.botLogs[i])
	}
	return out, nil
}

func (s *Store) PruneBotLogs(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.botLogs[:0]
	var removed int64
	for _, entry := range s.botLogs {
		if entry.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	s.botLogs = kept
	return removed, nil
}
