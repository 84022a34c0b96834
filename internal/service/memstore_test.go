package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/AnatolyKozmin/Shend/internal/dto"
	"github.com/AnatolyKozmin/Shend/internal/models"
	"github.com/AnatolyKozmin/Shend/pkg/database"
)

// memDB is an in-memory slot and booking store that honours row locks: a
// locked row stays locked until the owning transaction commits or rolls back.
// Writes apply immediately and are undone on rollback.
type memDB struct {
	mu           sync.Mutex
	slots        map[string]*models.TimeSlot
	bookings     map[string]*models.Booking
	interviewers map[string]models.Interviewer
	rowLocks     map[string]*sync.Mutex

	failInterviewer string
	commits         int
	rollbacks       int
}

func newMemDB() *memDB {
	return &memDB{
		slots:        make(map[string]*models.TimeSlot),
		bookings:     make(map[string]*models.Booking),
		interviewers: make(map[string]models.Interviewer),
		rowLocks:     make(map[string]*sync.Mutex),
	}
}

func (db *memDB) BeginTx(ctx context.Context) (database.Tx, error) {
	return &memTx{db: db}, nil
}

func (db *memDB) addInterviewer(id, key, name string, tags ...string) models.Interviewer {
	iv := models.Interviewer{ID: id, ExternalKey: key, FullName: name, Tags: pq.StringArray(tags), Active: true}
	db.mu.Lock()
	db.interviewers[id] = iv
	db.mu.Unlock()
	return iv
}

func (db *memDB) addSlot(slot models.TimeSlot) *models.TimeSlot {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	if slot.Tags == nil {
		slot.Tags = pq.StringArray{}
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.slots[slot.ID] = &slot
	return &slot
}

func (db *memDB) slot(id string) models.TimeSlot {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.slots[id]
}

func (db *memDB) allSlots() []models.TimeSlot {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]models.TimeSlot, 0, len(db.slots))
	for _, s := range db.slots {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SlotDate != out[j].SlotDate {
			return out[i].SlotDate < out[j].SlotDate
		}
		return out[i].TimeStart < out[j].TimeStart
	})
	return out
}

func (db *memDB) allBookings() []models.Booking {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]models.Booking, 0, len(db.bookings))
	for _, b := range db.bookings {
		out = append(out, *b)
	}
	return out
}

func (db *memDB) activeBookingForSlotLocked(slotID string) *models.Booking {
	for _, b := range db.bookings {
		if b.Active() && b.SlotID != nil && *b.SlotID == slotID {
			return b
		}
	}
	return nil
}

// memTx satisfies database.Tx; the embedded ExtContext is never called.
type memTx struct {
	sqlx.ExtContext
	db   *memDB
	held []*sync.Mutex
	keys map[string]struct{}
	undo []func()
	done bool
}

func (tx *memTx) lock(key string) {
	if tx.keys == nil {
		tx.keys = make(map[string]struct{})
	}
	if _, ok := tx.keys[key]; ok {
		return
	}
	tx.db.mu.Lock()
	m, ok := tx.db.rowLocks[key]
	if !ok {
		m = &sync.Mutex{}
		tx.db.rowLocks[key] = m
	}
	tx.db.mu.Unlock()
	m.Lock()
	tx.keys[key] = struct{}{}
	tx.held = append(tx.held, m)
}

func (tx *memTx) finish() {
	for _, m := range tx.held {
		m.Unlock()
	}
	tx.held = nil
	tx.keys = nil
	tx.done = true
}

func (tx *memTx) Commit() error {
	if tx.done {
		return sql.ErrTxDone
	}
	tx.db.mu.Lock()
	tx.db.commits++
	tx.db.mu.Unlock()
	tx.finish()
	return nil
}

func (tx *memTx) Rollback() error {
	if tx.done {
		return sql.ErrTxDone
	}
	tx.db.mu.Lock()
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.db.rollbacks++
	tx.db.mu.Unlock()
	tx.finish()
	return nil
}

func txOf(exec sqlx.ExtContext) *memTx {
	tx, _ := exec.(*memTx)
	return tx
}

// record registers an undo step; callers hold db.mu.
func record(exec sqlx.ExtContext, fn func()) {
	if tx := txOf(exec); tx != nil {
		tx.undo = append(tx.undo, fn)
	}
}

func lockRow(exec sqlx.ExtContext, key string) {
	if tx := txOf(exec); tx != nil {
		tx.lock(key)
	}
}

type memSlots struct{ db *memDB }

func (m memSlots) eligible(s *models.TimeSlot, track, cohort string) bool {
	iv, ok := m.db.interviewers[s.InterviewerID]
	return ok && iv.Active && s.Track == track && s.IsAvailable && iv.Serves(cohort) && s.Open(cohort)
}

func (m memSlots) ListAvailable(ctx context.Context, exec sqlx.ExtContext, f models.SlotFilter) ([]models.TimeSlot, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.TimeSlot
	for _, s := range m.db.slots {
		if m.eligible(s, f.Track, f.Cohort) && s.SlotDate == f.Date && s.TimeStart == f.TimeStart {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memSlots) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimeSlot, error) {
	lockRow(exec, "slot:"+id)
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.slots[id]
	if !ok {
		return nil, fmt.Errorf("lock slot: %w", sql.ErrNoRows)
	}
	cp := *s
	return &cp, nil
}

func (m memSlots) SetAvailability(ctx context.Context, exec sqlx.ExtContext, id string, available bool) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.slots[id]
	if !ok {
		return errors.New("set slot availability: no rows affected")
	}
	prev := s.IsAvailable
	s.IsAvailable = available
	record(exec, func() { s.IsAvailable = prev })
	return nil
}

func (m memSlots) ListDates(ctx context.Context, track, cohort string) ([]models.DateBucket, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	counts := map[string]int{}
	for _, s := range m.db.slots {
		if m.eligible(s, track, cohort) {
			counts[s.SlotDate]++
		}
	}
	var out []models.DateBucket
	for _, d := range sortedKeys(counts) {
		out = append(out, models.DateBucket{Date: d, Available: counts[d]})
	}
	return out, nil
}

func (m memSlots) ListBuckets(ctx context.Context, track, cohort, date string) ([]models.TimeBucket, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	buckets := map[string]*models.TimeBucket{}
	for _, s := range m.db.slots {
		if !m.eligible(s, track, cohort) || s.SlotDate != date {
			continue
		}
		b, ok := buckets[s.TimeStart]
		if !ok {
			b = &models.TimeBucket{Date: date, TimeStart: s.TimeStart, TimeEnd: s.TimeEnd}
			buckets[s.TimeStart] = b
		}
		b.Available++
	}
	var out []models.TimeBucket
	for _, start := range sortedKeys(buckets) {
		out = append(out, *buckets[start])
	}
	return out, nil
}

func (m memSlots) LockForInterviewer(ctx context.Context, exec sqlx.ExtContext, track, interviewerID string) ([]models.ScopedSlot, error) {
	if interviewerID == m.db.failInterviewer {
		return nil, errors.New("lock interviewer slots: connection reset")
	}
	m.db.mu.Lock()
	var ids []string
	for _, s := range m.db.slots {
		if s.Track == track && s.InterviewerID == interviewerID {
			ids = append(ids, s.ID)
		}
	}
	m.db.mu.Unlock()
	sort.Strings(ids)
	for _, id := range ids {
		lockRow(exec, "slot:"+id)
	}

	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.ScopedSlot
	for _, id := range ids {
		s, ok := m.db.slots[id]
		if !ok {
			continue
		}
		reserved := !s.IsAvailable || m.db.activeBookingForSlotLocked(id) != nil
		out = append(out, models.ScopedSlot{TimeSlot: *s, Reserved: reserved})
	}
	return out, nil
}

func (m memSlots) Insert(ctx context.Context, exec sqlx.ExtContext, slot *models.TimeSlot) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, s := range m.db.slots {
		if s.Key() == slot.Key() {
			return fmt.Errorf("insert slot: %w", &pq.Error{Code: "23505", Constraint: "time_slots_natural_key"})
		}
	}
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	cp := *slot
	m.db.slots[cp.ID] = &cp
	record(exec, func() { delete(m.db.slots, cp.ID) })
	return nil
}

func (m memSlots) UpdateSync(ctx context.Context, exec sqlx.ExtContext, slot *models.TimeSlot) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.slots[slot.ID]
	if !ok {
		return nil
	}
	prev := *s
	s.Section, s.TimeEnd, s.Tags, s.SyncedAt = slot.Section, slot.TimeEnd, slot.Tags, slot.SyncedAt
	record(exec, func() { *s = prev })
	return nil
}

func (m memSlots) Touch(ctx context.Context, exec sqlx.ExtContext, ids []string, syncedAt time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, id := range ids {
		if s, ok := m.db.slots[id]; ok {
			prev := s.SyncedAt
			s.SyncedAt = syncedAt
			record(exec, func() { s.SyncedAt = prev })
		}
	}
	return nil
}

func (m memSlots) DeleteIfFree(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	s, ok := m.db.slots[id]
	if !ok || !s.IsAvailable || m.db.activeBookingForSlotLocked(id) != nil {
		return false, nil
	}
	delete(m.db.slots, id)
	record(exec, func() { m.db.slots[id] = s })
	return true, nil
}

type memBookings struct{ db *memDB }

func (m memBookings) Insert(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, b := range m.db.bookings {
		if !b.Active() {
			continue
		}
		if b.SlotID != nil && booking.SlotID != nil && *b.SlotID == *booking.SlotID {
			return fmt.Errorf("insert booking: %w", &pq.Error{Code: "23505", Constraint: models.ConstraintActiveSlot})
		}
		if b.Track == booking.Track && b.CandidateID == booking.CandidateID {
			return fmt.Errorf("insert booking: %w", &pq.Error{Code: "23505", Constraint: models.ConstraintActiveCandidate})
		}
	}
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	cp := *booking
	m.db.bookings[cp.ID] = &cp
	record(exec, func() { delete(m.db.bookings, cp.ID) })
	return nil
}

func (m memBookings) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Booking, error) {
	lockRow(exec, "booking:"+id)
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	b, ok := m.db.bookings[id]
	if !ok {
		return nil, fmt.Errorf("lock booking: %w", sql.ErrNoRows)
	}
	cp := *b
	return &cp, nil
}

func (m memBookings) ActiveForSlot(ctx context.Context, exec sqlx.ExtContext, slotID string) (*models.Booking, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if b := m.db.activeBookingForSlotLocked(slotID); b != nil {
		cp := *b
		return &cp, nil
	}
	return nil, fmt.Errorf("get active booking for slot: %w", sql.ErrNoRows)
}

func (m memBookings) ActiveForCandidate(ctx context.Context, exec sqlx.ExtContext, track, candidateID string) (*models.Booking, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, b := range m.db.bookings {
		if b.Active() && b.Track == track && b.CandidateID == candidateID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("get active booking for candidate: %w", sql.ErrNoRows)
}

func (m memBookings) HasCancelled(ctx context.Context, exec sqlx.ExtContext, track, candidateID string) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, b := range m.db.bookings {
		if !b.Active() && b.Track == track && b.CandidateID == candidateID {
			return true, nil
		}
	}
	return false, nil
}

func (m memBookings) MarkCancelled(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	b, ok := m.db.bookings[id]
	if !ok || !b.Active() {
		return errors.New("cancel booking: no rows affected")
	}
	prev := *b
	b.Status = models.BookingCancelled
	b.CancelledAt = &at
	b.CancellationAllowed = false
	b.UpdatedAt = at
	record(exec, func() { *b = prev })
	return nil
}

func (m memBookings) List(ctx context.Context, filter dto.BookingFilter) ([]models.BookingDetail, int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.BookingDetail
	for _, b := range m.db.bookings {
		if filter.Track != "" && b.Track != filter.Track {
			continue
		}
		if filter.Status != "" && string(b.Status) != filter.Status {
			continue
		}
		iv := m.db.interviewers[b.InterviewerID]
		out = append(out, models.BookingDetail{Booking: *b, InterviewerName: iv.FullName, InterviewerKey: iv.ExternalKey})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimeStart < out[j].TimeStart })
	return out, len(out), nil
}

type memRoster struct{ db *memDB }

func (m memRoster) FindByID(ctx context.Context, id string) (*models.Interviewer, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	iv, ok := m.db.interviewers[id]
	if !ok {
		return nil, fmt.Errorf("get interviewer: %w", sql.ErrNoRows)
	}
	return &iv, nil
}

func (m memRoster) ListByKeys(ctx context.Context, keys []string) ([]models.Interviewer, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}
	var out []models.Interviewer
	for _, iv := range m.db.interviewers {
		if _, ok := want[iv.ExternalKey]; ok && iv.Active {
			out = append(out, iv)
		}
	}
	return out, nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []models.BookingEvent
	err    error
}

func (r *eventRecorder) Publish(ctx context.Context, event models.BookingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *eventRecorder) all() []models.BookingEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.BookingEvent(nil), r.events...)
}
