package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/library-seat-lease/internal/model"
)

// Memory is an in-process implementation of TableStore and HoldStore.  It
// backs local development and tests.  Every method takes the same lock, so
// each call is atomic; records are copied in and out.
type Memory struct {
	mu        sync.Mutex
	tables    map[string]model.Table
	holds     map[string]model.Hold
	retention time.Duration
	now       func() time.Time
	indexErr  error
}

// NewMemory returns an empty store.  Holds disappear on their own once
// retention has passed after their deadline; a non-positive retention
// means DefaultRetention.  now may be nil.
func NewMemory(retention time.Duration, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Memory{
		tables:    make(map[string]model.Table),
		holds:     make(map[string]model.Hold),
		retention: retention,
		now:       now,
	}
}

// PutTable creates or replaces a table.  It is the provisioning hook for
// the memory backend.
func (m *Memory) PutTable(t model.Table) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[t.TableID] = t.Clone()
	return nil
}

// SetIndexError makes QueryTablesByFloor fail with err until it is reset
// with nil.
func (m *Memory) SetIndexError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexErr = err
}

func (m *Memory) GetTable(_ context.Context, tableID string) (model.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[tableID]
	if !ok {
		return model.Table{}, ErrNotFound
	}
	return t.Clone(), nil
}

func (m *Memory) QueryTablesByFloor(_ context.Context, floorID string) ([]model.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, m.indexErr)
	}
	out := []model.Table{}
	for _, t := range m.tables {
		if t.FloorID == floorID {
			out = append(out, t.Clone())
		}
	}
	sortTables(out)
	return out, nil
}

func (m *Memory) ScanTables(_ context.Context) ([]model.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Table, 0, len(m.tables))
	for _, t := range m.tables {
		out = append(out, t.Clone())
	}
	sortTables(out)
	return out, nil
}

func (m *Memory) UpdateSeat(_ context.Context, u SeatUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[u.TableID]
	if !ok {
		return ErrNotFound
	}
	if !t.InBounds(u.SeatIndex) {
		return ErrSeatOutOfRange
	}
	if !u.Allows(t.Seats[u.SeatIndex]) {
		return ErrConditionFailed
	}
	t = t.Clone()
	t.Seats[u.SeatIndex] = u.Apply(t.Seats[u.SeatIndex])
	ApplyMeta(&t, u.Meta)
	m.tables[t.TableID] = t
	return nil
}

func (m *Memory) PutHold(_ context.Context, h model.Hold) error {
	if err := h.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.holds[h.HoldID]; ok && !m.passivelyExpired(cur) {
		return ErrConditionFailed
	}
	m.holds[h.HoldID] = h
	return nil
}

func (m *Memory) GetHold(_ context.Context, holdID string) (model.Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[holdID]
	if !ok {
		return model.Hold{}, ErrNotFound
	}
	if m.passivelyExpired(h) {
		delete(m.holds, holdID)
		return model.Hold{}, ErrNotFound
	}
	return h, nil
}

func (m *Memory) DeleteHold(_ context.Context, holdID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.holds, holdID)
	return nil
}

func (m *Memory) ScanHolds(_ context.Context) ([]model.Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Hold, 0, len(m.holds))
	for id, h := range m.holds {
		if m.passivelyExpired(h) {
			delete(m.holds, id)
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HoldID < out[j].HoldID })
	return out, nil
}

// passivelyExpired mimics a store-side TTL: the record vanishes once
// retention has elapsed past the deadline.
func (m *Memory) passivelyExpired(h model.Hold) bool {
	return !m.now().Before(h.Deadline().Add(m.retention))
}

func sortTables(ts []model.Table) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].TableID < ts[j].TableID })
}
