package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrCodeEU/attendpass/pkg/recognition"
	"github.com/google/uuid"
)

// MemoryStore implements Store in process memory. It backs dry runs and tests.
type MemoryStore struct {
	mu          sync.Mutex
	identities  []Identity
	records     []AttendanceRecord
	unavailable bool
	now         func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// SetUnavailable makes every subsequent call fail with ErrStoreUnavailable.
func (m *MemoryStore) SetUnavailable(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = down
}

// SetClock overrides the enrollment timestamp source.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// LookupIdentities implements Store.
func (m *MemoryStore) LookupIdentities(ctx context.Context) ([]Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	out := make([]Identity, len(m.identities))
	copy(out, m.identities)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// InsertIdentity implements Store.
func (m *MemoryStore) InsertIdentity(ctx context.Context, name string, encoding recognition.Encoding) (Identity, error) {
	if !validIdentity(name, encoding) {
		return Identity{}, ErrInvalidIdentity
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return Identity{}, err
	}

	if len(m.identities) > 0 {
		if err := checkDim(m.identities[0].Encoding, encoding); err != nil {
			return Identity{}, err
		}
	}

	enc := make(recognition.Encoding, len(encoding))
	copy(enc, encoding)
	identity := Identity{
		ID:        uuid.NewString(),
		Name:      name,
		Encoding:  enc,
		CreatedAt: m.now(),
	}
	m.identities = append(m.identities, identity)
	return identity, nil
}

// GetIdentity implements Store.
func (m *MemoryStore) GetIdentity(ctx context.Context, id string) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return Identity{}, err
	}

	for _, identity := range m.identities {
		if identity.ID == id {
			return identity, nil
		}
	}
	return Identity{}, ErrIdentityNotFound
}

// Transact implements Store. Writes made by fn are discarded when it fails.
func (m *MemoryStore) Transact(ctx context.Context, fn func(tx AttendanceTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}

	tx := &memoryTx{store: m}
	if err := fn(tx); err != nil {
		return err
	}
	m.records = append(m.records, tx.pending...)
	return nil
}

// HasAttendance implements Store.
func (m *MemoryStore) HasAttendance(ctx context.Context, identityID string, at time.Time) (bool, error) {
	var found bool
	err := m.Transact(ctx, func(tx AttendanceTx) error {
		var err error
		found, err = tx.HasAttendance(identityID, DayKey(at))
		return err
	})
	return found, err
}

// InsertAttendance implements Store.
func (m *MemoryStore) InsertAttendance(ctx context.Context, identityID string, at time.Time) (AttendanceRecord, error) {
	var record AttendanceRecord
	err := m.Transact(ctx, func(tx AttendanceTx) error {
		var err error
		record, err = tx.InsertAttendance(identityID, at)
		return err
	})
	return record, err
}

// ListAttendance implements Store.
func (m *MemoryStore) ListAttendance(ctx context.Context, from, to time.Time) ([]AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	var out []AttendanceRecord
	for _, r := range m.records {
		if inRange(r.Day, from, to) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) check(ctx context.Context) error {
	if m.unavailable {
		return unavailable("memory store", ErrStoreUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return unavailable("memory store", err)
	}
	return nil
}

type memoryTx struct {
	store   *MemoryStore
	pending []AttendanceRecord
}

func (t *memoryTx) HasAttendance(identityID, day string) (bool, error) {
	for _, set := range [][]AttendanceRecord{t.store.records, t.pending} {
		for _, r := range set {
			if r.IdentityID == identityID && r.Day == day {
				return true, nil
			}
		}
	}
	return false, nil
}

func (t *memoryTx) InsertAttendance(identityID string, at time.Time) (AttendanceRecord, error) {
	day := DayKey(at)
	if exists, _ := t.HasAttendance(identityID, day); exists {
		return AttendanceRecord{}, ErrDuplicateAttendance
	}

	record := AttendanceRecord{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		Day:        day,
		Timestamp:  at,
		Status:     StatusPresent,
	}
	t.pending = append(t.pending, record)
	return record, nil
}
