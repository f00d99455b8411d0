package attendance

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrCodeEU/attendpass/pkg/metrics"
	"github.com/MrCodeEU/attendpass/pkg/recognition"
	"github.com/MrCodeEU/attendpass/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommit_Idempotent(t *testing.T) {
	ctx := context.Background()
	t1 := time.Date(2024, 9, 2, 8, 55, 0, 0, time.Local)
	t2 := time.Date(2024, 9, 2, 17, 10, 0, 0, time.Local)

	for name, open := range map[string]func(t *testing.T) storage.Store{
		"memory": func(t *testing.T) storage.Store { return storage.NewMemoryStore() },
		"sqlite": func(t *testing.T) storage.Store {
			s, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "attendance.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	} {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			c := NewCommitter(store, nil)

			first, err := c.Commit(ctx, "id-1", t1)
			require.NoError(t, err)
			assert.False(t, first.AlreadyRecorded)
			assert.Equal(t, storage.StatusPresent, first.Record.Status)
			assert.Equal(t, "id-1", first.Record.IdentityID)

			second, err := c.Commit(ctx, "id-1", t2)
			require.NoError(t, err)
			assert.True(t, second.AlreadyRecorded)

			records, err := store.ListAttendance(ctx, t1, t1)
			require.NoError(t, err)
			assert.Len(t, records, 1)

			next, err := c.Commit(ctx, "id-1", t1.AddDate(0, 0, 1))
			require.NoError(t, err)
			assert.False(t, next.AlreadyRecorded)
		})
	}
}

func TestCommit_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	c := NewCommitter(store, nil)
	at := time.Date(2024, 9, 2, 9, 0, 0, 0, time.Local)

	var wg sync.WaitGroup
	results := make([]Result, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := c.Commit(ctx, "id-1", at.Add(time.Duration(i)*time.Second))
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	recorded := 0
	for _, r := range results {
		if !r.AlreadyRecorded {
			recorded++
		}
	}
	assert.Equal(t, 1, recorded)
}

// racingStore simulates another writer inserting between check and insert.
type racingStore struct {
	*storage.MemoryStore
}

func (r racingStore) Transact(ctx context.Context, fn func(tx storage.AttendanceTx) error) error {
	return fn(racingTx{})
}

type racingTx struct{}

func (racingTx) HasAttendance(string, string) (bool, error) { return false, nil }
func (racingTx) InsertAttendance(string, time.Time) (storage.AttendanceRecord, error) {
	return storage.AttendanceRecord{}, storage.ErrDuplicateAttendance
}

func TestCommit_UniqueViolationIsAlreadyRecorded(t *testing.T) {
	c := NewCommitter(racingStore{storage.NewMemoryStore()}, nil)
	r, err := c.Commit(context.Background(), "id-1", time.Now())
	require.NoError(t, err)
	assert.True(t, r.AlreadyRecorded)
}

func TestCommit_StoreUnavailable(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	reg := prometheus.NewRegistry()
	m, err := metrics.NewPipeline(reg)
	require.NoError(t, err)
	c := NewCommitter(store, m)

	store.SetUnavailable(true)
	_, err = c.Commit(ctx, "id-1", time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrStoreUnavailable))

	store.SetUnavailable(false)
	records, err := store.ListAttendance(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, records, "nothing may be written on failure")

	_, err = c.Commit(ctx, "id-1", time.Now())
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "attendpass_attendance_commits_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestExportRows(t *testing.T) {
	at := time.Date(2024, 3, 7, 14, 5, 0, 0, time.UTC)
	records := []storage.AttendanceRecord{
		{ID: "r1", IdentityID: "id-1", Day: "2024-03-07", Timestamp: at, Status: storage.StatusPresent},
		{ID: "r2", IdentityID: "id-9", Day: "2024-03-07", Timestamp: at.Add(time.Minute), Status: storage.StatusPresent},
	}

	rows := ExportRows(records, map[string]string{"id-1": "Alice"})
	require.Len(t, rows, 2)
	assert.Equal(t, Row{SrNo: 1, UserID: "id-1", Username: "Alice", Status: "Present", Timestamp: "07-03-2024 14:05"}, rows[0])
	assert.Equal(t, "unknown", rows[1].Username)
	assert.Equal(t, 2, rows[1].SrNo)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	rows := []Row{{SrNo: 1, UserID: "id-1", Username: "Doe, Jane", Status: "Present", Timestamp: "07-03-2024 14:05"}}
	require.NoError(t, WriteCSV(&buf, rows))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Sr No,User ID,Username,Status,Timestamp", lines[0])
	assert.Equal(t, `1,id-1,"Doe, Jane",Present,07-03-2024 14:05`, lines[1])
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	alice, err := store.InsertIdentity(ctx, "Alice", recognition.Encoding{1})
	require.NoError(t, err)

	day := time.Date(2024, 3, 7, 9, 0, 0, 0, time.Local)
	_, err = store.InsertAttendance(ctx, alice.ID, day)
	require.NoError(t, err)
	_, err = store.InsertAttendance(ctx, alice.ID, day.AddDate(0, 0, 1))
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := Export(ctx, store, day, day, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, buf.String(), "Alice")
	assert.Contains(t, buf.String(), "07-03-2024 09:00")

	store.SetUnavailable(true)
	_, err = Export(ctx, store, day, day, &buf)
	assert.ErrorIs(t, err, storage.ErrStoreUnavailable)
}
