// Package attendance records verified subjects at most once per calendar day.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrCodeEU/attendpass/pkg/logging"
	"github.com/MrCodeEU/attendpass/pkg/metrics"
	"github.com/MrCodeEU/attendpass/pkg/storage"
)

// Result describes the outcome of a commit. AlreadyRecorded is an expected
// outcome, not an error.
type Result struct {
	Record          storage.AttendanceRecord
	AlreadyRecorded bool
}

// Committer performs the check-then-insert for attendance records.
type Committer struct {
	store   storage.Store
	metrics *metrics.Pipeline
	mu      sync.Mutex
}

// NewCommitter creates a committer over store. m may be nil.
func NewCommitter(store storage.Store, m *metrics.Pipeline) *Committer {
	return &Committer{store: store, metrics: m}
}

// Commit records identityID as present on the calendar day of at, unless a
// record for that day already exists. The existence check and the insert run
// in one store transaction; on error nothing is written.
func (c *Committer) Commit(ctx context.Context, identityID string, at time.Time) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	day := storage.DayKey(at)
	log := logging.WithFields(logging.Fields{"identity": identityID, "day": day})

	var result Result
	err := c.store.Transact(ctx, func(tx storage.AttendanceTx) error {
		exists, err := tx.HasAttendance(identityID, day)
		if err != nil {
			return err
		}
		if exists {
			result.AlreadyRecorded = true
			return nil
		}

		record, err := tx.InsertAttendance(identityID, at)
		if err != nil {
			return err
		}
		result.Record = record
		return nil
	})

	switch {
	case errors.Is(err, storage.ErrDuplicateAttendance):
		// another writer won the race for this day
		result = Result{AlreadyRecorded: true}
	case err != nil:
		c.metrics.RecordCommit(metrics.CommitError)
		log.WithError(err).Error("Attendance commit failed")
		return Result{}, fmt.Errorf("failed to commit attendance: %w", err)
	}

	if result.AlreadyRecorded {
		c.metrics.RecordCommit(metrics.CommitAlreadyRecorded)
		log.Info("Attendance already recorded today")
		return result, nil
	}

	c.metrics.RecordCommit(metrics.CommitRecorded)
	log.WithField("record", result.Record.ID).Info("Attendance recorded")
	return result, nil
}
