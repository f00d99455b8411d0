package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrCodeEU/attendpass/pkg/logging"
	"github.com/MrCodeEU/attendpass/pkg/recognition"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteStore implements Store on a SQLite database through gorm.
type SQLiteStore struct {
	db  *gorm.DB
	now func() time.Time
}

// identityRow is the persisted form of an Identity; Encoding holds JSON.
type identityRow struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Name      string    `gorm:"size:255;not null;index"`
	Encoding  []byte    `gorm:"type:blob;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (identityRow) TableName() string { return "identities" }

// gormWriter routes gorm's log output through logrus.
type gormWriter struct {
	entry *logrus.Entry
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.entry.Warnf(format, args...)
}

func newGormLogger() logger.Interface {
	return logger.New(
		gormWriter{entry: logging.Component("storage")},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// OpenSQLite opens (creating if needed) the database at path and migrates
// the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         newGormLogger(),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open SQLite database: %v", ErrStoreUnavailable, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	// SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&identityRow{}, &AttendanceRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: migration failed: %v", ErrStoreUnavailable, err)
	}

	logging.Debugf("Opened attendance database: %s", path)
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// LookupIdentities implements Store.
func (s *SQLiteStore) LookupIdentities(ctx context.Context) ([]Identity, error) {
	var rows []identityRow
	if err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, unavailable("lookup identities", err)
	}

	identities := make([]Identity, 0, len(rows))
	for _, row := range rows {
		identity, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		identities = append(identities, identity)
	}
	return identities, nil
}

// InsertIdentity implements Store.
func (s *SQLiteStore) InsertIdentity(ctx context.Context, name string, encoding recognition.Encoding) (Identity, error) {
	if !validIdentity(name, encoding) {
		return Identity{}, ErrInvalidIdentity
	}

	identity := Identity{
		ID:        uuid.NewString(),
		Name:      name,
		Encoding:  encoding,
		CreatedAt: s.now(),
	}
	row, err := toRow(identity)
	if err != nil {
		return Identity{}, unavailable("encode identity", err)
	}
	var dimErr error
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var first identityRow
		err := tx.Order("created_at ASC, id ASC").Limit(1).Find(&first).Error
		if err != nil {
			return err
		}
		if first.ID != "" {
			enrolled, err := fromRow(first)
			if err != nil {
				return err
			}
			if dimErr = checkDim(enrolled.Encoding, encoding); dimErr != nil {
				return dimErr
			}
		}
		return tx.Create(&row).Error
	})
	if dimErr != nil {
		return Identity{}, dimErr
	}
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			return Identity{}, err
		}
		return Identity{}, unavailable("insert identity", err)
	}

	logging.WithFields(logging.Fields{"identity": identity.ID, "name": name}).Info("Identity enrolled")
	return identity, nil
}

// GetIdentity implements Store.
func (s *SQLiteStore) GetIdentity(ctx context.Context, id string) (Identity, error) {
	var row identityRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Identity{}, ErrIdentityNotFound
	}
	if err != nil {
		return Identity{}, unavailable("get identity", err)
	}
	return fromRow(row)
}

func toRow(identity Identity) (identityRow, error) {
	data, err := json.Marshal(identity.Encoding)
	if err != nil {
		return identityRow{}, err
	}
	return identityRow{
		ID:        identity.ID,
		Name:      identity.Name,
		Encoding:  data,
		CreatedAt: identity.CreatedAt,
	}, nil
}

func fromRow(row identityRow) (Identity, error) {
	var encoding recognition.Encoding
	if err := json.Unmarshal(row.Encoding, &encoding); err != nil {
		return Identity{}, fmt.Errorf("%w: identity %s has a corrupt encoding: %v", ErrStoreUnavailable, row.ID, err)
	}
	return Identity{
		ID:        row.ID,
		Name:      row.Name,
		Encoding:  encoding,
		CreatedAt: row.CreatedAt,
	}, nil
}

// Transact implements Store.
func (s *SQLiteStore) Transact(ctx context.Context, fn func(tx AttendanceTx) error) error {
	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&sqliteTx{db: tx})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return unavailable("transaction", err)
	}
	return nil
}

// HasAttendance implements Store.
func (s *SQLiteStore) HasAttendance(ctx context.Context, identityID string, at time.Time) (bool, error) {
	return (&sqliteTx{db: s.db.WithContext(ctx)}).HasAttendance(identityID, DayKey(at))
}

// InsertAttendance implements Store.
func (s *SQLiteStore) InsertAttendance(ctx context.Context, identityID string, at time.Time) (AttendanceRecord, error) {
	return (&sqliteTx{db: s.db.WithContext(ctx)}).InsertAttendance(identityID, at)
}

// ListAttendance implements Store.
func (s *SQLiteStore) ListAttendance(ctx context.Context, from, to time.Time) ([]AttendanceRecord, error) {
	query := s.db.WithContext(ctx).Model(&AttendanceRecord{})
	if !from.IsZero() {
		query = query.Where("day >= ?", DayKey(from))
	}
	if !to.IsZero() {
		query = query.Where("day <= ?", DayKey(to))
	}

	var records []AttendanceRecord
	if err := query.Order("timestamp ASC, id ASC").Find(&records).Error; err != nil {
		return nil, unavailable("list attendance", err)
	}
	return records, nil
}

// Close closes the underlying connection.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type sqliteTx struct {
	db *gorm.DB
}

func (t *sqliteTx) HasAttendance(identityID, day string) (bool, error) {
	var count int64
	err := t.db.Model(&AttendanceRecord{}).
		Where("identity_id = ? AND day = ?", identityID, day).
		Count(&count).Error
	if err != nil {
		return false, unavailable("check attendance", err)
	}
	return count > 0, nil
}

func (t *sqliteTx) InsertAttendance(identityID string, at time.Time) (AttendanceRecord, error) {
	record := AttendanceRecord{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		Day:        DayKey(at),
		Timestamp:  at,
		Status:     StatusPresent,
	}
	if err := t.db.Create(&record).Error; err != nil {
		if isDuplicate(err) {
			return AttendanceRecord{}, ErrDuplicateAttendance
		}
		return AttendanceRecord{}, unavailable("insert attendance", err)
	}
	return record, nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
