package attendance

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/MrCodeEU/attendpass/pkg/storage"
)

// TimestampLayout renders export timestamps as DD-MM-YYYY HH:MM.
const TimestampLayout = "02-01-2006 15:04"

const unknownName = "unknown"

// Header is the export column order.
var Header = []string{"Sr No", "User ID", "Username", "Status", "Timestamp"}

// Row is one exported attendance record.
type Row struct {
	SrNo      int
	UserID    string
	Username  string
	Status    string
	Timestamp string
}

// Strings returns the row in Header order.
func (r Row) Strings() []string {
	return []string{strconv.Itoa(r.SrNo), r.UserID, r.Username, r.Status, r.Timestamp}
}

// ExportRows projects records into numbered rows. names maps identity id to
// display name.
func ExportRows(records []storage.AttendanceRecord, names map[string]string) []Row {
	rows := make([]Row, len(records))
	for i, r := range records {
		name, ok := names[r.IdentityID]
		if !ok || name == "" {
			name = unknownName
		}
		rows[i] = Row{
			SrNo:      i + 1,
			UserID:    r.IdentityID,
			Username:  name,
			Status:    r.Status,
			Timestamp: r.Timestamp.Format(TimestampLayout),
		}
	}
	return rows
}

// WriteCSV writes the header and rows as CSV.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row.Strings()); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row.SrNo, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Export loads the records of [from, to] and writes them as CSV. It returns
// the number of rows written.
func Export(ctx context.Context, store storage.Store, from, to time.Time, w io.Writer) (int, error) {
	records, err := store.ListAttendance(ctx, from, to)
	if err != nil {
		return 0, err
	}

	identities, err := store.LookupIdentities(ctx)
	if err != nil {
		return 0, err
	}
	names := make(map[string]string, len(identities))
	for _, identity := range identities {
		names[identity.ID] = identity.Name
	}

	rows := ExportRows(records, names)
	if err := WriteCSV(w, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}
