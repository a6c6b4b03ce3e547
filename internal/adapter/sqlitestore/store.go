// Package sqlitestore backs the recipient store with SQLite. The deployed
// system keeps profiles in a managed document store; the contract the
// pipeline needs from it is only a resumable full scan and a point update,
// which keyset pagination over a single table provides.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/couchcryptid/heat-advisory-service/internal/domain"
)

// Store implements domain.RecipientStore over a local SQLite database.
type Store struct {
	db    *sql.DB
	table string
}

// New opens (and if needed creates) the recipient database at path.
func New(path, table string) (*Store, error) {
	if table == "" {
		table = "recipients"
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, table: table}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		contact_id         TEXT PRIMARY KEY,
		latitude           REAL NOT NULL DEFAULT 0,
		longitude          REAL NOT NULL DEFAULT 0,
		language           TEXT NOT NULL DEFAULT 'en',
		maternal_status    TEXT NOT NULL DEFAULT 'unknown',
		medical_conditions TEXT NOT NULL DEFAULT 'none',
		status             TEXT NOT NULL DEFAULT '',
		facility_code      TEXT NOT NULL DEFAULT '',
		facility_name      TEXT NOT NULL DEFAULT '',
		phone_number       TEXT NOT NULL DEFAULT '',
		last_alert_date    TEXT NOT NULL DEFAULT ''
	)`, s.table)
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating %s table: %w", s.table, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ScanPage returns one page of profiles ordered by contact ID, starting
// after startToken. The returned NextToken is the last contact ID of a full
// page, or empty when the scan is exhausted.
func (s *Store) ScanPage(ctx context.Context, startToken string, limit int) (domain.RecipientPage, error) {
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`SELECT contact_id, latitude, longitude, language, maternal_status,
		medical_conditions, status, facility_code, facility_name, phone_number, last_alert_date
		FROM %s WHERE contact_id > ? ORDER BY contact_id LIMIT ?`, s.table)

	rows, err := s.db.QueryContext(ctx, query, startToken, limit)
	if err != nil {
		return domain.RecipientPage{}, fmt.Errorf("scanning recipients: %w", err)
	}
	defer rows.Close()

	var page domain.RecipientPage
	for rows.Next() {
		var p domain.RecipientProfile
		var status string
		if err := rows.Scan(
			&p.ContactID, &p.Latitude, &p.Longitude, &p.Language, &status,
			&p.MedicalConditions, &p.Status, &p.FacilityCode, &p.FacilityName,
			&p.PhoneNumber, &p.LastAlertDate,
		); err != nil {
			return domain.RecipientPage{}, fmt.Errorf("reading recipient row: %w", err)
		}
		p.MaternalStatus = domain.ParseMaternalStatus(status)
		page.Profiles = append(page.Profiles, p)
	}
	if err := rows.Err(); err != nil {
		return domain.RecipientPage{}, fmt.Errorf("scanning recipients: %w", err)
	}

	if len(page.Profiles) == limit {
		page.NextToken = page.Profiles[len(page.Profiles)-1].ContactID
	}
	return page, nil
}

// MarkAlerted stamps a recipient's last alert date.
func (s *Store) MarkAlerted(ctx context.Context, contactID, date string) error {
	query := fmt.Sprintf(`UPDATE %s SET last_alert_date = ? WHERE contact_id = ?`, s.table)
	res, err := s.db.ExecContext(ctx, query, date, contactID)
	if err != nil {
		return fmt.Errorf("marking recipient alerted: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("recipient %s not found", contactID)
	}
	return nil
}

// Put inserts or replaces a profile. Used by the bulk loader and tests.
func (s *Store) Put(ctx context.Context, p domain.RecipientProfile) error {
	query := fmt.Sprintf(`INSERT INTO %s (contact_id, latitude, longitude, language,
		maternal_status, medical_conditions, status, facility_code, facility_name,
		phone_number, last_alert_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(contact_id) DO UPDATE SET
		latitude = excluded.latitude,
		longitude = excluded.longitude,
		language = excluded.language,
		maternal_status = excluded.maternal_status,
		medical_conditions = excluded.medical_conditions,
		status = excluded.status,
		facility_code = excluded.facility_code,
		facility_name = excluded.facility_name,
		phone_number = excluded.phone_number,
		last_alert_date = excluded.last_alert_date`, s.table)

	_, err := s.db.ExecContext(ctx, query,
		p.ContactID, p.Latitude, p.Longitude, domain.NormalizeLanguage(p.Language),
		string(p.MaternalStatus), p.MedicalConditions, p.Status, p.FacilityCode,
		p.FacilityName, p.PhoneNumber, p.LastAlertDate,
	)
	if err != nil {
		return fmt.Errorf("storing recipient %s: %w", p.ContactID, err)
	}
	return nil
}

// Count returns the number of stored profiles. Used by the bulk loader's
// summary output.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting recipients: %w", err)
	}
	return n, nil
}
