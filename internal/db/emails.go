package db

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"
)

// NullTime is a custom type that handles both string and time.Time from SQLite
type NullTime struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner for NullTime
func (nt *NullTime) Scan(value interface{}) error {
	if value == nil {
		nt.Time, nt.Valid = time.Time{}, false
		return nil
	}

	switch v := value.(type) {
	case time.Time:
		nt.Time, nt.Valid = v, true
		return nil
	case string:
		// Try multiple time formats
		formats := []string{
			time.RFC3339,
			time.RFC3339Nano,
			// SQLite timestamp formats including Go's time.String() format
			"2006-01-02 15:04:05.999999999 -0700 -0700", // Go's time.String() format with duplicate timezone
			"2006-01-02 15:04:05 -0700 -0700",
			"2006-01-02 15:04:05.999999999 -0700 MST",
			"2006-01-02 15:04:05 -0700 MST",
			"2006-01-02 15:04:05.999999999 -0700",
			"2006-01-02 15:04:05 -0700",
			"2006-01-02 15:04:05.999999999",
			"2006-01-02 15:04:05",
			"2006-01-02T15:04:05Z",
			time.RFC1123Z,
			time.RFC1123,
		}

		var t time.Time
		var err error
		for _, format := range formats {
			t, err = time.Parse(format, v)
			if err == nil {
				nt.Time, nt.Valid = t, true
				return nil
			}
		}

		return fmt.Errorf("failed to parse time string %q: %w", v, err)
	default:
		return fmt.Errorf("unsupported Scan type for NullTime: %T", value)
	}
}

// Value implements driver.Valuer for NullTime
func (nt NullTime) Value() (driver.Value, error) {
	if !nt.Valid {
		return nil, nil
	}
	return nt.Time, nil
}

// Email is one summary row of the archive index. Body and attachment
// content is parsed from the source file on demand, never stored here.
type Email struct {
	ID              int64
	Filename        string // relative slash-separated path under the archive root
	Subject         string
	Sender          string
	Recipients      string // comma-joined display list
	Date            NullTime
	Size            int64
	HasAttachments  bool
	AttachmentCount int
	ParseOK         bool
	MTime           NullTime
	IndexedAt       NullTime
	UpdatedAt       NullTime
}

// GetDate returns the date as time.Time, or zero time if NULL
func (e *Email) GetDate() time.Time {
	if e.Date.Valid {
		return e.Date.Time
	}
	return time.Time{}
}

const emailColumns = `id, filename, subject, sender, recipients, date,
       size, has_attachments, attachment_count, parse_ok, mtime,
       indexed_at, updated_at`

func scanEmail(row interface{ Scan(...interface{}) error }) (*Email, error) {
	email := &Email{}
	err := row.Scan(
		&email.ID, &email.Filename, &email.Subject, &email.Sender, &email.Recipients, &email.Date,
		&email.Size, &email.HasAttachments, &email.AttachmentCount, &email.ParseOK, &email.MTime,
		&email.IndexedAt, &email.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return email, nil
}

const upsertEmailSQL = `
	INSERT INTO emails (
		filename, subject, sender, recipients, date,
		size, has_attachments, attachment_count, parse_ok, mtime
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(filename) DO UPDATE SET
		subject = excluded.subject,
		sender = excluded.sender,
		recipients = excluded.recipients,
		date = excluded.date,
		size = excluded.size,
		has_attachments = excluded.has_attachments,
		attachment_count = excluded.attachment_count,
		parse_ok = excluded.parse_ok,
		mtime = excluded.mtime,
		updated_at = CURRENT_TIMESTAMP
`

// UpsertEmail inserts or refreshes the summary row for one filename.
func (db *DB) UpsertEmail(email *Email) error {
	_, err := db.Exec(upsertEmailSQL,
		email.Filename, email.Subject, email.Sender, email.Recipients, email.Date,
		email.Size, email.HasAttachments, email.AttachmentCount, email.ParseOK, email.MTime,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert email %s: %w", email.Filename, err)
	}
	return nil
}

// UpsertEmailsBatch upserts multiple summary rows in a single transaction.
func (db *DB) UpsertEmailsBatch(emails []*Email) error {
	if len(emails) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(upsertEmailSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, email := range emails {
		_, err := stmt.Exec(
			email.Filename, email.Subject, email.Sender, email.Recipients, email.Date,
			email.Size, email.HasAttachments, email.AttachmentCount, email.ParseOK, email.MTime,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert email %s: %w", email.Filename, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetEmailByFilename retrieves one summary row, or nil when unindexed.
func (db *DB) GetEmailByFilename(filename string) (*Email, error) {
	email, err := scanEmail(db.QueryRow(
		"SELECT "+emailColumns+" FROM emails WHERE filename = ?", filename))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}
	return email, nil
}

// ListEmails retrieves summary rows in filename order with pagination.
func (db *DB) ListEmails(limit, offset int) ([]*Email, error) {
	rows, err := db.Query(
		"SELECT "+emailColumns+" FROM emails ORDER BY filename ASC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	defer rows.Close()

	var emails []*Email
	for rows.Next() {
		email, err := scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, email)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating emails: %w", err)
	}

	return emails, nil
}

// CountEmails returns the total number of indexed files
func (db *DB) CountEmails() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM emails").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count emails: %w", err)
	}
	return count, nil
}

// ListFilenames returns every indexed filename. Used by the indexer to
// prune rows whose source files disappeared.
func (db *DB) ListFilenames() ([]string, error) {
	rows, err := db.Query("SELECT filename FROM emails")
	if err != nil {
		return nil, fmt.Errorf("failed to list filenames: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan filename: %w", err)
		}
		names = append(names, name)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating filenames: %w", err)
	}

	return names, nil
}

// FileState is the change-detection fingerprint of an indexed file.
type FileState struct {
	Size    int64
	MTime   time.Time
	ParseOK bool
}

// FileStates returns the fingerprint of every indexed file keyed by
// filename, in one query. The indexer uses it to skip unchanged files.
func (db *DB) FileStates() (map[string]FileState, error) {
	rows, err := db.Query("SELECT filename, size, mtime, parse_ok FROM emails")
	if err != nil {
		return nil, fmt.Errorf("failed to query file states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]FileState)
	for rows.Next() {
		var (
			name    string
			size    int64
			mtime   NullTime
			parseOK bool
		)
		if err := rows.Scan(&name, &size, &mtime, &parseOK); err != nil {
			return nil, fmt.Errorf("failed to scan file state: %w", err)
		}
		states[name] = FileState{Size: size, MTime: mtime.Time, ParseOK: parseOK}
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating file states: %w", err)
	}

	return states, nil
}

// DeleteEmailsBatch removes summary rows by filename in a single
// transaction. The source files are NOT touched.
func (db *DB) DeleteEmailsBatch(filenames []string) error {
	if len(filenames) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("DELETE FROM emails WHERE filename = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, name := range filenames {
		if _, err := stmt.Exec(name); err != nil {
			return fmt.Errorf("failed to delete email %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Stats holds index-wide statistics
type Stats struct {
	TotalEmails     int
	Parsed          int
	ParseFailures   int
	WithAttachments int
	TotalSize       int64
	LastIndexed     time.Time
}

// GetStats returns current index statistics
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{}

	err := db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(parse_ok = 1), 0),
		       COALESCE(SUM(parse_ok = 0), 0),
		       COALESCE(SUM(has_attachments = 1), 0),
		       COALESCE(SUM(size), 0)
		FROM emails
	`).Scan(&stats.TotalEmails, &stats.Parsed, &stats.ParseFailures, &stats.WithAttachments, &stats.TotalSize)
	if err != nil {
		return nil, fmt.Errorf("failed to collect email stats: %w", err)
	}

	// Get last indexed time
	var lastIndexed sql.NullString
	err = db.QueryRow("SELECT MAX(indexed_at) FROM emails").Scan(&lastIndexed)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get last indexed time: %w", err)
	}

	if lastIndexed.Valid {
		// Try to parse the timestamp
		formats := []string{
			time.RFC3339,
			time.RFC3339Nano,
			"2006-01-02 15:04:05.999999999 -0700 -0700",
			"2006-01-02 15:04:05 -0700 -0700",
			"2006-01-02 15:04:05.999999999 -0700",
			"2006-01-02 15:04:05 -0700",
			"2006-01-02 15:04:05.999999999",
			"2006-01-02 15:04:05",
			"2006-01-02T15:04:05Z",
		}

		for _, format := range formats {
			if t, parseErr := time.Parse(format, lastIndexed.String); parseErr == nil {
				stats.LastIndexed = t
				break
			}
		}
		// If all formats fail, leave LastIndexed as zero time
	}

	return stats, nil
}

// TopSenders returns the most frequent senders with their message counts,
// excluding placeholder rows.
func (db *DB) TopSenders(limit int) (map[string]int, error) {
	rows, err := db.Query(`
		SELECT sender, COUNT(*) as email_count
		FROM emails
		WHERE sender != '' AND parse_ok = 1
		GROUP BY sender
		ORDER BY email_count DESC, sender ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top senders: %w", err)
	}
	defer rows.Close()

	senders := make(map[string]int)
	for rows.Next() {
		var sender string
		var count int
		if err := rows.Scan(&sender, &count); err != nil {
			return nil, fmt.Errorf("failed to scan sender: %w", err)
		}
		senders[sender] = count
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating senders: %w", err)
	}

	return senders, nil
}
