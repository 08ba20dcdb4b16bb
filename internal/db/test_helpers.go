package db

import (
	"fmt"
	"testing"
	"time"
)

// NewNullTime creates a valid NullTime from a time.Time
func NewNullTime(t time.Time) NullTime {
	return NullTime{Time: t, Valid: true}
}

// SetupTestDB creates an in-memory database with a throwaway archive root
func SetupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(":memory:", t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database
func CleanupTestDB(t *testing.T, db *DB) {
	t.Helper()

	if err := db.Close(); err != nil {
		t.Errorf("Failed to close test database: %v", err)
	}
}

// CreateTestEmail creates a summary row with default values
func CreateTestEmail(filename, subject, sender string) *Email {
	return &Email{
		Filename:        filename,
		Subject:         subject,
		Sender:          sender,
		Recipients:      "recipient@test.com",
		Date:            NullTime{Time: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), Valid: true},
		Size:            1024,
		HasAttachments:  false,
		AttachmentCount: 0,
		ParseOK:         true,
		MTime:           NullTime{Time: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), Valid: true},
	}
}

// InsertTestEmails upserts multiple summary rows
func InsertTestEmails(t *testing.T, db *DB, emails []*Email) {
	t.Helper()

	for i, email := range emails {
		if err := db.UpsertEmail(email); err != nil {
			t.Fatalf("Failed to insert test email %d: %v", i, err)
		}
	}
}

// CreateTestEmailWithDate creates a summary row with a specific date
func CreateTestEmailWithDate(filename, subject, sender string, date time.Time) *Email {
	email := CreateTestEmail(filename, subject, sender)
	email.Date = NullTime{Time: date, Valid: true}
	return email
}

// CreateTestEmailWithAttachments creates a summary row with attachments
func CreateTestEmailWithAttachments(filename, subject, sender string, attachmentCount int) *Email {
	email := CreateTestEmail(filename, subject, sender)
	email.HasAttachments = attachmentCount > 0
	email.AttachmentCount = attachmentCount
	return email
}

// CreateTestPlaceholder creates the summary row the indexer writes for a
// file that failed to parse.
func CreateTestPlaceholder(filename string) *Email {
	return &Email{
		Filename: filename,
		Subject:  fmt.Sprintf("[Parse Error] %s", filename),
		Sender:   "Unknown",
		Size:     512,
		ParseOK:  false,
		MTime:    NullTime{Time: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), Valid: true},
	}
}
