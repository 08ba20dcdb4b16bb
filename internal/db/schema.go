package db

// Summary-index schema. Each row is the listing projection of one archive
// file, keyed by its relative filename; body and attachment content is
// parsed from the source file on demand. parse_ok = 0 marks placeholder
// rows for files no parse path could read.
const schema = `
-- Email summaries (metadata only)
CREATE TABLE IF NOT EXISTS emails (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    filename TEXT UNIQUE NOT NULL,
    subject TEXT NOT NULL DEFAULT '',
    sender TEXT NOT NULL DEFAULT '',
    recipients TEXT NOT NULL DEFAULT '',
    date DATETIME,
    size INTEGER NOT NULL DEFAULT 0,
    has_attachments BOOLEAN NOT NULL DEFAULT 0,
    attachment_count INTEGER NOT NULL DEFAULT 0,
    parse_ok BOOLEAN NOT NULL DEFAULT 1,
    mtime DATETIME,
    indexed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Full-text search virtual table. Filename is indexed so placeholder rows
-- stay findable by name.
CREATE VIRTUAL TABLE IF NOT EXISTS emails_fts USING fts5(
    filename,
    subject,
    sender,
    recipients,
    content='emails',
    content_rowid='id'
);

-- Triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS emails_ai AFTER INSERT ON emails BEGIN
    INSERT INTO emails_fts(rowid, filename, subject, sender, recipients)
    VALUES (new.id, new.filename, new.subject, new.sender, new.recipients);
END;

-- External-content FTS5 tables cannot be updated or deleted from directly;
-- old rows are removed with the 'delete' command insert instead.
CREATE TRIGGER IF NOT EXISTS emails_ad AFTER DELETE ON emails BEGIN
    INSERT INTO emails_fts(emails_fts, rowid, filename, subject, sender, recipients)
    VALUES ('delete', old.id, old.filename, old.subject, old.sender, old.recipients);
END;

CREATE TRIGGER IF NOT EXISTS emails_au AFTER UPDATE ON emails BEGIN
    INSERT INTO emails_fts(emails_fts, rowid, filename, subject, sender, recipients)
    VALUES ('delete', old.id, old.filename, old.subject, old.sender, old.recipients);
    INSERT INTO emails_fts(rowid, filename, subject, sender, recipients)
    VALUES (new.id, new.filename, new.subject, new.sender, new.recipients);
END;

-- Settings table (index bookkeeping, preferences)
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes for performance
CREATE INDEX IF NOT EXISTS idx_emails_date ON emails(date DESC);
CREATE INDEX IF NOT EXISTS idx_emails_sender ON emails(sender);
CREATE INDEX IF NOT EXISTS idx_emails_parse_ok ON emails(parse_ok);
`
