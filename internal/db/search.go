package db

import (
	"fmt"
	"strings"
)

// SearchOptions narrows a listing of summary rows. Query runs against the
// full-text index; the remaining fields are column filters. All filters
// combine with AND.
type SearchOptions struct {
	Query    string
	Sender   string
	Subject  string
	DateFrom string // inclusive, ISO date or datetime
	DateTo   string // inclusive
	Limit    int
	Offset   int
}

const searchColumns = `e.id, e.filename, e.subject, e.sender, e.recipients, e.date,
       e.size, e.has_attachments, e.attachment_count, e.parse_ok, e.mtime,
       e.indexed_at, e.updated_at`

// buildMatchQuery converts free text into an FTS5 MATCH expression.
// Each whitespace-separated term becomes a quoted prefix query, so user
// input cannot inject FTS operators like NEAR or column filters.
func buildMatchQuery(query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return ""
	}

	parts := make([]string, 0, len(terms))
	for _, term := range terms {
		escaped := strings.ReplaceAll(term, `"`, `""`)
		parts = append(parts, `"`+escaped+`"*`)
	}
	return strings.Join(parts, " ")
}

// SearchEmails returns one page of matching summary rows plus the total
// match count. Free-text matches come back best-first; pure filter
// queries come back in filename order like ListEmails.
func (db *DB) SearchEmails(opts SearchOptions) ([]*Email, int, error) {
	var (
		conditions []string
		args       []interface{}
		from       = "FROM emails e"
		orderBy    = "ORDER BY e.filename ASC"
	)

	if match := buildMatchQuery(opts.Query); match != "" {
		from = "FROM emails e JOIN emails_fts ON emails_fts.rowid = e.id"
		conditions = append(conditions, "emails_fts MATCH ?")
		args = append(args, match)
		orderBy = "ORDER BY rank, e.filename ASC"
	}

	if opts.Sender != "" {
		conditions = append(conditions, "e.sender LIKE ?")
		args = append(args, "%"+opts.Sender+"%")
	}

	if opts.Subject != "" {
		conditions = append(conditions, "e.subject LIKE ?")
		args = append(args, "%"+opts.Subject+"%")
	}

	if opts.DateFrom != "" {
		conditions = append(conditions, "e.date >= ?")
		args = append(args, opts.DateFrom)
	}

	if opts.DateTo != "" {
		conditions = append(conditions, "e.date <= ?")
		args = append(args, opts.DateTo)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	// Count first so pagination metadata covers the full result set.
	var total int
	countSQL := "SELECT COUNT(*) " + from + where
	if err := db.QueryRow(countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count search results: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	pageSQL := "SELECT " + searchColumns + " " + from + where + " " + orderBy + " LIMIT ? OFFSET ?"
	rows, err := db.Query(pageSQL, append(args, limit, opts.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search emails: %w", err)
	}
	defer rows.Close()

	var emails []*Email
	for rows.Next() {
		email, err := scanEmail(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan search result: %w", err)
		}
		emails = append(emails, email)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating search results: %w", err)
	}

	return emails, total, nil
}
