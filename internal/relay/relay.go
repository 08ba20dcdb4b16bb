// Package relay manages the relay-domain configuration file consumed by
// the mail gateway. Domains live in a plain text file of
// "relay-domain *.<domain>" lines; creation timestamps live in a JSON
// sidecar next to it.
package relay

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrInvalidDomain is returned for names that do not look like a domain
	ErrInvalidDomain = errors.New("invalid domain name")
	// ErrDomainExists is returned when adding or renaming onto an existing domain
	ErrDomainExists = errors.New("domain already exists")
	// ErrDomainNotFound is returned when the named domain is not configured
	ErrDomainNotFound = errors.New("domain not found")
)

// Labels of letters, digits and inner hyphens, TLD of 2-24 letters. The
// overall 253-character limit is checked separately since RE2 has no
// lookahead.
var domainPattern = regexp.MustCompile(`^(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,24}$`)

// linePattern matches one relay-domain entry and captures the domain
var linePattern = regexp.MustCompile(`(?i)^\s*relay-domain\s+\*\.([A-Za-z0-9.-]+)\s*$`)

// Domain is one configured relay domain
type Domain struct {
	Domain  string    `json:"domain"`
	AddedAt time.Time `json:"added_at"`
}

// Store reads and writes the relay-domain file and its metadata sidecar.
// All operations take the store lock; the file is rewritten atomically
// enough for a single process, which is all the original tooling assumed.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store over the given relay-domain file path. The
// file does not need to exist yet.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// ValidDomain reports whether the name is acceptable as a relay domain
func ValidDomain(domain string) bool {
	if len(domain) < 1 || len(domain) > 253 {
		return false
	}
	return domainPattern.MatchString(domain)
}

// Normalize lowercases and trims a domain name for comparisons
func Normalize(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}

// Add appends a relay-domain line for the domain and records its creation
// time in the sidecar. Duplicate domains return ErrDomainExists.
func (s *Store) Add(domain string) (*Domain, error) {
	domain = Normalize(domain)
	if !ValidDomain(domain) {
		return nil, ErrInvalidDomain
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readDomains()
	if err != nil {
		return nil, err
	}
	for _, d := range existing {
		if d == domain {
			return nil, ErrDomainExists
		}
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create relay directory: %w", err)
		}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open relay file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "relay-domain *.%s\n", domain); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to append relay domain: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close relay file: %w", err)
	}

	added := time.Now().UTC()
	meta, _ := s.loadMeta()
	meta[domain] = metaEntry{AddedAt: added.Format(time.RFC3339)}
	s.saveMeta(meta)

	return &Domain{Domain: domain, AddedAt: added}, nil
}

// List returns all configured domains, newest first. Domains missing from
// the sidecar sort last with a zero AddedAt.
func (s *Store) List() ([]Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.readDomains()
	if err != nil {
		return nil, err
	}
	meta, _ := s.loadMeta()

	domains := make([]Domain, 0, len(names))
	for _, name := range names {
		d := Domain{Domain: name}
		if entry, ok := meta[name]; ok {
			if t, err := time.Parse(time.RFC3339, entry.AddedAt); err == nil {
				d.AddedAt = t
			}
		}
		domains = append(domains, d)
	}

	sort.SliceStable(domains, func(i, j int) bool {
		if !domains[i].AddedAt.Equal(domains[j].AddedAt) {
			return domains[i].AddedAt.After(domains[j].AddedAt)
		}
		return domains[i].Domain < domains[j].Domain
	})

	return domains, nil
}

// Update renames a configured domain in place, keeping its line position
// and moving its creation timestamp to the new name.
func (s *Store) Update(oldDomain, newDomain string) (*Domain, error) {
	oldDomain = Normalize(oldDomain)
	newDomain = Normalize(newDomain)
	if !ValidDomain(oldDomain) || !ValidDomain(newDomain) {
		return nil, ErrInvalidDomain
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readLines()
	if err != nil {
		return nil, err
	}

	if oldDomain != newDomain {
		for _, line := range lines {
			if m := linePattern.FindStringSubmatch(line); m != nil && strings.ToLower(m[1]) == newDomain {
				return nil, ErrDomainExists
			}
		}
	}

	replaced := false
	for i, line := range lines {
		m := linePattern.FindStringSubmatch(line)
		if m == nil || strings.ToLower(m[1]) != oldDomain {
			continue
		}
		lines[i] = fmt.Sprintf("relay-domain *.%s", newDomain)
		replaced = true
		break
	}
	if !replaced {
		return nil, ErrDomainNotFound
	}

	if err := s.writeLines(lines); err != nil {
		return nil, err
	}

	meta, _ := s.loadMeta()
	entry, ok := meta[oldDomain]
	if !ok {
		entry = metaEntry{AddedAt: time.Now().UTC().Format(time.RFC3339)}
	}
	delete(meta, oldDomain)
	meta[newDomain] = entry
	s.saveMeta(meta)

	d := &Domain{Domain: newDomain}
	if t, err := time.Parse(time.RFC3339, entry.AddedAt); err == nil {
		d.AddedAt = t
	}
	return d, nil
}

// Delete removes the domain's line and sidecar entry
func (s *Store) Delete(domain string) error {
	domain = Normalize(domain)
	if !ValidDomain(domain) {
		return ErrInvalidDomain
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readLines()
	if err != nil {
		return err
	}

	kept := make([]string, 0, len(lines))
	removed := false
	for _, line := range lines {
		if m := linePattern.FindStringSubmatch(line); m != nil && strings.ToLower(m[1]) == domain {
			removed = true
			continue
		}
		kept = append(kept, line)
	}
	if !removed {
		return ErrDomainNotFound
	}

	if err := s.writeLines(kept); err != nil {
		return err
	}

	meta, _ := s.loadMeta()
	if _, ok := meta[domain]; ok {
		delete(meta, domain)
		s.saveMeta(meta)
	}

	return nil
}

// readDomains returns the configured domain names in file order
func (s *Store) readDomains() ([]string, error) {
	lines, err := s.readLines()
	if err != nil {
		return nil, err
	}

	var domains []string
	for _, line := range lines {
		if m := linePattern.FindStringSubmatch(line); m != nil {
			domains = append(domains, strings.ToLower(m[1]))
		}
	}
	return domains, nil
}

// readLines returns the raw file lines; a missing file reads as empty
func (s *Store) readLines() ([]string, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read relay file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read relay file: %w", err)
	}
	return lines, nil
}

func (s *Store) writeLines(lines []string) error {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(s.path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write relay file: %w", err)
	}
	return nil
}

type metaEntry struct {
	AddedAt string `json:"added_at"`
}

func (s *Store) metaPath() string {
	return s.path + ".meta.json"
}

// loadMeta reads the sidecar. A missing or corrupt sidecar reads as empty;
// timestamps are a convenience, not a source of truth.
func (s *Store) loadMeta() (map[string]metaEntry, error) {
	data, err := os.ReadFile(s.metaPath())
	if err != nil {
		return map[string]metaEntry{}, nil
	}

	meta := map[string]metaEntry{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return map[string]metaEntry{}, nil
	}
	return meta, nil
}

// saveMeta writes the sidecar. Failures here lose only timestamps, so the
// error is intentionally dropped by callers that already changed the
// domain file.
func (s *Store) saveMeta(meta map[string]metaEntry) {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(s.metaPath(), data, 0o644)
}
