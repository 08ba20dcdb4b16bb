package handlers

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avalda/msgview/internal/auth"
	"github.com/avalda/msgview/internal/config"
	"github.com/avalda/msgview/internal/db"
	"github.com/avalda/msgview/internal/indexer"
	"github.com/avalda/msgview/internal/metrics"
	"github.com/avalda/msgview/internal/relay"
)

const plainEmail = `From: alice@example.com
To: bob@example.com
Subject: Project Update
Date: Mon, 3 Jun 2024 10:00:00 +0000
Content-Type: text/plain; charset=utf-8

The migration finished overnight without incident.
`

const attachmentEmail = `From: carol@example.com
To: dave@example.com
Subject: Invoice Attached
Date: Tue, 4 Jun 2024 09:30:00 +0000
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="frontier"

--frontier
Content-Type: text/plain; charset=utf-8

Invoice for May is attached.
--frontier
Content-Type: text/plain; name="invoice.txt"
Content-Disposition: attachment; filename="invoice.txt"
Content-Transfer-Encoding: base64

SW52b2ljZSB0b3RhbDogMTIzLjQ1IEVVUg==
--frontier--
`

const htmlEmail = `From: eve@example.com
To: frank@example.com
Subject: Newsletter
Date: Wed, 5 Jun 2024 08:00:00 +0000
Content-Type: text/html; charset=utf-8

<html><body><p>Hello</p><script>alert('xss')</script></body></html>
`

// testServer bundles the handlers with their backing stores
type testServer struct {
	handlers *Handlers
	router   http.Handler
	db       *db.DB
	archive  string
}

// setupTestServer builds a full API over a temp archive. The given files
// are written and indexed before the router is assembled.
func setupTestServer(t *testing.T, files map[string]string) *testServer {
	t.Helper()

	archive := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(archive, name), []byte(content), 0o644))
	}

	database, err := db.Open(":memory:", archive)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	idx := indexer.NewIndexer(database, archive, zap.NewNop()).WithConcurrency(1)
	_, err = idx.IndexAll()
	require.NoError(t, err)

	cfg := &config.Config{
		EmailsPath:      archive,
		DefaultPageSize: 20,
		MaxPageSize:     100,
	}
	authSvc := auth.NewService("test-secret-key-with-enough-length", time.Hour, []auth.Principal{
		{Username: "admin", Password: "admin-pass", Role: auth.RoleAdmin},
		{Username: "user", Password: "user-pass", Role: auth.RoleUser},
	})
	relayStore := relay.NewStore(filepath.Join(t.TempDir(), "relay-domains.conf"))

	h := New(database, cfg, authSvc, relayStore, idx, metrics.New(), zap.NewNop())

	return &testServer{
		handlers: h,
		router:   h.Router(),
		db:       database,
		archive:  archive,
	}
}

// request performs one request against the router with an optional token
func (ts *testServer) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

// login obtains an access token through the login endpoint
func (ts *testServer) login(t *testing.T, username, password string) string {
	t.Helper()

	w := ts.request(t, "POST", "/api/auth/login", "", loginRequest{
		Username: username,
		Password: password,
	})
	require.Equal(t, http.StatusOK, w.Code, "login should succeed: %s", w.Body.String())

	var resp loginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

// Test that email routes reject missing and garbage tokens
func TestEmailRoutesRequireAuthentication(t *testing.T) {
	ts := setupTestServer(t, nil)

	w := ts.request(t, "GET", "/api/emails/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.request(t, "GET", "/api/emails/", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// Test login and identity round trip
func TestLoginAndMe(t *testing.T) {
	ts := setupTestServer(t, nil)

	token := ts.login(t, "admin", "admin-pass")

	w := ts.request(t, "GET", "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var me map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "admin", me["username"])
	assert.Equal(t, "admin", me["role"])
}

// Test that wrong credentials are rejected uniformly
func TestLoginRejectsBadCredentials(t *testing.T) {
	ts := setupTestServer(t, nil)

	w := ts.request(t, "POST", "/api/auth/login", "", loginRequest{Username: "admin", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.request(t, "POST", "/api/auth/login", "", loginRequest{Username: "nobody", Password: "admin-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// Test listing with pagination metadata
func TestListEmailsPagination(t *testing.T) {
	ts := setupTestServer(t, map[string]string{
		"a-first.eml":  plainEmail,
		"b-second.eml": plainEmail,
		"c-third.eml":  plainEmail,
	})
	token := ts.login(t, "user", "user-pass")

	w := ts.request(t, "GET", "/api/emails/?page=1&page_size=2", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.TotalCount)
	assert.Equal(t, 2, resp.TotalPages)
	require.Len(t, resp.Emails, 2)
	assert.Equal(t, "a-first.eml", resp.Emails[0].Filename, "listing must be filename ordered")

	w = ts.request(t, "GET", "/api/emails/?page=2&page_size=2", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Emails, 1)
	assert.Equal(t, "c-third.eml", resp.Emails[0].Filename)
}

// Test the on-demand detail endpoint
func TestEmailDetail(t *testing.T) {
	ts := setupTestServer(t, map[string]string{"update.eml": plainEmail})
	token := ts.login(t, "user", "user-pass")

	w := ts.request(t, "GET", "/api/emails/update.eml", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp detailResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "update.eml", resp.Filename)
	assert.Equal(t, "Project Update", resp.Subject)
	assert.Equal(t, "alice@example.com", resp.Sender)
	assert.Equal(t, []string{"bob@example.com"}, resp.Recipients)
	assert.Contains(t, resp.Body, "migration finished overnight")
	assert.False(t, resp.ParseError)
	require.NotNil(t, resp.Date)
}

// Test that unparsable files get a visible placeholder detail
func TestEmailDetailPlaceholder(t *testing.T) {
	ts := setupTestServer(t, map[string]string{"broken.msg": "this is not an email in any format"})
	token := ts.login(t, "user", "user-pass")

	w := ts.request(t, "GET", "/api/emails/broken.msg", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp detailResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.ParseError)
	assert.Equal(t, "[Parse Error] broken.msg", resp.Subject)
	assert.Equal(t, "Unknown", resp.Sender)
	assert.Greater(t, resp.Size, int64(0))
}

// Test detail for a file that does not exist
func TestEmailDetailNotFound(t *testing.T) {
	ts := setupTestServer(t, nil)
	token := ts.login(t, "user", "user-pass")

	w := ts.request(t, "GET", "/api/emails/absent.msg", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// Test structured search over the index
func TestSearchEmails(t *testing.T) {
	ts := setupTestServer(t, map[string]string{
		"update.eml":  plainEmail,
		"invoice.eml": attachmentEmail,
	})
	token := ts.login(t, "user", "user-pass")

	w := ts.request(t, "POST", "/api/emails/search", token, searchRequest{Query: "invoice"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.TotalCount)
	assert.Equal(t, "invoice.eml", resp.Emails[0].Filename)

	w = ts.request(t, "POST", "/api/emails/search", token, searchRequest{Sender: "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.TotalCount)
	assert.Equal(t, "update.eml", resp.Emails[0].Filename)
}

// Test attachment download and the not-found case
func TestDownloadAttachment(t *testing.T) {
	ts := setupTestServer(t, map[string]string{"invoice.eml": attachmentEmail})
	token := ts.login(t, "user", "user-pass")

	w := ts.request(t, "GET", "/api/emails/invoice.eml/attachments/invoice.txt", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Invoice total: 123.45 EUR", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "invoice.txt")

	w = ts.request(t, "GET", "/api/emails/invoice.eml/attachments/missing.pdf", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// Test that the HTML preview strips active content
func TestHTMLPreviewSanitized(t *testing.T) {
	ts := setupTestServer(t, map[string]string{"news.eml": htmlEmail})
	token := ts.login(t, "user", "user-pass")

	w := ts.request(t, "GET", "/api/emails/news.eml/html", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "<p>Hello</p>")
	assert.NotContains(t, body, "<script>")
	assert.NotContains(t, body, "alert")
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
}

// Test that plain-only messages preview as escaped preformatted text
func TestHTMLPreviewPlainFallback(t *testing.T) {
	ts := setupTestServer(t, map[string]string{"update.eml": plainEmail})
	token := ts.login(t, "user", "user-pass")

	w := ts.request(t, "GET", "/api/emails/update.eml/html", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<pre>")
	assert.Contains(t, w.Body.String(), "migration finished overnight")
}

// Test the original-format download path that bypasses parsing
func TestDownloadOriginal(t *testing.T) {
	ts := setupTestServer(t, map[string]string{"update.eml": plainEmail})
	token := ts.login(t, "user", "user-pass")

	w := ts.request(t, "POST", "/api/emails/download", token, downloadRequest{
		Filenames: []string{"update.eml", "absent.msg"},
		Format:    "original",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "update.eml", zr.File[0].Name)

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	defer rc.Close()
	var out bytes.Buffer
	_, err = out.ReadFrom(rc)
	require.NoError(t, err)
	assert.Equal(t, plainEmail, out.String(), "original download must be byte-identical")
}

// Test a single-file JSON export
func TestDownloadJSONSingle(t *testing.T) {
	ts := setupTestServer(t, map[string]string{"update.eml": plainEmail})
	token := ts.login(t, "user", "user-pass")

	w := ts.request(t, "POST", "/api/emails/download", token, downloadRequest{
		Filenames: []string{"update.eml"},
		Format:    "json",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, float64(1), doc["total_count"])
}

// Test that multiple files export as a zip of per-email entries
func TestDownloadTextMultipleAsZip(t *testing.T) {
	ts := setupTestServer(t, map[string]string{
		"update.eml":  plainEmail,
		"invoice.eml": attachmentEmail,
	})
	token := ts.login(t, "user", "user-pass")

	w := ts.request(t, "POST", "/api/emails/download", token, downloadRequest{
		Filenames: []string{"update.eml", "invoice.eml"},
		Format:    "text",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	names := []string{zr.File[0].Name, zr.File[1].Name}
	assert.ElementsMatch(t, []string{"update.txt", "invoice.txt"}, names)
}

// Test download input validation
func TestDownloadValidation(t *testing.T) {
	ts := setupTestServer(t, nil)
	token := ts.login(t, "user", "user-pass")

	w := ts.request(t, "POST", "/api/emails/download", token, downloadRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.request(t, "POST", "/api/emails/download", token, downloadRequest{
		Filenames: []string{"a.eml"},
		Format:    "xml",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.request(t, "POST", "/api/emails/download", token, downloadRequest{
		Filenames: []string{"absent.msg"},
		Format:    "json",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// Test the stats endpoint
func TestEmailStats(t *testing.T) {
	ts := setupTestServer(t, map[string]string{
		"update.eml":  plainEmail,
		"invoice.eml": attachmentEmail,
		"broken.msg":  "garbage",
	})
	token := ts.login(t, "user", "user-pass")

	w := ts.request(t, "GET", "/api/emails/stats/summary", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp statsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.TotalEmails)
	assert.Equal(t, 2, resp.Parsed)
	assert.Equal(t, 1, resp.ParseFailures)
	assert.Equal(t, 1, resp.EmailsWithAttachments)
	assert.Equal(t, ts.archive, resp.EmailFolder)
}

// Test that admin routes reject the user role
func TestAdminRequiresAdminRole(t *testing.T) {
	ts := setupTestServer(t, nil)
	userToken := ts.login(t, "user", "user-pass")

	w := ts.request(t, "GET", "/api/admin/relay-domains", userToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.request(t, "GET", "/api/admin/relay-domains", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// Test the relay-domain CRUD cycle over HTTP
func TestAdminRelayDomainCRUD(t *testing.T) {
	ts := setupTestServer(t, nil)
	token := ts.login(t, "admin", "admin-pass")

	w := ts.request(t, "POST", "/api/admin/relay-domains", token, addDomainRequest{Domain: "Example.COM"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.request(t, "POST", "/api/admin/relay-domains", token, addDomainRequest{Domain: "example.com"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.request(t, "POST", "/api/admin/relay-domains", token, addDomainRequest{Domain: "not valid"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.request(t, "GET", "/api/admin/relay-domains", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listing map[string][]domainResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	require.Len(t, listing["domains"], 1)
	assert.Equal(t, "example.com", listing["domains"][0].Domain)

	w = ts.request(t, "PUT", "/api/admin/relay-domains/example.com", token, updateDomainRequest{NewDomain: "example.org"})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.request(t, "DELETE", "/api/admin/relay-domains/example.org", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.request(t, "DELETE", "/api/admin/relay-domains/example.org", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// Test the reindex endpoint picks up files added after startup
func TestReindexEndpoint(t *testing.T) {
	ts := setupTestServer(t, map[string]string{"update.eml": plainEmail})
	token := ts.login(t, "admin", "admin-pass")

	require.NoError(t, os.WriteFile(filepath.Join(ts.archive, "late.eml"), []byte(plainEmail), 0o644))

	w := ts.request(t, "POST", "/api/admin/reindex", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var counts map[string]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &counts))
	assert.Equal(t, 2, counts["total_found"])
	assert.Equal(t, 1, counts["indexed"])
	assert.Equal(t, 1, counts["skipped"])

	count, err := ts.db.CountEmails()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// Test the unauthenticated health endpoint
func TestHealth(t *testing.T) {
	ts := setupTestServer(t, nil)

	w := ts.request(t, "GET", "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

// Test the metrics exposition endpoint is reachable without auth
func TestMetricsEndpoint(t *testing.T) {
	ts := setupTestServer(t, nil)

	w := ts.request(t, "GET", "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.request(t, "GET", "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "msgview_http_requests_total")
}
