package testing

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/dl-alexandre/gdfetch/internal/types"
)

// TestRequestContext creates a standard request context for testing
func TestRequestContext(fileIDs ...string) *types.RequestContext {
	return &types.RequestContext{
		Store:           "GoogleDrive",
		InvolvedFileIDs: fileIDs,
		RequestType:     types.RequestTypeDownload,
		TraceID:         "test-trace-id",
	}
}

// FakeFile is a file served by FakeDrive
type FakeFile struct {
	Name    string
	Content []byte
}

// FakeDrive serves the subset of the Drive v3 files.get endpoint used for
// metadata lookups and ranged alt=media downloads.
type FakeDrive struct {
	mu       sync.Mutex
	files    map[string]FakeFile
	requests []*http.Request
	// FailMedia makes the next n media requests answer 503
	FailMedia int
}

// NewFakeDrive creates a fake serving files keyed by file ID
func NewFakeDrive(files map[string]FakeFile) *FakeDrive {
	if files == nil {
		files = make(map[string]FakeFile)
	}
	return &FakeDrive{files: files}
}

// Requests returns a copy of the requests received so far
func (f *FakeDrive) Requests() []*http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*http.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// MediaRequests counts alt=media requests for fileID
func (f *FakeDrive) MediaRequests(fileID string) int {
	n := 0
	for _, r := range f.Requests() {
		if r.URL.Query().Get("alt") == "media" && strings.TrimPrefix(r.URL.Path, "/files/") == fileID {
			n++
		}
	}
	return n
}

func (f *FakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Clone(context.Background()))
	file, ok := f.files[strings.TrimPrefix(r.URL.Path, "/files/")]
	fail := false
	if r.URL.Query().Get("alt") == "media" && f.FailMedia > 0 {
		f.FailMedia--
		fail = true
	}
	f.mu.Unlock()

	id := strings.TrimPrefix(r.URL.Path, "/files/")
	if !ok {
		writeAPIError(w, http.StatusNotFound, "notFound", fmt.Sprintf("File not found: %s.", id))
		return
	}
	if fail {
		writeAPIError(w, http.StatusServiceUnavailable, "backendError", "Backend Error")
		return
	}

	if r.URL.Query().Get("alt") != "media" {
		meta := map[string]string{"id": id, "size": strconv.Itoa(len(file.Content))}
		if file.Name != "" {
			meta["name"] = file.Name
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(meta)
		return
	}

	size := int64(len(file.Content))
	start, end := parseRange(r.Header.Get("Range"), size)
	if start >= size {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	w.WriteHeader(http.StatusPartialContent)
	w.Write(file.Content[start : end+1])
}

func parseRange(v string, size int64) (int64, int64) {
	first, last, ok := strings.Cut(strings.TrimPrefix(v, "bytes="), "-")
	if !ok {
		return 0, size - 1
	}
	start, _ := strconv.ParseInt(first, 10, 64)
	end, err := strconv.ParseInt(last, 10, 64)
	if err != nil || end >= size {
		end = size - 1
	}
	return start, end
}

func writeAPIError(w http.ResponseWriter, code int, reason, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":%q,"errors":[{"reason":%q,"message":%q}]}}`, code, message, reason, message)
}

// NewFakeDriveServer starts an httptest server for f, closed on test cleanup
func NewFakeDriveServer(t *testing.T, f *FakeDrive) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return srv
}

// NewTokenServer starts an OAuth2 token endpoint that always issues token
func NewTokenServer(t *testing.T, token string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":%q,"token_type":"Bearer","expires_in":3600}`, token)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// WriteServiceAccountKey writes a service account key file with a fresh RSA key
// whose token_uri points at tokenURL, and returns its path.
func WriteServiceAccountKey(t *testing.T, dir, tokenURL string) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	return WriteKeyJSON(t, dir, map[string]string{
		"type":           "service_account",
		"project_id":     "gdfetch-test",
		"private_key_id": "test-key-id",
		"private_key":    string(pemKey),
		"client_email":   "fetcher@gdfetch-test.iam.gserviceaccount.com",
		"client_id":      "1234567890",
		"token_uri":      tokenURL,
	})
}

// WriteKeyJSON writes fields as google-api-key.json in dir and returns its path
func WriteKeyJSON(t *testing.T, dir string, fields map[string]string) string {
	t.Helper()
	data, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal key file: %v", err)
	}
	path := filepath.Join(dir, "google-api-key.json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	return path
}

// AssertNoError is a helper to fail the test if error is not nil
func AssertNoError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err != nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: %v", msgAndArgs[0], err)
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

// AssertError is a helper to fail the test if error is nil
func AssertError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err == nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: expected error but got nil", msgAndArgs[0])
		} else {
			t.Fatal("expected error but got nil")
		}
	}
}
