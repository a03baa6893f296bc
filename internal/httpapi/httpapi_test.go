package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemetry-server/internal/config"
)

type observedRequest struct {
	method string
	status int
}

type fakeObserver struct {
	mu   sync.Mutex
	seen []observedRequest
}

func (o *fakeObserver) ObserveRequest(method string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, observedRequest{method: method, status: status})
}

func writeBundle(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"index.html":    "<!doctype html><title>painel</title>",
		"app.js":        "console.log('app')",
		"css/style.css": "body{}",
	}
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return dir
}

func newTestServer(t *testing.T, staticDir string, observer requestObserver) *httptest.Server {
	t.Helper()

	mux := NewMux(staticDir, time.Now().Add(-2*time.Second), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "metrics")
	}))
	mux.HandleFunc("GET /api/panic", func(http.ResponseWriter, *http.Request) { panic("boom") })

	cfg := config.Config{CORSAllowedOrigins: []string{"http://dashboard.local"}}
	ts := httptest.NewServer(NewHandler(cfg, mux, observer))
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, client *http.Client, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := client.Do(req)
	require.NoError(t, err, "%s %s", req.Method, req.URL)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func mustGet(t *testing.T, client *http.Client, url string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	return do(t, client, req)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, t.TempDir(), nil)

	resp, body := mustGet(t, ts.Client(), ts.URL+"/api/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got healthResponse
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, "ok", got.Status)
	assert.GreaterOrEqual(t, got.Uptime, 2.0)
}

func TestHealth_UptimeFromClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h := &healthcheckerImpl{startedAt: start, now: func() time.Time { return start.Add(1500 * time.Millisecond) }}

	rec := httptest.NewRecorder()
	h.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.JSONEq(t, `{"status":"ok","uptime":1.5}`, rec.Body.String())
}

func TestStatic_ServesFiles(t *testing.T) {
	ts := newTestServer(t, writeBundle(t), nil)

	tests := []struct {
		path     string
		contains string
	}{
		{path: "/", contains: "painel"},
		{path: "/app.js", contains: "console.log"},
		{path: "/css/style.css", contains: "body{}"},
		{path: "/index.html", contains: "painel"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, body := mustGet(t, ts.Client(), ts.URL+tt.path)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, body, tt.contains)
		})
	}
}

func TestStatic_FallsBackToIndex(t *testing.T) {
	ts := newTestServer(t, writeBundle(t), nil)

	for _, p := range []string{"/dashboard", "/sensors/s1", "/css", "/missing.js"} {
		resp, body := mustGet(t, ts.Client(), ts.URL+p)
		assert.Equal(t, http.StatusOK, resp.StatusCode, p)
		assert.Contains(t, body, "painel", p)
	}
}

func TestStatic_CannotEscapeRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "public")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("index"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("secret"), 0o644))

	h := newStaticHandler(root)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.URL.Path = "/../secret.txt"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.NotContains(t, rec.Body.String(), "secret", "served a file outside the root")
}

func TestStatic_UnknownAPIPathIsJSON404(t *testing.T) {
	ts := newTestServer(t, writeBundle(t), nil)

	resp, body := mustGet(t, ts.Client(), ts.URL+"/api/unknown")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Not found"}`, body)
}

func TestStatic_MissingIndexIs404(t *testing.T) {
	ts := newTestServer(t, t.TempDir(), nil)

	resp, _ := mustGet(t, ts.Client(), ts.URL+"/anything")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsRoute(t *testing.T) {
	ts := newTestServer(t, t.TempDir(), nil)

	resp, body := mustGet(t, ts.Client(), ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "metrics", body)
}

func TestRequestLogger_RequestIDAndMetrics(t *testing.T) {
	obs := &fakeObserver{}
	ts := newTestServer(t, writeBundle(t), obs)

	resp, _ := mustGet(t, ts.Client(), ts.URL+"/api/health")
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader), "missing generated request id")

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/nope", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, "req-123")
	resp, _ = do(t, ts.Client(), req)
	assert.Equal(t, "req-123", resp.Header.Get(requestIDHeader))

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []observedRequest{{method: "GET", status: 200}, {method: "GET", status: 404}}, obs.seen)
}

func TestRecovery(t *testing.T) {
	ts := newTestServer(t, t.TempDir(), nil)

	resp, _ := mustGet(t, ts.Client(), ts.URL+"/api/panic")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	// The server keeps serving after a panic.
	resp, _ = mustGet(t, ts.Client(), ts.URL+"/api/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, t.TempDir(), nil)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/sensor/data", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	resp, _ := do(t, ts.Client(), req)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "preflight")
	assert.Equal(t, "http://dashboard.local", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRouting_WrongMethod(t *testing.T) {
	ts := newTestServer(t, t.TempDir(), nil)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/health", nil)
	require.NoError(t, err)
	resp, _ := do(t, ts.Client(), req)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
