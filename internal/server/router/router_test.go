package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/audit"
	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/charset"
	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/server/handler"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/morphdict/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/morphdict/pkg/middleware"
)

type fakeHistory struct {
	gotName  string
	gotLimit int
}

func (f *fakeHistory) List(_ context.Context, name string, limit int) ([]audit.Entry, error) {
	f.gotName, f.gotLimit = name, limit
	return []audit.Entry{{ID: 1, Operation: "add", Dictionary: name, Encoding: "utf8", Added: 1, Total: 1}}, nil
}

type testServer struct {
	*httptest.Server
	dir     string
	history *fakeHistory
}

func newTestServer(t *testing.T, withHistory bool) *testServer {
	t.Helper()
	dir := t.TempDir()
	svc := dictionary.NewService(dictionary.Options{})

	ts := &testServer{dir: dir}
	var hist handler.HistoryStore
	if withHistory {
		ts.history = &fakeHistory{}
		hist = ts.history
	}
	h := handler.New(svc, hist, handler.Config{DataDir: dir, MaxBodyBytes: 1 << 10})

	checker := health.NewChecker()
	checker.Register("data_dir", health.DirCheck(dir))
	ts.Server = httptest.NewServer(New(h, Options{
		Checker:        checker,
		Metrics:        metrics.New(prometheus.NewRegistry()),
		RequestTimeout: 5 * time.Second,
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) write(t *testing.T, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(ts.dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case []byte:
		rdr = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, rdr)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestAddDeleteSortFlow(t *testing.T) {
	ts := newTestServer(t, false)
	cp, _ := charset.Encode("пёс\nкот\n", charset.Windows1251)
	ts.write(t, "ru.txt", cp)

	resp, body := ts.do(t, http.MethodPost, "/api/v1/dictionaries/ru.txt/words", map[string]any{"words": []string{"лиса", "кот"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add status = %d, body = %v", resp.StatusCode, body)
	}
	if body["added"] != float64(1) || body["total"] != float64(3) || body["encoding"] != "windows1251" {
		t.Errorf("add report = %v", body)
	}
	if resp.Header.Get(pkgmw.RequestIDHeader) == "" {
		t.Error("missing request id header")
	}

	resp, body = ts.do(t, http.MethodDelete, "/api/v1/dictionaries/ru.txt/words", map[string]any{"words": []string{"кот"}})
	if resp.StatusCode != http.StatusOK || body["removed"] != float64(1) {
		t.Fatalf("delete: status %d, body %v", resp.StatusCode, body)
	}

	resp, body = ts.do(t, http.MethodPost, "/api/v1/dictionaries/ru.txt/sort", nil)
	if resp.StatusCode != http.StatusOK || body["changed"] != false {
		t.Fatalf("sort: status %d, body %v", resp.StatusCode, body)
	}

	resp, body = ts.do(t, http.MethodGet, "/api/v1/dictionaries/ru.txt", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	lines, _ := body["lines"].([]any)
	got := make([]string, 0, len(lines))
	for _, l := range lines {
		got = append(got, l.(string))
	}
	if !slices.Equal(got, []string{"лиса", "пёс"}) {
		t.Errorf("lines = %q", got)
	}

	f, err := dictionary.Load(filepath.Join(ts.dir, "ru.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if f.Encoding != charset.Windows1251 {
		t.Errorf("file rewritten as %s", f.Encoding)
	}
}

func TestAddDryRunAndCreate(t *testing.T) {
	ts := newTestServer(t, false)

	resp, _ := ts.do(t, http.MethodPost, "/api/v1/dictionaries/new.txt/words", map[string]any{"words": []string{"кот"}})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing dictionary status = %d", resp.StatusCode)
	}

	resp, body := ts.do(t, http.MethodPost, "/api/v1/dictionaries/new.txt/words?create=true&dry_run=true", map[string]any{"words": []string{"кот"}})
	if resp.StatusCode != http.StatusOK || body["dry_run"] != true {
		t.Errorf("dry-run create: status %d, body %v", resp.StatusCode, body)
	}
	if _, err := os.Stat(filepath.Join(ts.dir, "new.txt")); !os.IsNotExist(err) {
		t.Error("dry run created the file")
	}

	resp, body = ts.do(t, http.MethodPost, "/api/v1/dictionaries/new.txt/words?create=true&encoding=cp1251", map[string]any{"words": []string{"кот"}})
	if resp.StatusCode != http.StatusCreated || body["encoding"] != "windows1251" {
		t.Errorf("create: status %d, body %v", resp.StatusCode, body)
	}
}

func TestErrors(t *testing.T) {
	ts := newTestServer(t, false)
	ts.write(t, "digits.txt", []byte("1\n2\n"))
	cp, _ := charset.Encode("кот\n", charset.Windows1251)
	ts.write(t, "cp.txt", cp)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown encoding", http.MethodPost, "/api/v1/dictionaries/digits.txt/sort", nil, http.StatusUnprocessableEntity},
		{"unrepresentable", http.MethodPost, "/api/v1/dictionaries/cp.txt/words", map[string]any{"words": []string{"猫"}}, http.StatusUnprocessableEntity},
		{"hidden name", http.MethodGet, "/api/v1/dictionaries/.secret", nil, http.StatusBadRequest},
		{"missing", http.MethodGet, "/api/v1/dictionaries/none.txt", nil, http.StatusNotFound},
		{"bad json", http.MethodPost, "/api/v1/dictionaries/cp.txt/words", []byte("{"), http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/v1/dictionaries/cp.txt/words", []byte(`{"word":["x"]}`), http.StatusBadRequest},
		{"embedded newline", http.MethodPost, "/api/v1/dictionaries/cp.txt/words", map[string]any{"words": []string{"а\nб"}}, http.StatusBadRequest},
		{"body too large", http.MethodPost, "/api/v1/detect", bytes.Repeat([]byte("я"), 1<<10), http.StatusRequestEntityTooLarge},
		{"bad dry_run", http.MethodPost, "/api/v1/dictionaries/cp.txt/sort?dry_run=maybe", nil, http.StatusBadRequest},
		{"history without store", http.MethodGet, "/api/v1/dictionaries/cp.txt/history", nil, http.StatusServiceUnavailable},
		{"wrong method", http.MethodPut, "/api/v1/dictionaries/cp.txt/words", nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.do(t, tt.method, tt.path, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d (body %v)", resp.StatusCode, tt.want, body)
			}
		})
	}

	raw, _ := os.ReadFile(filepath.Join(ts.dir, "cp.txt"))
	if !bytes.Equal(raw, cp) {
		t.Error("failed requests modified cp.txt")
	}
}

func TestListAndDetect(t *testing.T) {
	ts := newTestServer(t, false)
	ts.write(t, "b.txt", []byte("кот\n"))
	cp, _ := charset.Encode("кот\n", charset.Windows1251)
	ts.write(t, "a.txt", cp)
	ts.write(t, ".hidden", []byte("кот\n"))
	os.Mkdir(filepath.Join(ts.dir, "sub"), 0o755)

	resp, body := ts.do(t, http.MethodGet, "/api/v1/dictionaries", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	list, _ := body["dictionaries"].([]any)
	if len(list) != 2 {
		t.Fatalf("dictionaries = %v", list)
	}
	first := list[0].(map[string]any)
	if first["name"] != "a.txt" || first["encoding"] != "windows1251" {
		t.Errorf("first = %v", first)
	}

	resp, body = ts.do(t, http.MethodPost, "/api/v1/detect", []byte("12345"))
	if resp.StatusCode != http.StatusOK || body["encoding"] != "unknown" {
		t.Errorf("detect digits: %d %v", resp.StatusCode, body)
	}
	resp, body = ts.do(t, http.MethodPost, "/api/v1/detect", []byte("привет"))
	if body["encoding"] != "utf8" {
		t.Errorf("detect utf8: %v", body)
	}
}

func TestHistory(t *testing.T) {
	ts := newTestServer(t, true)

	resp, body := ts.do(t, http.MethodGet, "/api/v1/dictionaries/ru.txt/history?limit=5", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ts.history.gotName != "ru.txt" || ts.history.gotLimit != 5 {
		t.Errorf("store called with %q, %d", ts.history.gotName, ts.history.gotLimit)
	}
	entries, _ := body["entries"].([]any)
	if len(entries) != 1 {
		t.Errorf("entries = %v", body["entries"])
	}

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/dictionaries/ru.txt/history?limit=-1", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("negative limit status = %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, false)
	for _, path := range []string{"/health/live", "/health/ready"} {
		resp, body := ts.do(t, http.MethodGet, path, nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s = %d %v", path, resp.StatusCode, body)
		}
	}
}

func TestRequestIDEchoed(t *testing.T) {
	ts := newTestServer(t, false)
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/dictionaries", nil)
	req.Header.Set(pkgmw.RequestIDHeader, "trace-me")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(pkgmw.RequestIDHeader); !strings.EqualFold(got, "trace-me") {
		t.Errorf("request id = %q", got)
	}
}

type staticKeys map[string]int64

func (k staticKeys) Validate(_ context.Context, raw string) (*apikey.KeyInfo, error) {
	id, ok := k[raw]
	if !ok {
		return nil, apikey.ErrInvalidKey
	}
	return &apikey.KeyInfo{ID: id, Name: "test", IsActive: true}, nil
}

func TestWritesRequireAPIKey(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ru.txt"), []byte("пёс\nкот\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := handler.New(dictionary.NewService(dictionary.Options{}), nil, handler.Config{DataDir: dir})
	srv := httptest.NewServer(New(h, Options{Keys: staticKeys{"secret": 7}}))
	defer srv.Close()

	send := func(method, path, key string) int {
		req, _ := http.NewRequest(method, srv.URL+path, nil)
		if key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := send(http.MethodGet, "/api/v1/dictionaries/ru.txt", ""); code != http.StatusOK {
		t.Errorf("anonymous read = %d", code)
	}
	if code := send(http.MethodPost, "/api/v1/dictionaries/ru.txt/sort", ""); code != http.StatusUnauthorized {
		t.Errorf("anonymous sort = %d, want 401", code)
	}
	if code := send(http.MethodPost, "/api/v1/dictionaries/ru.txt/sort", "wrong"); code != http.StatusUnauthorized {
		t.Errorf("bad key sort = %d, want 401", code)
	}
	if code := send(http.MethodPost, "/api/v1/dictionaries/ru.txt/sort", "secret"); code != http.StatusOK {
		t.Errorf("authorised sort = %d", code)
	}
	if raw, _ := os.ReadFile(filepath.Join(dir, "ru.txt")); string(raw) != "кот\nпёс\n" {
		t.Errorf("after sort = %q", raw)
	}
}
