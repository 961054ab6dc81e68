package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/metrics"
)

type mapStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *mapStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, redis.Nil
}

func (m *mapStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapStore) FlushByPattern(context.Context, string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.data))
	m.data = make(map[string][]byte)
	return n, nil
}

type recordingAnnouncer struct {
	built   []string
	deleted []string
}

func (a *recordingAnnouncer) Built(_ context.Context, id string, _ index.Meta) error {
	a.built = append(a.built, id)
	return nil
}

func (a *recordingAnnouncer) Deleted(_ context.Context, id string) error {
	a.deleted = append(a.deleted, id)
	return nil
}

type fixture struct {
	server    *httptest.Server
	engine    *indexer.Engine
	announcer *recordingAnnouncer
}

func newFixture(t *testing.T, withCache bool) *fixture {
	t.Helper()
	engine, err := indexer.NewEngine(config.IndexConfig{
		DataDir:      t.TempDir(),
		Info:         "TFIDF",
		Storage:      "FILE",
		QueryProc:    "TAAT",
		Compression:  "CODEC",
		Optimization: "NONE",
		Tokenizer:    tokenizer.DefaultOptions(),
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	m := metrics.New(prometheus.NewRegistry())
	var qc *cache.QueryCache
	if withCache {
		qc = cache.New(&mapStore{data: make(map[string][]byte)}, time.Minute, m)
	}
	announcer := &recordingAnnouncer{}
	h := New(engine, qc, announcer, m, Options{DefaultLimit: 50, MaxResults: 50, Timeout: 5 * time.Second})
	checker := health.NewChecker()
	checker.Register("index", health.Probe(true, func(context.Context) error {
		if _, _, ok := engine.Loaded(); !ok {
			return context.Canceled
		}
		return nil
	}))
	srv := httptest.NewServer(NewRouter(h, checker, m, 10*time.Second))
	t.Cleanup(func() {
		srv.Close()
		engine.Close()
	})
	return &fixture{server: srv, engine: engine, announcer: announcer}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("%s %s: decoding body: %v", method, path, err)
		}
	}
	return resp, out
}

func (f *fixture) search(t *testing.T, query string) (*http.Response, executor.SearchResult) {
	t.Helper()
	resp, err := http.Get(f.server.URL + "/api/v1/search?q=" + strings.ReplaceAll(query, " ", "+"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var res executor.SearchResult
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			t.Fatal(err)
		}
	}
	return resp, res
}

const catDogBody = `{"documents":[
	{"id":"d1","text":"the cat sat"},
	{"id":"d2","text":"the dog sat"},
	{"id":"d3","text":"cat and dog"}]}`

func TestIndexLifecycle(t *testing.T) {
	f := newFixture(t, true)

	resp, body := f.do(t, http.MethodPost, "/api/v1/indices/pets", catDogBody)
	if resp.StatusCode != http.StatusCreated || body["documents"].(float64) != 3 || body["terms"].(float64) != 3 {
		t.Fatalf("build: %d %v", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
	if len(f.announcer.built) != 1 || f.announcer.built[0] != "pets" {
		t.Errorf("announced builds = %v", f.announcer.built)
	}

	resp, _ = f.search(t, "cat")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("search before load: %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodGet, "/health/ready", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("ready before load: %d", resp.StatusCode)
	}

	resp, body = f.do(t, http.MethodPost, "/api/v1/indices/pets/load", "")
	if resp.StatusCode != http.StatusOK || body["loaded"] != "pets" {
		t.Fatalf("load: %d %v", resp.StatusCode, body)
	}
	resp, _ = f.do(t, http.MethodGet, "/health/ready", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ready after load: %d", resp.StatusCode)
	}

	_, body = f.do(t, http.MethodGet, "/api/v1/indices", "")
	if indices := body["indices"].([]any); len(indices) != 1 || body["loaded"] != "pets" {
		t.Errorf("list: %v", body)
	}
	_, body = f.do(t, http.MethodGet, "/api/v1/indices/pets/documents", "")
	if docs := body["documents"].([]any); len(docs) != 3 || docs[0] != "d1" {
		t.Errorf("documents: %v", body)
	}

	resp, _ = f.do(t, http.MethodDelete, "/api/v1/indices/pets", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete: %d", resp.StatusCode)
	}
	if len(f.announcer.deleted) != 1 {
		t.Errorf("announced deletes = %v", f.announcer.deleted)
	}
	resp, _ = f.do(t, http.MethodDelete, "/api/v1/indices/pets", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete: %d", resp.StatusCode)
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t, true)
	f.do(t, http.MethodPost, "/api/v1/indices/pets", catDogBody)
	f.do(t, http.MethodPost, "/api/v1/indices/pets/load", "")

	tests := []struct {
		query string
		want  []string
	}{
		{"cat AND dog", []string{"d3"}},
		{"NOT cat", []string{"d2"}},
		{"", nil},
	}
	for _, tt := range tests {
		resp, res := f.search(t, tt.query)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%q: status %d", tt.query, resp.StatusCode)
		}
		if len(res.Results) != len(tt.want) {
			t.Errorf("%q: results %+v, want %v", tt.query, res.Results, tt.want)
			continue
		}
		for i, id := range tt.want {
			if res.Results[i].DocID != id {
				t.Errorf("%q: results %+v, want %v", tt.query, res.Results, tt.want)
			}
		}
	}

	f.search(t, "cat AND dog")
	_, stats := f.do(t, http.MethodGet, "/api/v1/cache/stats", "")
	if stats["hits"].(float64) < 1 {
		t.Errorf("cache stats = %v", stats)
	}
	resp, _ := f.do(t, http.MethodPost, "/api/v1/cache/invalidate", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("invalidate: %d", resp.StatusCode)
	}
}

func TestSearchErrors(t *testing.T) {
	f := newFixture(t, false)
	f.do(t, http.MethodPost, "/api/v1/indices/pets", catDogBody)
	f.do(t, http.MethodPost, "/api/v1/indices/pets/load", "")

	resp, body := f.do(t, http.MethodGet, "/api/v1/search?q=cat+)", "")
	if resp.StatusCode != http.StatusBadRequest || body["position"].(float64) != 1 || body["token"] != ")" {
		t.Errorf("syntax error: %d %v", resp.StatusCode, body)
	}
	resp, _ = f.do(t, http.MethodGet, "/api/v1/search?q=cat&limit=0", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("limit=0: %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodPost, "/api/v1/cache/invalidate", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("invalidate without cache: %d", resp.StatusCode)
	}
}

func TestBuildValidation(t *testing.T) {
	f := newFixture(t, false)
	tests := []struct {
		name, path, body string
		status           int
	}{
		{"bad json", "/api/v1/indices/x", `{"documents":`, http.StatusBadRequest},
		{"missing id", "/api/v1/indices/x", `{"documents":[{"id":"","text":"a"}]}`, http.StatusBadRequest},
		{"hidden index id", "/api/v1/indices/.x", `{"documents":[]}`, http.StatusBadRequest},
		{"load missing", "/api/v1/indices/missing/load", ``, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := f.do(t, http.MethodPost, tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}
