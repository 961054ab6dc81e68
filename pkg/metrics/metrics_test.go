package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.IndexBuildsTotal.WithLabelValues("success").Inc()
	m.IndexTerms.WithLabelValues("news").Set(42)

	if got := testutil.ToFloat64(m.IndexTerms.WithLabelValues("news")); got != 42 {
		t.Errorf("index_terms = %v", got)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"index_builds_total", "index_terms"} {
		if !names[want] {
			t.Errorf("%s not gathered", want)
		}
	}
}

func TestHandlerServesDefaultRegistry(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("status %d, body %.200s", rec.Code, rec.Body.String())
	}
}
