package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("SP_INDEX_DATA_DIR", t.TempDir())
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Metrics.Enabled = false
	return cfg
}

func TestBuildQueryDelete(t *testing.T) {
	cfg := testConfig(t)
	corpusPath := filepath.Join(t.TempDir(), "docs.jsonl")
	lines := `{"id":"d1","text":"the cat sat"}
{"id":"d2","text":"the dog sat"}
{"id":"d3","text":"cat and dog"}
`
	if err := os.WriteFile(corpusPath, []byte(lines), 0644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	var out bytes.Buffer
	if err := run(ctx, cfg, []string{"build", "-index", "pets", "-path", corpusPath}, &out); err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(out.String(), `"documents": 3`) {
		t.Errorf("build output: %s", out.String())
	}

	out.Reset()
	if err := run(ctx, cfg, []string{"query", "-index", "pets", "-q", "cat AND dog"}, &out); err != nil {
		t.Fatalf("query: %v", err)
	}
	var res executor.SearchResult
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Results) != 1 || res.Results[0].DocID != "d3" {
		t.Errorf("results = %+v", res.Results)
	}

	out.Reset()
	if err := run(ctx, cfg, []string{"docs", "-index", "pets"}, &out); err != nil {
		t.Fatal(err)
	}
	var ids []string
	if err := json.Unmarshal(out.Bytes(), &ids); err != nil || len(ids) != 3 {
		t.Errorf("docs = %s (%v)", out.String(), err)
	}

	if err := run(ctx, cfg, []string{"delete", "-index", "pets"}, &out); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if err := run(ctx, cfg, []string{"list"}, &out); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != "[]" {
		t.Errorf("list after delete = %s", out.String())
	}
}

func TestRunUsage(t *testing.T) {
	cfg := testConfig(t)
	if err := run(context.Background(), cfg, nil, &bytes.Buffer{}); !errors.Is(err, errUsage) {
		t.Errorf("err = %v", err)
	}
	if err := run(context.Background(), cfg, []string{"frobnicate"}, &bytes.Buffer{}); !errors.Is(err, errUsage) {
		t.Errorf("err = %v", err)
	}
	if err := run(context.Background(), cfg, []string{"build", "-source", "dir"}, &bytes.Buffer{}); err == nil {
		t.Error("expected an error for a missing -path")
	}
}
