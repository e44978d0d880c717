package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"winecellar/internal/config"
	"winecellar/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	cloud      *fakeCloud
	photo      string
}

// fakeCloud serves the content service and recognition endpoints.
type fakeCloud struct {
	mu        sync.Mutex
	server    *httptest.Server
	failWith  int
	uploads   int
	metadata  []map[string]any
	labelText string
}

func newFakeCloud(t *testing.T) *fakeCloud {
	t.Helper()
	fc := &fakeCloud{labelText: "CHATEAU TEST 2019"}
	mux := http.NewServeMux()
	mux.HandleFunc("/dropbox/url", func(w http.ResponseWriter, r *http.Request) {
		if fc.failing(w) {
			return
		}
		writeTestJSON(w, map[string]string{"url": fc.server.URL + "/upload"})
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fc.mu.Lock()
		fc.uploads++
		fc.mu.Unlock()
		writeTestJSON(w, map[string]string{"uri": "https://cdn.test/" + r.FormValue("rowId") + ".jpg"})
	})
	mux.HandleFunc("/winecellar/wine", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fc.mu.Lock()
		fc.metadata = append(fc.metadata, body)
		fc.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/vision", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, map[string]any{
			"responses": []any{map[string]any{
				"textAnnotations": []any{map[string]any{"description": fc.labelText}},
			}},
		})
	})
	fc.server = httptest.NewServer(mux)
	t.Cleanup(fc.server.Close)
	return fc
}

func (fc *fakeCloud) failing(w http.ResponseWriter) bool {
	fc.mu.Lock()
	status := fc.failWith
	fc.mu.Unlock()
	if status == 0 {
		return false
	}
	w.WriteHeader(status)
	return true
}

func (fc *fakeCloud) setFailure(status int) {
	fc.mu.Lock()
	fc.failWith = status
	fc.mu.Unlock()
}

func (fc *fakeCloud) metadataCount() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return len(fc.metadata)
}

func writeTestJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cloud := newFakeCloud(t)
	opts = append([]testsupport.ConfigOption{
		testsupport.WithBaseURL(cloud.server.URL),
		testsupport.WithOCR(cloud.server.URL+"/vision", "test-key"),
	}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Daemon.MetricsBind = ""
	cfg.Connectivity.MaxAttempts = 1

	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv(pinEnvVar, "")

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	photo := filepath.Join(base, "label.jpg")
	testsupport.WriteJPEG(t, photo, 64, 48)

	return &cliTestEnv{cfg: cfg, configPath: configPath, cloud: cloud, photo: photo}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
