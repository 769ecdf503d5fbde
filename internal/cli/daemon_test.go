package cli

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lherron/tasksync/internal/config"
	"github.com/lherron/tasksync/internal/domain"
	"github.com/lherron/tasksync/internal/testutil"
)

func TestDaemonServer_Auth(t *testing.T) {
	srv := httptest.NewServer(newDaemonServer(testutil.TempStore(t), "secret").handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", resp.StatusCode)
	}

	for _, header := range []string{"Authorization", "X-Tasksyncd-Token"} {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/health", nil)
		value := "secret"
		if header == "Authorization" {
			value = "Bearer secret"
		}
		req.Header.Set(header, value)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status with %s = %d, want 200", header, resp.StatusCode)
		}
	}
}

func TestDaemonServer_HealthReportsLastRun(t *testing.T) {
	server := newDaemonServer(testutil.TempStore(t), "")
	srv := httptest.NewServer(server.handler())
	defer srv.Close()

	server.record(&domain.SyncResult{RunUUID: "run-1", Kind: "sync", Success: false, Errors: []string{"planner: collaborator unavailable"}})

	resp, err := http.Get(srv.URL + "/v1/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		OK      bool               `json:"ok"`
		Cycles  int                `json:"cycles"`
		LastRun *domain.SyncResult `json:"last_run"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.OK || body.Cycles != 1 || body.LastRun == nil || body.LastRun.RunUUID != "run-1" {
		t.Errorf("unexpected health: %+v", body)
	}
}

func TestDaemonServer_Lists(t *testing.T) {
	srv := httptest.NewServer(newDaemonServer(testutil.TempStore(t), "").handler())
	defer srv.Close()

	tests := []struct {
		path   string
		status int
		key    string
	}{
		{"/v1/runs", http.StatusOK, `"runs":[]`},
		{"/v1/runs?limit=zero", http.StatusBadRequest, `"error"`},
		{"/v1/mappings?tombstones=true", http.StatusOK, `"mappings":[]`},
		{"/v1/conflicts?all=true", http.StatusOK, `"conflicts":[]`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(body), tt.key) {
				t.Errorf("body %q missing %s", body, tt.key)
			}
		})
	}
}

func TestDaemonServer_RejectsWrites(t *testing.T) {
	srv := httptest.NewServer(newDaemonServer(testutil.TempStore(t), "").handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/runs", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestApplyDaemonOptions(t *testing.T) {
	cfg := config.Defaults()
	cfg.StateDBPath = "/var/lib/tasksync/state.db"
	applyDaemonOptions(cfg, DaemonOptions{
		PlannerPath: "/work/.taskmaster/tasks/tasks.json",
		Strategy:    "backlog_wins",
		Interval:    time.Minute,
	})

	if cfg.StateDBPath != "/var/lib/tasksync/state.db" {
		t.Errorf("unset option overwrote state path: %s", cfg.StateDBPath)
	}
	if cfg.PlannerPath != "/work/.taskmaster/tasks/tasks.json" || cfg.Strategy != "backlog_wins" {
		t.Errorf("options not applied: %+v", cfg)
	}
}
