package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/lherron/tasksync/internal/domain"
)

type captured struct {
	mu       sync.Mutex
	payloads []Payload
	headers  []string
}

func (c *captured) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
			return
		}
		var p Payload
		if err := json.Unmarshal(body, &p); err != nil {
			t.Errorf("decode payload: %v", err)
			return
		}
		c.mu.Lock()
		c.payloads = append(c.payloads, p)
		c.headers = append(c.headers, r.Header.Get("X-Tasksync-Event"))
		c.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}
}

func TestNormalizeURLs(t *testing.T) {
	payload := Payload{Event: EventSyncCompleted, RunUUID: "run-1"}
	urls := []string{
		"http://example.com/hook/{event}",
		"  http://example.com/hook/sync.completed/ ",
		"ftp://invalid.example.com/hook",
		"http:///nohost",
		"",
		"https://example.com/runs/{run_id}",
	}

	got := normalizeURLs(urls, payload)
	expected := []string{
		"http://example.com/hook/sync.completed",
		"https://example.com/runs/run-1",
	}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("unexpected urls\nexpected: %v\nactual:   %v", expected, got)
	}
}

func TestNotify_PostsRunAndConflicts(t *testing.T) {
	var c captured
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()

	d := New([]string{srv.URL + "/a", srv.URL + "/b", srv.URL + "/a/"})
	result := &domain.SyncResult{RunUUID: "run-1", Kind: "sync", Updated: 1, Conflicts: 1, Success: true}
	conflicts := []domain.ConflictEvent{{
		MappingUUID: "m-1", Key: "2/7", Strategy: domain.StrategyLatestTimestamp, Outcome: "write_backlog",
	}}

	d.Notify(context.Background(), result, conflicts)

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.payloads) != 4 {
		t.Fatalf("got %d requests, want 4 (2 urls x 2 events)", len(c.payloads))
	}

	counts := map[string]int{}
	for i, p := range c.payloads {
		counts[p.Event]++
		if c.headers[i] != p.Event {
			t.Errorf("header %q does not match event %q", c.headers[i], p.Event)
		}
		if p.RunUUID != "run-1" || !p.Success {
			t.Errorf("payload = %+v", p)
		}
		switch p.Event {
		case EventSyncCompleted:
			if p.Result == nil || p.Result.Updated != 1 {
				t.Errorf("sync payload result = %+v", p.Result)
			}
		case EventConflictDetected:
			if p.Conflict == nil || p.Conflict.Outcome != "write_backlog" || p.Conflict.Key != "2/7" {
				t.Errorf("conflict payload = %+v", p.Conflict)
			}
		}
	}
	if counts[EventSyncCompleted] != 2 || counts[EventConflictDetected] != 2 {
		t.Errorf("event counts = %v", counts)
	}
}

func TestNotify_WithoutURLsIsNoop(t *testing.T) {
	New(nil).Notify(context.Background(), &domain.SyncResult{RunUUID: "run-1"}, nil)
}

func TestNotify_SlowEndpointTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	d := New([]string{srv.URL})
	d.SetTimeout(50 * time.Millisecond)

	start := time.Now()
	d.Notify(context.Background(), &domain.SyncResult{RunUUID: "run-1", Kind: "sync"}, nil)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Notify blocked for %s", elapsed)
	}
}

func TestNotify_UnreachableEndpointDoesNotPanic(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	d := New([]string{endpoint})
	d.SetTimeout(100 * time.Millisecond)
	d.Notify(context.Background(), &domain.SyncResult{RunUUID: "run-1", Kind: "sync"}, nil)
}
