// Package notify posts sync outcomes to webhook URLs. Delivery is best
// effort: failures are logged and never affect the run being reported.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lherron/tasksync/internal/domain"
)

const (
	defaultTimeout     = 500 * time.Millisecond
	defaultConcurrency = 4
)

// Event types.
const (
	EventSyncCompleted    = "sync.completed"
	EventConflictDetected = "conflict.detected"
)

// Payload is the webhook body.
type Payload struct {
	Event    string                `json:"event"`
	RunUUID  string                `json:"run_uuid"`
	RunKind  string                `json:"run_kind"`
	Success  bool                  `json:"success"`
	Result   *domain.SyncResult    `json:"result,omitempty"`
	Conflict *domain.ConflictEvent `json:"conflict,omitempty"`
	SentAt   time.Time             `json:"sent_at"`
}

// Dispatcher delivers payloads to a fixed set of URLs.
type Dispatcher struct {
	urls    []string
	client  *http.Client
	workers int
}

// New creates a Dispatcher for urls. URLs may contain {event} and {run_id}
// placeholders. A Dispatcher without URLs drops every notification.
func New(urls []string) *Dispatcher {
	return &Dispatcher{
		urls:    urls,
		client:  &http.Client{Timeout: defaultTimeout},
		workers: defaultConcurrency,
	}
}

// SetTimeout overrides the per-request timeout.
func (d *Dispatcher) SetTimeout(timeout time.Duration) {
	d.client.Timeout = timeout
}

// Notify posts a sync.completed payload for r, then one conflict.detected
// payload per conflict. It returns once every request finished or timed out.
func (d *Dispatcher) Notify(ctx context.Context, r *domain.SyncResult, conflicts []domain.ConflictEvent) {
	if len(d.urls) == 0 || r == nil {
		return
	}
	now := time.Now().UTC()

	d.dispatch(ctx, Payload{
		Event:   EventSyncCompleted,
		RunUUID: r.RunUUID,
		RunKind: r.Kind,
		Success: r.Success,
		Result:  r,
		SentAt:  now,
	})
	for i := range conflicts {
		d.dispatch(ctx, Payload{
			Event:    EventConflictDetected,
			RunUUID:  r.RunUUID,
			RunKind:  r.Kind,
			Success:  r.Success,
			Conflict: &conflicts[i],
			SentAt:   now,
		})
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, payload Payload) {
	urls := normalizeURLs(d.urls, payload)
	if len(urls) == 0 {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("notify: failed to encode %s payload: %v", payload.Event, err)
		return
	}

	workers := d.workers
	if len(urls) < workers {
		workers = len(urls)
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for endpoint := range jobs {
				d.send(ctx, endpoint, payload.Event, body)
			}
		}()
	}

	for _, endpoint := range urls {
		jobs <- endpoint
	}
	close(jobs)
	wg.Wait()
}

func (d *Dispatcher) send(ctx context.Context, endpoint, event string, body []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		log.Printf("notify: build request %q failed: %v", endpoint, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tasksync-Event", event)

	resp, err := d.client.Do(req)
	if err != nil {
		log.Printf("notify: request to %q failed: %v", endpoint, err)
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 400 {
		log.Printf("notify: %q answered %s", endpoint, resp.Status)
	}
}

// normalizeURLs templates, trims, validates and de-dupes urls.
func normalizeURLs(urls []string, payload Payload) []string {
	if len(urls) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(urls))
	var normalized []string

	for _, raw := range urls {
		templated := strings.TrimSpace(applyTemplate(strings.TrimSpace(raw), payload))
		templated = strings.TrimRight(templated, "/")
		if templated == "" {
			continue
		}
		if !isValidURL(templated) {
			log.Printf("notify: skipping invalid url %q", templated)
			continue
		}
		if _, ok := seen[templated]; ok {
			continue
		}
		seen[templated] = struct{}{}
		normalized = append(normalized, templated)
	}

	return normalized
}

func applyTemplate(raw string, payload Payload) string {
	result := strings.ReplaceAll(raw, "{event}", payload.Event)
	result = strings.ReplaceAll(result, "{run_id}", payload.RunUUID)
	return result
}

func isValidURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}
