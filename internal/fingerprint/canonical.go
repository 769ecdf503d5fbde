// Package fingerprint derives the content hash of a backlog/planner task pair.
//
// The hash covers only the fields that decide equivalence: title,
// description, status, priority and updated_at of each side. The canonical
// form is also kept verbatim on the mapping as the merge base for the next
// cycle.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/lherron/tasksync/internal/domain"
)

// Fields are the synchronization-relevant fields of one side, in that side's
// own status and priority space.
type Fields struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    int        `json:"priority"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

// Pair is the decoded form of a canonical snapshot.
type Pair struct {
	Backlog *Fields `json:"backlog"`
	Planner *Fields `json:"planner"`
}

// BacklogFields extracts the fingerprinted fields of a backlog task.
func BacklogFields(t *domain.BacklogTask) *Fields {
	if t == nil {
		return nil
	}
	return &Fields{
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    t.Priority,
		UpdatedAt:   t.UpdatedAt,
	}
}

// PlannerFields extracts the fingerprinted fields of a planner task.
func PlannerFields(t *domain.PlannerTask) *Fields {
	if t == nil {
		return nil
	}
	return &Fields{
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    t.Priority,
		UpdatedAt:   t.UpdatedAt,
	}
}

// Equal reports whether two field sets match, ignoring updated_at.
func (f *Fields) Equal(o *Fields) bool {
	if f == nil || o == nil {
		return f == o
	}
	return f.Title == o.Title &&
		f.Description == o.Description &&
		f.Status == o.Status &&
		f.Priority == o.Priority
}

// Canonical produces the deterministic encoding of a pair:
// - keys in fixed order (backlog, planner; title, description, status, priority, updated_at)
// - no insignificant whitespace
// - an absent side or timestamp is written as null, never omitted
// - timestamps in UTC RFC3339Nano
func Canonical(a *domain.BacklogTask, b *domain.PlannerTask) []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"backlog":`)
	writeFields(&buf, BacklogFields(a))
	buf.WriteString(`,"planner":`)
	writeFields(&buf, PlannerFields(b))
	buf.WriteByte('}')
	return buf.Bytes()
}

// Compute returns the fingerprint of a pair in "sha256:<hex>" form.
func Compute(a *domain.BacklogTask, b *domain.PlannerTask) string {
	return Hash(Canonical(a, b))
}

// Hash computes the sha256 of canonical bytes.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// ParseSnapshot decodes a canonical snapshot stored on a mapping.
func ParseSnapshot(s string) (*Pair, error) {
	if s == "" {
		return nil, fmt.Errorf("empty snapshot")
	}
	var p Pair
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &p, nil
}

func writeFields(buf *bytes.Buffer, f *Fields) {
	if f == nil {
		buf.WriteString("null")
		return
	}
	buf.WriteString(`{"title":`)
	writeString(buf, f.Title)
	buf.WriteString(`,"description":`)
	writeString(buf, f.Description)
	buf.WriteString(`,"status":`)
	writeString(buf, f.Status)
	buf.WriteString(`,"priority":`)
	buf.WriteString(strconv.Itoa(f.Priority))
	buf.WriteString(`,"updated_at":`)
	if f.UpdatedAt == nil {
		buf.WriteString("null")
	} else {
		writeString(buf, f.UpdatedAt.UTC().Format(time.RFC3339Nano))
	}
	buf.WriteByte('}')
}

func writeString(buf *bytes.Buffer, s string) {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	// Encoding a string value cannot fail.
	_ = enc.Encode(s)
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
}
