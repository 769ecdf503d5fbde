package backlog

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lherron/tasksync/internal/domain"
)

func TestNormalizeSlug(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "already a slug", input: "inbox", want: "inbox"},
		{name: "uppercase", input: "Roadmap", want: "roadmap"},
		{name: "spaces to hyphens", input: "Q3 Launch Plan", want: "q3-launch-plan"},
		{name: "underscores to hyphens", input: "ops_backlog", want: "ops-backlog"},
		{name: "drops invalid characters", input: "r&d!", want: "rd"},
		{name: "trims hyphens", input: "  -core- ", want: "core"},
		{name: "empty", input: "", wantErr: true},
		{name: "nothing valid", input: "!!!", wantErr: true},
		{name: "too long", input: strings.Repeat("a", 65), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeSlug(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeSlug(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeSlug(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEnsureProject_RejectsInvalidSlug(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "backlog.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	for _, slug := range []string{"", "Road Map", "-core"} {
		_, err := s.EnsureProject(context.Background(), slug)
		var verr *domain.ValidationError
		if !errors.As(err, &verr) || verr.Field != "project" {
			t.Errorf("EnsureProject(%q) = %v, want project validation error", slug, err)
		}
	}
}
