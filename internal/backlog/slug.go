package backlog

import (
	"regexp"
	"strings"

	"github.com/lherron/tasksync/internal/domain"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

const maxSlugLen = 64

// NormalizeSlug turns a project name into a slug:
// - lower-case
// - spaces and underscores become hyphens
// - anything outside [a-z0-9-] is dropped
// - leading and trailing hyphens are trimmed
func NormalizeSlug(name string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.NewReplacer(" ", "-", "_", "-").Replace(s)

	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	s = strings.Trim(b.String(), "-")

	if err := ValidateSlug(s); err != nil {
		return "", err
	}
	return s, nil
}

// ValidateSlug checks a project slug without normalizing it.
func ValidateSlug(s string) error {
	if s == "" {
		return &domain.ValidationError{Field: "project", Reason: "must not be empty"}
	}
	if len(s) > maxSlugLen {
		return &domain.ValidationError{Field: "project", Reason: "slug exceeds 64 bytes"}
	}
	if !slugPattern.MatchString(s) {
		return &domain.ValidationError{Field: "project", Reason: "slug must match " + slugPattern.String()}
	}
	return nil
}
