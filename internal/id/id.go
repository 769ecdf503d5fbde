package id

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	mappingIDPattern  = regexp.MustCompile(`^M-\d{5,}$`)
	conflictIDPattern = regexp.MustCompile(`^X-\d{5,}$`)
	runIDPattern      = regexp.MustCompile(`^R-\d{5,}$`)
	uuidPattern       = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// Type represents the type of resource
type Type string

const (
	TypeMapping  Type = "mapping"
	TypeConflict Type = "conflict"
	TypeRun      Type = "run"
)

// FormatMapping formats a mapping friendly ID
func FormatMapping(seq int) string {
	return fmt.Sprintf("M-%05d", seq)
}

// FormatConflict formats a conflict-log friendly ID
func FormatConflict(seq int) string {
	return fmt.Sprintf("X-%05d", seq)
}

// FormatRun formats a sync run friendly ID
func FormatRun(seq int) string {
	return fmt.Sprintf("R-%05d", seq)
}

// Parse parses an ID string and returns the type and sequence number
func Parse(id string) (Type, int, error) {
	id = strings.TrimSpace(id)

	var typ Type
	switch {
	case mappingIDPattern.MatchString(id):
		typ = TypeMapping
	case conflictIDPattern.MatchString(id):
		typ = TypeConflict
	case runIDPattern.MatchString(id):
		typ = TypeRun
	default:
		return "", 0, fmt.Errorf("invalid friendly ID format: %s", id)
	}

	seq, err := strconv.Atoi(id[2:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid friendly ID format: %s", id)
	}
	return typ, seq, nil
}

// IsUUID checks if a string is a valid UUID
func IsUUID(s string) bool {
	return uuidPattern.MatchString(strings.ToLower(s))
}

// IsFriendlyID checks if a string is a valid friendly ID
func IsFriendlyID(s string) bool {
	_, _, err := Parse(s)
	return err == nil
}
