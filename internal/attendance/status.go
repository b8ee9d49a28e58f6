package attendance

import (
	"fmt"
	"strings"
)

// Status of one student on one day.
type Status string

const (
	Present Status = "present"
	Absent  Status = "absent"
	Leave   Status = "leave"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case Present, Absent, Leave:
		return true
	}
	return false
}

// ParseStatus accepts a status name in any case.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}
