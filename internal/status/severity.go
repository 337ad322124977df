package status

import (
	"fmt"
	"strings"
)

// Severity is the health level of a machine or of the whole plant.
// The zero value is Operational, so an empty aggregate needs no special case.
type Severity int

const (
	Operational Severity = iota
	Warning
	Critical
)

// Severities lists every level in ascending order.
var Severities = []Severity{Operational, Warning, Critical}

func (s Severity) String() string {
	switch s {
	case Operational:
		return "operational"
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Valid reports whether s is one of the declared levels.
func (s Severity) Valid() bool {
	return s >= Operational && s <= Critical
}

// AtLeast reports whether s is as severe as other or worse.
func (s Severity) AtLeast(other Severity) bool {
	return s >= other
}

// Max returns the more severe of a and b.
func Max(a, b Severity) Severity {
	if b > a {
		return b
	}
	return a
}

// ParseSeverity accepts the text form produced by String, case-insensitively.
func ParseSeverity(text string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "operational", "ok":
		return Operational, nil
	case "warning", "warn":
		return Warning, nil
	case "critical":
		return Critical, nil
	}
	return Operational, fmt.Errorf("unknown severity %q", text)
}

func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("cannot marshal %s", s)
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Color is the badge color every view uses for s.
func (s Severity) Color() string {
	switch s {
	case Operational:
		return "#10B981"
	case Warning:
		return "#F59E0B"
	case Critical:
		return "#EF4444"
	default:
		return "#6B7280"
	}
}

// Icon is the badge glyph every view uses for s.
func (s Severity) Icon() string {
	switch s {
	case Operational:
		return "✅"
	case Warning:
		return "⚠️"
	case Critical:
		return "❌"
	default:
		return "●"
	}
}

// Label is the capitalized form shown in badges.
func (s Severity) Label() string {
	name := s.String()
	return strings.ToUpper(name[:1]) + name[1:]
}
