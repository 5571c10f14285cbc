package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
)

// SlotKey identifies one place an EO can be taught: a period on a training
// night, within one phase's parallel track. It is comparable and used
// directly as a map key.
type SlotKey struct {
	Date   civil.Date
	Period int
	Phase  int
}

// NewSlotKey is a small convenience constructor.
func NewSlotKey(date civil.Date, period, phase int) SlotKey {
	return SlotKey{Date: date, Period: period, Phase: phase}
}

// String renders the key in its wire form "{date}-{period}-{phase}",
// e.g. "2024-09-11-1-2".
func (k SlotKey) String() string {
	return k.Date.String() + "-" + strconv.Itoa(k.Period) + "-" + strconv.Itoa(k.Phase)
}

// MarshalText implements encoding.TextMarshaler so keys can be used as JSON
// object keys.
func (k SlotKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *SlotKey) UnmarshalText(b []byte) error {
	parsed, err := ParseSlotKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Less orders keys by date, then period, then phase.
func (k SlotKey) Less(o SlotKey) bool {
	if k.Date != o.Date {
		return k.Date.Before(o.Date)
	}
	if k.Period != o.Period {
		return k.Period < o.Period
	}
	return k.Phase < o.Phase
}

// SamePeriod reports whether both keys fall in the same (date, period),
// regardless of phase.
func (k SlotKey) SamePeriod(o SlotKey) bool {
	return k.Date == o.Date && k.Period == o.Period
}

// ParseSlotKey parses the wire form. The period and phase are taken from the
// two right-most '-' separated fields; everything before them is the date.
func ParseSlotKey(s string) (SlotKey, error) {
	s = strings.TrimSpace(s)
	i := strings.LastIndex(s, "-")
	if i <= 0 {
		return SlotKey{}, fmt.Errorf("model: malformed slot key %q", s)
	}
	phase, err := keyComponent(s[i+1:])
	if err != nil {
		return SlotKey{}, fmt.Errorf("model: malformed slot key %q: phase: %w", s, err)
	}
	rest := s[:i]
	j := strings.LastIndex(rest, "-")
	if j <= 0 {
		return SlotKey{}, fmt.Errorf("model: malformed slot key %q", s)
	}
	period, err := keyComponent(rest[j+1:])
	if err != nil {
		return SlotKey{}, fmt.Errorf("model: malformed slot key %q: period: %w", s, err)
	}
	date, err := civil.ParseDate(rest[:j])
	if err != nil {
		return SlotKey{}, fmt.Errorf("model: malformed slot key %q: date: %w", s, err)
	}
	k := SlotKey{Date: date, Period: period, Phase: phase}
	if err := k.Validate(); err != nil {
		return SlotKey{}, err
	}
	return k, nil
}

// keyComponent parses a period or phase field. Only plain decimal digits
// without leading zeros are accepted, so a parsed key renders back to the
// exact input.
func keyComponent(s string) (int, error) {
	if s == "" {
		return 0, errors.New("empty")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%q is not a plain number", s)
		}
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("%q has a leading zero", s)
	}
	return strconv.Atoi(s)
}

// Validate checks the structural sanity of a key.
func (k SlotKey) Validate() error {
	if !k.Date.IsValid() {
		return errors.New("model: slot key date is invalid")
	}
	if k.Period < 1 {
		return fmt.Errorf("model: slot key period %d must be >= 1", k.Period)
	}
	if k.Phase < 1 {
		return fmt.Errorf("model: slot key phase %d must be >= 1", k.Phase)
	}
	return nil
}
