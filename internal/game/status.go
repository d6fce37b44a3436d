package game

import (
	"encoding/json"
	"fmt"
)

// Status is where an account is in the round lifecycle
type Status uint8

const (
	// StatusIdle means no wager is held
	StatusIdle Status = iota
	// StatusFunded means proceeds are held and a round may be started
	StatusFunded
	// StatusAwaitingRandomness means a seed has been requested but not delivered
	StatusAwaitingRandomness
	// StatusActive means cards are dealt and the player is to act
	StatusActive
)

var statusNames = [...]string{"idle", "funded", "awaiting_randomness", "active"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", s)
}

// MarshalJSON encodes the status by name
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status name
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for i, n := range statusNames {
		if n == name {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", name)
}

// Outcome is how a round ended
type Outcome uint8

const (
	OutcomeWon Outcome = iota + 1
	OutcomeLost
	OutcomeTied
	OutcomeSurrendered
)

var outcomeNames = map[Outcome]string{
	OutcomeWon:         "won",
	OutcomeLost:        "lost",
	OutcomeTied:        "tied",
	OutcomeSurrendered: "surrendered",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Outcome(%d)", o)
}

// MarshalJSON encodes the outcome by name
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// ParseOutcome is the inverse of Outcome.String
func ParseOutcome(s string) (Outcome, error) {
	for o, name := range outcomeNames {
		if name == s {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown outcome %q", s)
}

// UnmarshalJSON decodes an outcome name
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseOutcome(name)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
