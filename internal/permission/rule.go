package permission

import (
	"encoding/json"
	"fmt"
)

// Rule is a permission rule in the authorization engine's native format.
type Rule struct {
	Subject    Subject    `json:"subject"`
	Action     []string   `json:"action"`
	Inverted   bool       `json:"inverted,omitempty"`
	Conditions Conditions `json:"conditions,omitempty"`
}

// UnmarshalJSON accepts the subject as a string or a list (first element is
// used) and the action as a string or a list.
func (r *Rule) UnmarshalJSON(b []byte) error {
	var raw struct {
		Subject    json.RawMessage `json:"subject"`
		Action     json.RawMessage `json:"action"`
		Inverted   bool            `json:"inverted"`
		Conditions Conditions      `json:"conditions"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	subjects, err := stringOrList(raw.Subject)
	if err != nil {
		return fmt.Errorf("rule subject: %w", err)
	}
	if len(subjects) == 0 {
		return fmt.Errorf("rule subject is required")
	}
	actions, err := stringOrList(raw.Action)
	if err != nil {
		return fmt.Errorf("rule action: %w", err)
	}

	*r = Rule{
		Subject:    Subject(subjects[0]),
		Action:     actions,
		Inverted:   raw.Inverted,
		Conditions: raw.Conditions,
	}
	return nil
}

func stringOrList(b json.RawMessage) ([]string, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return []string{s}, nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, fmt.Errorf("expected a string or a list of strings")
	}
	return list, nil
}

// HasAction reports whether the rule lists the action.
func (r *Rule) HasAction(action string) bool {
	for _, a := range r.Action {
		if a == action {
			return true
		}
	}
	return false
}
