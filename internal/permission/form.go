package permission

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

const (
	fieldConditions = "conditions"
	fieldInverted   = "inverted"
)

// Entry is one structured permission entry of the role form: a boolean flag
// per action of its subject, plus conditions and inversion for conditional
// subjects.
type Entry struct {
	Flags      map[string]bool
	Inverted   bool
	Conditions []Condition
}

// Granted returns the actions whose flags are set, in the subject's
// canonical order. Flags unknown to the subject follow in name order.
func (e Entry) Granted(spec *SubjectSpec) []string {
	actions := []string{}
	known := make(map[string]bool, len(spec.Flags))
	for _, f := range spec.Flags {
		known[f] = true
		if e.Flags[f] {
			actions = append(actions, f)
		}
	}
	var extra []string
	for f, on := range e.Flags {
		if on && !known[f] {
			extra = append(extra, f)
		}
	}
	sort.Strings(extra)
	return append(actions, extra...)
}

// Form is the per-subject form representation of a role's permissions.
type Form map[Subject][]Entry

func (f Form) MarshalJSON() ([]byte, error) {
	out := make(map[Subject][]map[string]any, len(f))
	for sub, entries := range f {
		conditional := IsConditional(sub)
		list := make([]map[string]any, 0, len(entries))
		for _, e := range entries {
			m := make(map[string]any, len(e.Flags)+2)
			for k, v := range e.Flags {
				m[k] = v
			}
			if conditional {
				conds := e.Conditions
				if conds == nil {
					conds = []Condition{}
				}
				m[fieldConditions] = conds
				m[fieldInverted] = e.Inverted
			}
			list = append(list, m)
		}
		out[sub] = list
	}
	return json.Marshal(out)
}

func (f *Form) UnmarshalJSON(b []byte) error {
	var raw map[Subject][]map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	form := make(Form, len(raw))
	for sub, entries := range raw {
		list := make([]Entry, 0, len(entries))
		for i, fields := range entries {
			e, err := decodeEntry(fields)
			if err != nil {
				return fmt.Errorf("permissions.%s.%d: %w", sub, i, err)
			}
			list = append(list, e)
		}
		form[sub] = list
	}
	*f = form
	return nil
}

var jsonNull = []byte("null")

func decodeEntry(fields map[string]json.RawMessage) (Entry, error) {
	e := Entry{Flags: make(map[string]bool, len(fields))}
	for k, v := range fields {
		if bytes.Equal(v, jsonNull) {
			continue
		}
		switch k {
		case fieldConditions:
			var conds []Condition
			if err := json.Unmarshal(v, &conds); err != nil {
				return Entry{}, fmt.Errorf("conditions: %w", err)
			}
			if conds == nil {
				conds = []Condition{}
			}
			e.Conditions = conds
		case fieldInverted:
			if err := json.Unmarshal(v, &e.Inverted); err != nil {
				return Entry{}, fmt.Errorf("inverted must be a boolean")
			}
		default:
			var on bool
			if err := json.Unmarshal(v, &on); err != nil {
				return Entry{}, fmt.Errorf("%s must be a boolean", k)
			}
			e.Flags[k] = on
		}
	}
	return e, nil
}

// Validate checks the form against the subject table and runs the condition
// validator on every conditional entry.
func (f Form) Validate() []ErrorDetail {
	var errs []ErrorDetail

	subjects := make([]string, 0, len(f))
	for sub := range f {
		subjects = append(subjects, string(sub))
	}
	sort.Strings(subjects)

	for _, name := range subjects {
		sub := Subject(name)
		spec := Lookup(sub)
		if spec == nil {
			errs = append(errs, ErrorDetail{
				Field:   "permissions." + name,
				Rule:    "unknown_subject",
				Message: fmt.Sprintf("Unknown permission subject: %s", name),
			})
			continue
		}
		for i, e := range f[sub] {
			prefix := fmt.Sprintf("permissions.%s.%d", name, i)

			flags := make([]string, 0, len(e.Flags))
			for flag := range e.Flags {
				flags = append(flags, flag)
			}
			sort.Strings(flags)
			for _, flag := range flags {
				if !spec.HasFlag(flag) {
					errs = append(errs, ErrorDetail{
						Field:   prefix + "." + flag,
						Rule:    "unknown_action",
						Message: fmt.Sprintf("Unknown action %s for %s", flag, spec.Title),
					})
				}
			}

			if !spec.Conditional {
				if len(e.Conditions) > 0 || e.Inverted {
					errs = append(errs, ErrorDetail{
						Field:   prefix,
						Rule:    "not_conditional",
						Message: fmt.Sprintf("%s does not support conditions", spec.Title),
					})
				}
				continue
			}

			for _, d := range ValidateConditions(e.Conditions) {
				d.Field = prefix + "." + d.Field
				errs = append(errs, d)
			}
		}
	}
	return errs
}
