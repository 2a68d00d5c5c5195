package permission

// RulesToForm converts engine rules into the role form. Rules without
// actions and rules for unknown subjects are skipped. Conditional subjects
// get one entry per rule; all other subjects are merged into a single entry
// whose flags are the OR of every matching rule.
func RulesToForm(rules []Rule) Form {
	form := Form{}

	for _, r := range rules {
		if len(r.Action) == 0 {
			continue
		}
		spec := Lookup(r.Subject)
		if spec == nil {
			continue
		}

		if spec.Conditional {
			flags := flagsFor(spec, r)
			if spec.LegacyDrop != nil && spec.LegacyDrop(flags) {
				continue
			}
			conds := []Condition{}
			if r.Conditions != nil {
				conds = r.Conditions.ToForm()
			}
			form[r.Subject] = append(form[r.Subject], Entry{
				Flags:      flags,
				Inverted:   r.Inverted,
				Conditions: conds,
			})
			continue
		}

		entries := form[r.Subject]
		if len(entries) == 0 {
			entries = []Entry{{Flags: emptyFlags(spec)}}
			form[r.Subject] = entries
		}
		merged := entries[0].Flags
		for _, f := range spec.Flags {
			if r.HasAction(f) {
				merged[f] = true
			}
		}
	}

	return form
}

// FormToRules converts the role form back into engine rules. Subjects are
// emitted in taxonomy order; unknown subjects are ignored.
func FormToRules(form Form) []Rule {
	rules := []Rule{}

	for i := range subjectTable {
		spec := &subjectTable[i]
		for _, e := range form[spec.Subject] {
			r := Rule{
				Subject: spec.Subject,
				Action:  e.Granted(spec),
			}
			if spec.Conditional {
				r.Inverted = e.Inverted
				r.Conditions = ConditionsFromForm(e.Conditions)
			}
			rules = append(rules, r)
		}
	}

	return rules
}

func emptyFlags(spec *SubjectSpec) map[string]bool {
	flags := make(map[string]bool, len(spec.Flags))
	for _, f := range spec.Flags {
		flags[f] = false
	}
	return flags
}

func flagsFor(spec *SubjectSpec, r Rule) map[string]bool {
	flags := emptyFlags(spec)
	for _, f := range spec.Flags {
		if r.HasAction(f) {
			flags[f] = true
		}
	}
	return flags
}
