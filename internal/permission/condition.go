package permission

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Operator is a condition comparison operator in the engine's rule format.
type Operator string

const (
	OpEq    Operator = "$eq"
	OpNe    Operator = "$ne"
	OpIn    Operator = "$in"
	OpAll   Operator = "$all"
	OpGlob  Operator = "$glob"
	OpRegex Operator = "$regex"
)

var operatorRank = map[Operator]int{OpEq: 0, OpNe: 1, OpIn: 2, OpAll: 3, OpGlob: 4, OpRegex: 5}

// IsList reports whether the operator takes a set of values.
func (o Operator) IsList() bool {
	return o == OpIn || o == OpAll
}

// Known reports whether the operator is one the engine understands.
func (o Operator) Known() bool {
	_, ok := operatorRank[o]
	return ok
}

// Condition is the flat form representation of a single condition.
type Condition struct {
	Operator Operator `json:"operator"`
	LHS      string   `json:"lhs"`
	RHS      string   `json:"rhs"`
}

// Operand is the right-hand side of a condition in the engine format: either
// a single string or a list of strings.
type Operand struct {
	Value string
	Items []string
}

// StringOperand returns a scalar operand.
func StringOperand(v string) Operand { return Operand{Value: v} }

// ListOperand returns a list operand.
func ListOperand(items ...string) Operand {
	if items == nil {
		items = []string{}
	}
	return Operand{Items: items}
}

// IsList reports whether the operand holds a list.
func (o Operand) IsList() bool { return o.Items != nil }

// String renders the operand as it appears in the form: lists are joined
// with commas.
func (o Operand) String() string {
	if o.IsList() {
		return strings.Join(o.Items, ",")
	}
	return o.Value
}

func (o Operand) MarshalJSON() ([]byte, error) {
	if o.IsList() {
		return json.Marshal(o.Items)
	}
	return json.Marshal(o.Value)
}

func (o *Operand) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*o = Operand{Value: s}
		return nil
	}
	var items []string
	if err := json.Unmarshal(b, &items); err != nil {
		return fmt.Errorf("condition operand must be a string or a list of strings")
	}
	*o = ListOperand(items...)
	return nil
}

// FieldCondition holds every operator applied to one field.
type FieldCondition map[Operator]Operand

// UnmarshalJSON accepts the engine's shorthand, where a bare string means $eq.
func (f *FieldCondition) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FieldCondition{OpEq: StringOperand(s)}
		return nil
	}
	var m map[Operator]Operand
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("field condition: %w", err)
	}
	*f = m
	return nil
}

// Conditions is the engine's nested condition map, keyed by field name.
type Conditions map[string]FieldCondition

// sortedOperators returns the operators of a field in a stable order.
func (f FieldCondition) sortedOperators() []Operator {
	ops := make([]Operator, 0, len(f))
	for op := range f {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool {
		ri, iok := operatorRank[ops[i]]
		rj, jok := operatorRank[ops[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return ops[i] < ops[j]
		}
	})
	return ops
}

// ToForm flattens the condition map into the form's operator list, ordered
// by field name and then operator.
func (c Conditions) ToForm() []Condition {
	fields := make([]string, 0, len(c))
	for field := range c {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	out := make([]Condition, 0, len(c))
	for _, field := range fields {
		fc := c[field]
		for _, op := range fc.sortedOperators() {
			out = append(out, Condition{Operator: op, LHS: field, RHS: fc[op].String()})
		}
	}
	return out
}

// ConditionsFromForm builds the engine's condition map from the form list.
// Operators on the same field are merged into one entry; $in and $all values
// are split on commas without trimming.
func ConditionsFromForm(list []Condition) Conditions {
	out := make(Conditions, len(list))
	for _, c := range list {
		fc, ok := out[c.LHS]
		if !ok {
			fc = FieldCondition{}
			out[c.LHS] = fc
		}
		if c.Operator.IsList() {
			fc[c.Operator] = ListOperand(splitList(c.RHS)...)
			continue
		}
		fc[c.Operator] = StringOperand(c.RHS)
	}
	return out
}

// splitList splits a form list value on commas. Elements are kept verbatim
// so a rule list survives the trip through the form unchanged.
func splitList(s string) []string {
	return strings.Split(s, ",")
}
