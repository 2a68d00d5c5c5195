package permission

import (
	"fmt"
	"strings"
)

// ErrorDetail describes one validation failure.
type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

const (
	MsgDuplicateOperator = "Duplicate operator found for a condition"
	MsgInvalidSecretPath = "Invalid Secret Path. Must start with '/'"
	MsgUnknownOperator   = "Unknown condition operator"
)

// PathPrefix is the required first character of path-valued conditions.
const PathPrefix = "/"

// pathFields are condition fields whose values are secret paths.
var pathFields = map[string]bool{
	"secretPath": true,
}

// IsPathField reports whether conditions on field hold secret paths.
func IsPathField(field string) bool {
	return pathFields[field]
}

// ValidateConditions checks a form condition list. It returns nil when the
// list is acceptable.
func ValidateConditions(conds []Condition) []ErrorDetail {
	var errs []ErrorDetail

	seen := make(map[string]bool, len(conds))
	for i, c := range conds {
		if !c.Operator.Known() {
			errs = append(errs, ErrorDetail{
				Field:   fmt.Sprintf("conditions.%d.operator", i),
				Rule:    "unknown_operator",
				Message: MsgUnknownOperator,
			})
		}
		if c.RHS == "" {
			errs = append(errs, ErrorDetail{
				Field:   fmt.Sprintf("conditions.%d.rhs", i),
				Rule:    "required",
				Message: "Condition value is required",
			})
		}
		key := c.LHS + "-" + string(c.Operator)
		if seen[key] {
			errs = append(errs, ErrorDetail{
				Field:   "conditions",
				Rule:    "duplicate_operator",
				Message: MsgDuplicateOperator,
			})
		}
		seen[key] = true
	}

	for i, c := range conds {
		if !IsPathField(c.LHS) || c.Operator == OpGlob {
			continue
		}
		if !validPathValue(c) {
			errs = append(errs, ErrorDetail{
				Field:   fmt.Sprintf("conditions.%d.rhs", i),
				Rule:    "path_prefix",
				Message: MsgInvalidSecretPath,
			})
		}
	}

	return errs
}

func validPathValue(c Condition) bool {
	if c.Operator == OpIn {
		for _, el := range strings.Split(c.RHS, ",") {
			if !strings.HasPrefix(strings.TrimSpace(el), PathPrefix) {
				return false
			}
		}
		return true
	}
	return strings.HasPrefix(strings.TrimSpace(c.RHS), PathPrefix)
}
