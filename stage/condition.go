package stage

import "github.com/kmwllc/lucille-go/document"

// Operator selects how a Condition's field/value checks combine.
type Operator string

const (
	// Must requires at least one configured value to be present in at least
	// one configured field.
	Must Operator = "must"
	// MustNot requires that none of the configured values appear in any of
	// the configured fields.
	MustNot Operator = "must_not"
)

// Condition implements the conditional_fields / conditional_values /
// conditional_operator predicate every Stage may carry.
type Condition struct {
	Fields   []string
	Values   []string
	Operator Operator
}

// NewCondition builds a Condition, defaulting Operator to Must when empty.
func NewCondition(fields, values []string, op Operator) Condition {
	if op == "" {
		op = Must
	}
	return Condition{Fields: fields, Values: values, Operator: op}
}

// Test evaluates the condition against doc. With no configured fields, a
// Condition always matches (the Stage always runs).
func (c Condition) Test(doc *document.Document) bool {
	if len(c.Fields) == 0 {
		return true
	}
	found := c.anyValueInAnyField(doc)
	if c.Operator == MustNot {
		return !found
	}
	return found
}

func (c Condition) anyValueInAnyField(doc *document.Document) bool {
	for _, field := range c.Fields {
		values, ok := doc.GetStringList(field)
		if !ok {
			continue
		}
		for _, v := range values {
			for _, want := range c.Values {
				if v == want {
					return true
				}
			}
		}
	}
	return false
}
