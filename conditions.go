package permission

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ============================================================================
// CONDITIONAL GRANTS
// ============================================================================

// Clause operators. Clauses inside one Conditions blob are AND-ed; OR is
// expressed by the admin creating multiple grant rows, which the resolver
// then ORs across.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpIn          = "in"
)

// Subject references usable as clause values, resolved against the caller at
// evaluation time.
const (
	RefSubjectID    = "$subject.id"
	RefSubjectGroup = "$subject.group_id"
)

// Clause is one field/operator/value predicate evaluated against the runtime
// resource context. CaseSensitive defaults to true when omitted and only
// affects string comparison for equals, not_equals and contains.
type Clause struct {
	Field         string `json:"field"`
	Operator      string `json:"operator"`
	Value         any    `json:"value"`
	CaseSensitive *bool  `json:"case_sensitive,omitempty"`
}

func (cl *Clause) caseSensitive() bool {
	return cl.CaseSensitive == nil || *cl.CaseSensitive
}

// Predicate is a parsed Conditions blob.
type Predicate struct {
	Clauses []Clause
}

// ParsePredicate parses a serialized Conditions blob: either a JSON array of
// clauses or a single clause object. A parse failure makes the owning grant
// permanently unsatisfiable; callers log it as a data-integrity warning and
// must never treat it as "condition absent".
func ParsePredicate(raw string) (*Predicate, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty blob", ErrMalformedConditions)
	}
	var clauses []Clause
	if err := json.Unmarshal([]byte(raw), &clauses); err != nil {
		var single Clause
		if err2 := json.Unmarshal([]byte(raw), &single); err2 != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedConditions, err)
		}
		clauses = []Clause{single}
	}
	if len(clauses) == 0 {
		return nil, fmt.Errorf("%w: no clauses", ErrMalformedConditions)
	}
	for i := range clauses {
		if clauses[i].Field == "" {
			return nil, fmt.Errorf("%w: clause %d missing field", ErrMalformedConditions, i)
		}
		switch clauses[i].Operator {
		case OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan, OpIn:
		default:
			return nil, fmt.Errorf("%w: clause %d operator %q", ErrMalformedConditions, i, clauses[i].Operator)
		}
	}
	return &Predicate{Clauses: clauses}, nil
}

// Evaluate applies every clause against the subject's resource context.
// A missing field, an incomparable pair or an unknown value all fail the
// clause: conditional grants deny unless proven satisfied.
func (p *Predicate) Evaluate(subject *SubjectContext) bool {
	if p == nil || subject == nil {
		return false
	}
	for i := range p.Clauses {
		if !evalClause(&p.Clauses[i], subject) {
			return false
		}
	}
	return true
}

func evalClause(cl *Clause, subject *SubjectContext) bool {
	have, ok := subject.ResourceContext[cl.Field]
	if !ok {
		return false
	}
	want := resolveRef(cl.Value, subject)

	switch cl.Operator {
	case OpEquals:
		return compareValues(have, want, cl.caseSensitive()) == 0
	case OpNotEquals:
		return compareValues(have, want, cl.caseSensitive()) != 0
	case OpContains:
		return containsValue(have, want, cl.caseSensitive())
	case OpGreaterThan:
		n1, ok1 := toFloat(have)
		n2, ok2 := toFloat(want)
		return ok1 && ok2 && n1 > n2
	case OpLessThan:
		n1, ok1 := toFloat(have)
		n2, ok2 := toFloat(want)
		return ok1 && ok2 && n1 < n2
	case OpIn:
		list, ok := want.([]any)
		if !ok {
			return false
		}
		for _, item := range list {
			if compareValues(have, resolveRef(item, subject), cl.caseSensitive()) == 0 {
				return true
			}
		}
		return false
	}
	return false
}

// resolveRef substitutes $subject.* references with the caller's identity.
func resolveRef(v any, subject *SubjectContext) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch s {
	case RefSubjectID:
		return subject.UserID
	case RefSubjectGroup:
		return subject.ActiveGroupID
	}
	return v
}

// compareValues orders two loosely typed values: 0 equal, -1/+1 ordered,
// and -1 for incomparable pairs (callers treat nonzero as "not equal").
func compareValues(a, b any, caseSensitive bool) int {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			if !caseSensitive {
				as, bs = strings.ToLower(as), strings.ToLower(bs)
			}
			return strings.Compare(as, bs)
		}
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af == bf:
				return 0
			case af < bf:
				return -1
			default:
				return 1
			}
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			if ab == bb {
				return 0
			}
			return -1
		}
	}
	return -1
}

func containsValue(have, want any, caseSensitive bool) bool {
	switch hv := have.(type) {
	case string:
		ws, ok := want.(string)
		if !ok {
			return false
		}
		if !caseSensitive {
			return strings.Contains(strings.ToLower(hv), strings.ToLower(ws))
		}
		return strings.Contains(hv, ws)
	case []any:
		for _, item := range hv {
			if compareValues(item, want, caseSensitive) == 0 {
				return true
			}
		}
	case []string:
		for _, item := range hv {
			if compareValues(item, want, caseSensitive) == 0 {
				return true
			}
		}
	}
	return false
}

// toFloat coerces JSON numbers and stringly typed numerics.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
