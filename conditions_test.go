package permission

import (
	"errors"
	"testing"
)

func TestParsePredicate(t *testing.T) {
	p, err := ParsePredicate(`[{"field":"status","operator":"equals","value":"draft"}]`)
	if err != nil {
		t.Fatalf("parse array: %v", err)
	}
	if len(p.Clauses) != 1 {
		t.Fatalf("expected 1 clause, got %d", len(p.Clauses))
	}

	p, err = ParsePredicate(`{"field":"ownerId","operator":"equals","value":"$subject.id"}`)
	if err != nil {
		t.Fatalf("parse single object: %v", err)
	}
	if p.Clauses[0].Field != "ownerId" {
		t.Fatalf("unexpected clause: %+v", p.Clauses[0])
	}
}

func TestParsePredicateMalformed(t *testing.T) {
	cases := []string{
		``,
		`not json`,
		`[]`,
		`[{"operator":"equals","value":1}]`,
		`[{"field":"x","operator":"matches","value":1}]`,
	}
	for _, raw := range cases {
		if _, err := ParsePredicate(raw); !errors.Is(err, ErrMalformedConditions) {
			t.Fatalf("ParsePredicate(%q): expected ErrMalformedConditions, got %v", raw, err)
		}
	}
}

func TestPredicateEvaluate(t *testing.T) {
	subject := &SubjectContext{
		UserID:        "user-1",
		ActiveGroupID: "group-1",
		ResourceContext: map[string]any{
			"ownerId": "user-1",
			"status":  "Draft",
			"size":    float64(42),
			"tags":    []any{"internal", "beta"},
		},
	}

	eval := func(raw string) bool {
		t.Helper()
		p, err := ParsePredicate(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		return p.Evaluate(subject)
	}

	if !eval(`{"field":"ownerId","operator":"equals","value":"$subject.id"}`) {
		t.Fatalf("owner reference should resolve to the caller")
	}
	if eval(`{"field":"ownerId","operator":"equals","value":"user-2"}`) {
		t.Fatalf("different owner must fail")
	}
	if eval(`{"field":"status","operator":"equals","value":"draft"}`) {
		t.Fatalf("equals is case-sensitive by default")
	}
	if !eval(`{"field":"status","operator":"equals","value":"draft","case_sensitive":false}`) {
		t.Fatalf("case-insensitive equals should match")
	}
	if !eval(`{"field":"size","operator":"greater_than","value":40}`) {
		t.Fatalf("42 > 40")
	}
	if eval(`{"field":"size","operator":"less_than","value":40}`) {
		t.Fatalf("42 is not < 40")
	}
	if !eval(`{"field":"tags","operator":"contains","value":"beta"}`) {
		t.Fatalf("tags contain beta")
	}
	if !eval(`{"field":"status","operator":"in","value":["Draft","Review"]}`) {
		t.Fatalf("status is in the list")
	}
	if eval(`{"field":"missing","operator":"equals","value":"x"}`) {
		t.Fatalf("a missing field must fail the clause")
	}

	// clauses within one blob AND together
	both := `[{"field":"ownerId","operator":"equals","value":"$subject.id"},{"field":"status","operator":"equals","value":"Draft"}]`
	if !eval(both) {
		t.Fatalf("both clauses hold")
	}
	mixed := `[{"field":"ownerId","operator":"equals","value":"$subject.id"},{"field":"status","operator":"equals","value":"Published"}]`
	if eval(mixed) {
		t.Fatalf("one failing clause fails the predicate")
	}
}

func TestNilPredicateNeverSatisfied(t *testing.T) {
	var p *Predicate
	if p.Evaluate(&SubjectContext{UserID: "u"}) {
		t.Fatalf("nil predicate marks an unparseable grant and must never be satisfied")
	}
}
