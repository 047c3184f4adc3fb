// Package throttle implements the ordered, table-driven rule engine that
// decides whether an incoming crash report is accepted, deferred, rejected,
// or fake-accepted.
//
// Each Rule is data, not a closure over hidden state: its Condition takes
// the throttler (solely to read the product allow-list) and either the
// whole annotation map (Key == "*") or a single coerced annotation value.
package throttle

import (
	"fmt"
	"math/rand/v2"
	"regexp"
)

// Decision is a throttle outcome.
type Decision int

const (
	Accept Decision = iota
	Defer
	Reject
	FakeAccept
	// Continue is only valid as one side of a Sample outcome; it means
	// "fall through to the next rule" rather than a terminal decision.
	Continue
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "ACCEPT"
	case Defer:
		return "DEFER"
	case Reject:
		return "REJECT"
	case FakeAccept:
		return "FAKEACCEPT"
	case Continue:
		return "CONTINUE"
	default:
		return "UNKNOWN"
	}
}

// Sample describes a probabilistic outcome: draw r uniformly in [0,100); if
// r <= Percent pick LE, else pick GT. Either side may be Continue.
type Sample struct {
	Percent int
	LE      Decision
	GT      Decision
}

// Outcome is either a terminal Decision or a Sample.
type Outcome struct {
	terminal bool
	decision Decision
	sample   Sample
}

// Terminal builds an Outcome that always resolves to d.
func Terminal(d Decision) Outcome {
	return Outcome{terminal: true, decision: d}
}

// SampleOutcome builds a probabilistic Outcome.
func SampleOutcome(percent int, le, gt Decision) Outcome {
	return Outcome{sample: Sample{Percent: percent, LE: le, GT: gt}}
}

// ConditionFunc evaluates a rule's predicate. value is the coerced text of
// the annotation named by the rule's Key, or unused when Key == "*" (in
// which case the condition should inspect annotations directly).
type ConditionFunc func(t *Throttler, annotations map[string]string, value string) bool

// AnyKey matches a rule whose condition inspects the entire annotation map.
const AnyKey = "*"

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Rule is an immutable, process-lifetime entry in the throttler's rule
// table.
type Rule struct {
	Name      string
	Key       string
	Condition ConditionFunc
	Outcome   Outcome
}

// NewRule constructs a Rule, rejecting malformed names.
func NewRule(name, key string, cond ConditionFunc, outcome Outcome) (Rule, error) {
	if !nameRe.MatchString(name) {
		return Rule{}, fmt.Errorf("throttle: invalid rule name %q", name)
	}
	return Rule{Name: name, Key: key, Condition: cond, Outcome: outcome}, nil
}

// MustNewRule is NewRule but panics on error; used by DefaultRules to build
// the mandated default rule set, where a malformed name is a programmer
// error, not a runtime condition.
func MustNewRule(name, key string, cond ConditionFunc, outcome Outcome) Rule {
	r, err := NewRule(name, key, cond, outcome)
	if err != nil {
		panic(err)
	}
	return r
}

// Result is the terminal outcome of evaluating a report's annotations.
type Result struct {
	Decision Decision
	RuleName string
	Percent  int
}

// Throttler holds an ordered rule set and a product allow-list. Both are
// read-only after construction; concurrent Evaluate calls need no
// synchronization.
type Throttler struct {
	Rules    []Rule
	Products []string

	// rand returns a float64 uniformly distributed in [0,1); overridable in
	// tests for deterministic sampling.
	rand func() float64
}

// New constructs a Throttler over the given rules and product allow-list.
func New(rules []Rule, products []string) *Throttler {
	return &Throttler{Rules: rules, Products: products, rand: rand.Float64}
}

// WithRand overrides the random source, for deterministic tests.
func (t *Throttler) WithRand(f func() float64) *Throttler {
	t.rand = f
	return t
}

// ProductAllowed reports whether product is in the configured allow-list.
// An empty allow-list permits every product.
func (t *Throttler) ProductAllowed(product string) bool {
	if len(t.Products) == 0 {
		return true
	}
	for _, p := range t.Products {
		if p == product {
			return true
		}
	}
	return false
}

// Evaluate walks the rule table in order and returns the first terminal
// result. If no rule produces one, the result is (REJECT, "NO_MATCH", 0).
func (t *Throttler) Evaluate(annotations map[string]string) Result {
	for _, rule := range t.Rules {
		var matched bool
		var value string
		if rule.Key == AnyKey {
			matched = rule.Condition(t, annotations, "")
		} else if v, ok := annotations[rule.Key]; ok {
			value = v
			matched = rule.Condition(t, annotations, value)
		} else {
			continue
		}

		if !matched {
			continue
		}

		if rule.Outcome.terminal {
			return Result{Decision: rule.Outcome.decision, RuleName: rule.Name, Percent: 100}
		}

		s := rule.Outcome.sample
		picked := s.GT
		if t.rand()*100 <= float64(s.Percent) {
			picked = s.LE
		}
		if picked == Continue {
			continue
		}
		return Result{Decision: picked, RuleName: rule.Name, Percent: s.Percent}
	}
	return Result{Decision: Reject, RuleName: "NO_MATCH", Percent: 0}
}
