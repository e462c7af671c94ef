package agent

import "math/rand"

// Condition is the experiment-assigned combination of party and stance that
// selects which two profiles join a session.
type Condition string

const (
	DemocratSupport   Condition = "DS"
	DemocratOppose    Condition = "DO"
	RepublicanSupport Condition = "RS"
	RepublicanOppose  Condition = "RO"
)

// Conditions lists every valid condition code.
func Conditions() []Condition {
	return []Condition{DemocratSupport, DemocratOppose, RepublicanSupport, RepublicanOppose}
}

// ParseCondition accepts either the short code ("DS") or the long form
// ("Democrat-Support"). The second return reports whether the input mapped
// to a known condition.
func ParseCondition(raw string) (Condition, bool) {
	switch raw {
	case "DS", "Democrat-Support":
		return DemocratSupport, true
	case "DO", "Democrat-Oppose":
		return DemocratOppose, true
	case "RS", "Republican-Support":
		return RepublicanSupport, true
	case "RO", "Republican-Oppose":
		return RepublicanOppose, true
	}
	return "", false
}

// RandomCondition picks a valid condition uniformly. Used once per session
// when the surrounding form supplied no usable condition code.
func RandomCondition(r *rand.Rand) Condition {
	all := Conditions()
	return all[r.Intn(len(all))]
}

// Party returns the party both profiles share under this condition.
func (c Condition) Party() string {
	switch c {
	case DemocratSupport, DemocratOppose:
		return "Democrat"
	default:
		return "Republican"
	}
}

// Stance returns "support" or "oppose".
func (c Condition) Stance() string {
	switch c {
	case DemocratSupport, RepublicanSupport:
		return "support"
	default:
		return "oppose"
	}
}

// Valid reports whether c is one of the enumerated conditions.
func (c Condition) Valid() bool {
	_, ok := ParseCondition(string(c))
	return ok
}
