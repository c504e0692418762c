package remote

import (
	"encoding/json"
	"strconv"
	"time"
)

// CondOp is a single-field comparison operator.
type CondOp string

const (
	OpEq    CondOp = "eq"
	OpNeq   CondOp = "neq"
	OpIn    CondOp = "in"
	OpIs    CondOp = "is" // null check: row field must be absent or nil
	OpIsNot CondOp = "isnot"
)

// Cond compares one row field against a literal.
type Cond struct {
	Field  string `json:"field"`
	Op     CondOp `json:"op"`
	Value  any    `json:"value,omitempty"`
	Values []any  `json:"values,omitempty"`
}

// Filter is a serializable predicate over rows: every condition in Conds
// must hold, and when Or is non-empty at least one branch must hold too.
// The zero Filter matches every row.
type Filter struct {
	Conds []Cond   `json:"conds,omitempty"`
	Or    []Filter `json:"or,omitempty"`
}

// Eq matches rows whose field equals value.
func Eq(field string, value any) Filter {
	return Filter{Conds: []Cond{{Field: field, Op: OpEq, Value: value}}}
}

// Neq matches rows whose field differs from value.
func Neq(field string, value any) Filter {
	return Filter{Conds: []Cond{{Field: field, Op: OpNeq, Value: value}}}
}

// In matches rows whose field equals any of values.
func In(field string, values ...any) Filter {
	return Filter{Conds: []Cond{{Field: field, Op: OpIn, Values: values}}}
}

// IsNull matches rows where the field is absent or nil.
func IsNull(field string) Filter {
	return Filter{Conds: []Cond{{Field: field, Op: OpIs}}}
}

// NotNull matches rows where the field is present and non-nil.
func NotNull(field string) Filter {
	return Filter{Conds: []Cond{{Field: field, Op: OpIsNot}}}
}

// And merges filters into one that requires all of them.
func And(filters ...Filter) Filter {
	out := Filter{}
	for _, f := range filters {
		out.Conds = append(out.Conds, f.Conds...)
		out.Or = append(out.Or, f.Or...)
	}
	return out
}

// Or builds a filter requiring at least one of the branches.
func Or(filters ...Filter) Filter {
	return Filter{Or: append([]Filter(nil), filters...)}
}

// IsZero reports whether the filter matches unconditionally.
func (f Filter) IsZero() bool {
	return len(f.Conds) == 0 && len(f.Or) == 0
}

// Match evaluates the filter against a row.
func (f Filter) Match(row Row) bool {
	for _, c := range f.Conds {
		if !c.match(row) {
			return false
		}
	}
	if len(f.Or) == 0 {
		return true
	}
	for _, branch := range f.Or {
		if branch.Match(row) {
			return true
		}
	}
	return false
}

func (c Cond) match(row Row) bool {
	value, present := row[c.Field]
	switch c.Op {
	case OpEq:
		return present && EqualValues(value, c.Value)
	case OpNeq:
		return !present || !EqualValues(value, c.Value)
	case OpIn:
		if !present {
			return false
		}
		for _, candidate := range c.Values {
			if EqualValues(value, candidate) {
				return true
			}
		}
		return false
	case OpIs:
		return !present || value == nil
	case OpIsNot:
		return present && value != nil
	default:
		return false
	}
}

// EqualValues compares two loosely-typed row values. JSON transport turns
// every number into float64 and every timestamp into an RFC 3339 string, so
// comparisons normalize across those representations.
func EqualValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		return bok && af == bf
	}
	if at, aok := asTime(a); aok {
		bt, bok := asTime(b)
		return bok && at.Equal(bt)
	}
	if as, aok := asString(a); aok {
		bs, bok := asString(b)
		return bok && as == bs
	}
	return a == b
}

// CompareValues orders two row values; it returns a negative number when
// a sorts before b. Used for order-by evaluation in the table stores.
func CompareValues(a, b any) int {
	if at, aok := asTime(a); aok {
		if bt, bok := asTime(b); bok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as, _ := asString(a)
	bs, _ := asString(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), true
	default:
		return "", false
	}
}
