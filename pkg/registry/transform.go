package registry

import (
	"strconv"
)

// Reducers understood by borrowed-transform tiers.
const (
	// ReducerDigitSum maps a numeric key to the sum of its digits, so "11"
	// borrows from "2" and "44" from "8".
	ReducerDigitSum = "digit-sum"
)

// BaseKey returns the identifier key whose content a borrowed tier reads for
// key. An explicit base map entry wins over the reducer. ok is false when the
// transform does not apply, including when it would map key onto itself.
func (t *Transform) BaseKey(key string) (string, bool) {
	if t == nil {
		return "", false
	}
	if base, found := t.Base[key]; found {
		return base, base != "" && base != key
	}
	switch t.Reducer {
	case ReducerDigitSum:
		base, ok := digitSum(key)
		if !ok || base == key {
			return "", false
		}
		return base, true
	default:
		return "", false
	}
}

// ReasonFor describes why base content stands in for key.
func (t *Transform) ReasonFor(key, base string) string {
	if t != nil && t.Reason != "" {
		return t.Reason
	}
	name := ""
	if t != nil {
		name = t.Name
	}
	if name == "" {
		name = "borrowed-transform"
	}
	return name + ": " + key + " falls back to " + base
}

func digitSum(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	sum := 0
	for _, r := range key {
		if r < '0' || r > '9' {
			return "", false
		}
		sum += int(r - '0')
	}
	return strconv.Itoa(sum), true
}
