package sandbox

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"
)

// Equal reports whether actual matches expected.
//
// Values match when they are structurally equal, with numbers compared by value.
// When orderInsensitive is set and both values are arrays, they also match if their
// elements form the same multiset.
func Equal(expected, actual json.RawMessage, orderInsensitive bool) bool {
	exp, err := decode(expected)
	if err != nil {
		return false
	}
	act, err := decode(actual)
	if err != nil {
		return false
	}
	if deepEqual(exp, act) {
		return true
	}
	if !orderInsensitive {
		return false
	}
	expList, ok1 := exp.([]any)
	actList, ok2 := act.([]any)
	if !ok1 || !ok2 || len(expList) != len(actList) {
		return false
	}
	return slices.Equal(sortedKeys(expList), sortedKeys(actList))
}

func decode(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func deepEqual(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case json.Number:
		bv, ok := b.(json.Number)
		return ok && numbersEqual(av, bv)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !deepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, ok := bv[k]
			if !ok || !deepEqual(v, other) {
				return false
			}
		}
		return true
	}
	return false
}

func numbersEqual(a, b json.Number) bool {
	if a == b {
		return true
	}
	af, err1 := strconv.ParseFloat(string(a), 64)
	bf, err2 := strconv.ParseFloat(string(b), 64)
	return err1 == nil && err2 == nil && af == bf
}

// sortedKeys renders each element canonically and sorts the result.
func sortedKeys(items []any) []string {
	keys := make([]string, len(items))
	for i, item := range items {
		data, err := json.Marshal(canonical(item))
		if err != nil {
			keys[i] = ""
			continue
		}
		keys[i] = string(data)
	}
	slices.Sort(keys)
	return keys
}

// canonical converts numbers to float64 so 1 and 1.0 encode the same way.
// encoding/json already sorts map keys.
func canonical(v any) any {
	switch tv := v.(type) {
	case json.Number:
		if f, err := strconv.ParseFloat(string(tv), 64); err == nil {
			return f
		}
		return string(tv)
	case []any:
		out := make([]any, len(tv))
		for i := range tv {
			out[i] = canonical(tv[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, item := range tv {
			out[k] = canonical(item)
		}
		return out
	}
	return v
}
