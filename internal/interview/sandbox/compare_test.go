package sandbox

import (
	"encoding/json"
	"testing"
)

func TestEqual(t *testing.T) {
	cases := []struct {
		name             string
		expected, actual string
		orderInsensitive bool
		want             bool
	}{
		{name: "same list", expected: `[0,1]`, actual: `[0, 1]`, want: true},
		{name: "reversed strict", expected: `[0,1]`, actual: `[1,0]`, want: false},
		{name: "reversed tolerant", expected: `[0,1]`, actual: `[1,0]`, orderInsensitive: true, want: true},
		{name: "int vs float", expected: `2`, actual: `2.0`, want: true},
		{name: "nested lists tolerant", expected: `[[1,2],[3]]`, actual: `[[3],[1,2]]`, orderInsensitive: true, want: true},
		{name: "multiset differs", expected: `[1,1,2]`, actual: `[1,2,2]`, orderInsensitive: true, want: false},
		{name: "length differs", expected: `[1,2]`, actual: `[1,2,3]`, orderInsensitive: true, want: false},
		{name: "objects ignore key order", expected: `{"a":1,"b":[2]}`, actual: `{"b":[2],"a":1}`, want: true},
		{name: "string vs number", expected: `"1"`, actual: `1`, want: false},
		{name: "null", expected: `null`, actual: `null`, want: true},
		{name: "null vs list", expected: `[]`, actual: `null`, orderInsensitive: true, want: false},
		{name: "bools", expected: `true`, actual: `false`, want: false},
		{name: "invalid actual", expected: `1`, actual: `{`, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Equal(json.RawMessage(tc.expected), json.RawMessage(tc.actual), tc.orderInsensitive)
			if got != tc.want {
				t.Fatalf("Equal(%s, %s, %v) = %v, want %v", tc.expected, tc.actual, tc.orderInsensitive, got, tc.want)
			}
		})
	}
}
