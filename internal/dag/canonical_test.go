package dag

import (
	"encoding/json"
	"testing"
)

func TestCanonicalJSON(t *testing.T) {
	type items struct {
		Items []string `json:"items"`
	}
	cases := []struct {
		name  string
		input interface{}
		want  string
	}{
		{"sorted keys", map[string]interface{}{"b": 1, "a": 2}, `{"a":2,"b":1}`},
		{"nested", map[string]interface{}{
			"z": map[string]interface{}{"b": 1, "a": 2},
			"a": "first",
		}, `{"a":"first","z":{"a":2,"b":1}}`},
		{"arrays keep order", map[string]interface{}{"arr": []int{3, 1, 2}}, `{"arr":[3,1,2]}`},
		{"empty slice", items{Items: []string{}}, `{"items":[]}`},
		{"nil slice", items{}, `{"items":null}`},
		{"large integers", map[string]interface{}{"ts": int64(1700000000123), "tz": -480}, `{"ts":1700000000123,"tz":-480}`},
	}
	for _, tc := range cases {
		got, err := CanonicalJSON(tc.input)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if string(got) != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestCanonicalJSON_Deterministic(t *testing.T) {
	input := map[string]interface{}{
		"c": 3, "a": 1, "b": 2,
		"nested": map[string]interface{}{"z": true, "a": false},
	}
	first, _ := CanonicalJSON(input)
	for i := 0; i < 50; i++ {
		got, _ := CanonicalJSON(input)
		if string(got) != string(first) {
			t.Fatalf("non-deterministic on iteration %d:\n  first: %s\n  got:   %s", i, first, got)
		}
	}
}

func TestCanonicalJSON_RoundTrip(t *testing.T) {
	input := map[string]interface{}{"msg": "hello \"world\"\nnewline"}
	got, err := CanonicalJSON(input)
	if err != nil {
		t.Fatal(err)
	}
	var check map[string]interface{}
	if err := json.Unmarshal(got, &check); err != nil {
		t.Fatalf("output is not valid JSON: %s", got)
	}
	if check["msg"] != input["msg"] {
		t.Errorf("round-trip value mismatch: %v", check["msg"])
	}
}
