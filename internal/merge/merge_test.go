package merge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func c(values ...int) Merge[int] {
	return New(values)
}

func TestNew_RejectsEvenLength(t *testing.T) {
	assert.Panics(t, func() { New([]int{}) })
	assert.Panics(t, func() { New([]int{1, 2}) })
	assert.NotPanics(t, func() { New([]int{1, 2, 3}) })
}

func TestFromRemovesAdds(t *testing.T) {
	m := FromRemovesAdds([]int{1, 3}, []int{0, 2, 4})
	assert.Equal(t, []int{0, 1, 2, 3, 4}, m.Values())
	assert.Equal(t, []int{1, 3}, m.Removes())
	assert.Equal(t, []int{0, 2, 4}, m.Adds())
	assert.Equal(t, 3, m.NumSides())
	assert.Panics(t, func() { FromRemovesAdds([]int{1}, []int{0}) })
}

func TestResolved(t *testing.T) {
	m := Resolved("x")
	v, ok := m.AsResolved()
	require.True(t, ok)
	assert.Equal(t, "x", v)
	assert.True(t, m.IsResolved())

	_, ok = c(1, 2, 3).AsResolved()
	assert.False(t, ok)
}

func TestTrivialMerge(t *testing.T) {
	for _, sameChange := range []SameChange{SameChangeAccept, SameChangeKeep} {
		accept := sameChange == SameChangeAccept
		cases := []struct {
			values []int
			want   int
			ok     bool
		}{
			{[]int{0}, 0, true},
			{[]int{0, 0, 0}, 0, true},
			{[]int{0, 0, 1}, 1, true},
			{[]int{0, 1, 0}, 0, accept},
			{[]int{0, 1, 1}, 0, true},
			{[]int{0, 1, 2}, 0, false},
			{[]int{0, 0, 0, 0, 0}, 0, true},
			{[]int{0, 0, 0, 0, 1}, 1, true},
			{[]int{0, 0, 0, 1, 0}, 0, accept},
			{[]int{0, 0, 0, 1, 1}, 0, true},
			{[]int{0, 0, 0, 1, 2}, 0, false},
			{[]int{0, 0, 1, 0, 1}, 1, accept},
			{[]int{0, 0, 1, 1, 2}, 2, true},
			{[]int{0, 0, 1, 2, 0}, 0, false},
			{[]int{0, 0, 1, 2, 1}, 1, accept},
			{[]int{0, 1, 0, 1, 0}, 0, accept},
			{[]int{0, 1, 0, 2, 3}, 0, false},
			{[]int{0, 1, 1, 0, 2}, 2, true},
			{[]int{0, 1, 1, 1, 1}, 0, true},
		}
		for _, tc := range cases {
			got, ok := TrivialMerge(tc.values, sameChange)
			require.Equal(t, tc.ok, ok, "values=%v sameChange=%v", tc.values, sameChange)
			if ok {
				assert.Equal(t, tc.want, got, "values=%v sameChange=%v", tc.values, sameChange)
			}
		}
	}
}

func TestSimplify(t *testing.T) {
	cases := []struct {
		in, want []int
	}{
		{[]int{0}, []int{0}},
		{[]int{0, 0, 0}, []int{0}},
		{[]int{0, 0, 1}, []int{1}},
		{[]int{1, 0, 0}, []int{1}},
		{[]int{1, 0, 1}, []int{1, 0, 1}},
		{[]int{1, 0, 2}, []int{1, 0, 2}},
		{[]int{0, 0, 0, 1, 0}, []int{0, 1, 0}},
		{[]int{0, 0, 2, 1, 0}, []int{2, 1, 0}},
		{[]int{0, 1, 0, 0, 2}, []int{2, 1, 0}},
		{[]int{0, 1, 0, 2, 1}, []int{0, 2, 0}},
		{[]int{0, 1, 0, 1, 0}, []int{0, 1, 0, 1, 0}},
		{[]int{0, 1, 1, 1, 2}, []int{0, 1, 2}},
	}
	for _, tc := range cases {
		got := Simplify(New(tc.in))
		assert.Equal(t, tc.want, got.Values(), "in=%v", tc.in)
	}
}

func TestSimplifyFunc(t *testing.T) {
	m := New([]string{"a1", "a2", "b3"})
	got := SimplifyFunc(m, func(s string) byte { return s[0] })
	assert.Equal(t, []string{"b3"}, got.Values())
}

func TestUpdateFromSimplified(t *testing.T) {
	m := c(0, 1, 0, 2, 1)
	simplified := Simplify(m)
	require.Equal(t, []int{0, 2, 0}, simplified.Values())
	updated := UpdateFromSimplified(m, Map(simplified, func(v int) int { return v + 10 }))
	assert.Equal(t, []int{10, 1, 10, 12, 1}, updated.Values())
}

func TestFlatten(t *testing.T) {
	assert.Equal(t, []int{0}, Flatten(New([]Merge[int]{c(0)})).Values())
	assert.Equal(t, []int{0, 1, 2}, Flatten(New([]Merge[int]{c(0, 1, 2)})).Values())
	assert.Equal(t, []int{0, 1, 2}, Flatten(New([]Merge[int]{c(0), c(1), c(2)})).Values())
	assert.Equal(t,
		[]int{0, 1, 2, 5, 4, 3, 6, 7, 8},
		Flatten(New([]Merge[int]{c(0, 1, 2), c(3, 4, 5), c(6, 7, 8)})).Values())
}

func TestFlatten_KeepsArityInvariant(t *testing.T) {
	nested := New([]Merge[int]{c(1, 2, 3, 4, 5), c(6), c(7, 8, 9)})
	flat := Flatten(nested)
	assert.Equal(t, len(flat.Adds()), len(flat.Removes())+1)
}

func TestPadTo(t *testing.T) {
	x := PadTo(c(1), 3, 2)
	assert.Equal(t, []int{1, 2, 2, 2, 2}, x.Values())
	// No change if the requested size is smaller.
	assert.Equal(t, x.Values(), PadTo(x, 1, 3).Values())
	assert.Equal(t, []int{1, 0, 1, 2, 2}, PadTo(c(1, 0, 1), 3, 2).Values())
}

func TestMapAndTryMap(t *testing.T) {
	m := Map(c(1, 2, 3), func(v int) string { return string(rune('a' + v)) })
	assert.Equal(t, []string{"b", "c", "d"}, m.Values())

	_, err := TryMap(c(1, 2, 3), func(v int) (int, error) {
		if v == 2 {
			return 0, assert.AnError
		}
		return v, nil
	})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestJSON(t *testing.T) {
	data, err := json.Marshal(c(1, 2, 3))
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2,3]`, string(data))

	var m Merge[int]
	require.NoError(t, json.Unmarshal([]byte(`[4,5,6]`), &m))
	assert.Equal(t, []int{4, 5, 6}, m.Values())
	assert.Error(t, json.Unmarshal([]byte(`[4,5]`), &m))
}

func TestParseSameChange(t *testing.T) {
	got, err := ParseSameChange("keep")
	require.NoError(t, err)
	assert.Equal(t, SameChangeKeep, got)
	got, err = ParseSameChange("")
	require.NoError(t, err)
	assert.Equal(t, SameChangeAccept, got)
	_, err = ParseSameChange("bogus")
	assert.Error(t, err)
}
