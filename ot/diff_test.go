package ot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff_IdenticalStringsIsEmpty(t *testing.T) {
	assert.Empty(t, Diff("same text", "same text"))
	assert.Empty(t, Diff("", ""))
}

func TestDiff_RoundTrip(t *testing.T) {
	cases := []struct{ a, b string }{
		{"cat", "cart"},
		{"hello", "ello"},
		{"", "hello"},
		{"hello", ""},
		{"ab", "aXb"},
		{"hello world", "goodbye world"},
	}
	for _, tc := range cases {
		entries := Diff(tc.a, tc.b)
		ops := DiffToOps(entries)
		got, err := Apply(tc.a, ops)
		require.NoError(t, err)
		assert.Equal(t, tc.b, got, "diff(%q,%q)", tc.a, tc.b)
	}
}

func TestDiff_CatToCart(t *testing.T) {
	entries := Diff("cat", "cart")
	want := []Entry{
		{Tag: Unchanged, Char: 'c'},
		{Tag: Unchanged, Char: 'a'},
		{Tag: Added, Char: 'r'},
		{Tag: Unchanged, Char: 't'},
	}
	assert.Equal(t, want, entries)
}

func TestDiff_EntriesPartitionBothInputs(t *testing.T) {
	a, b := "kitten", "sitting"
	entries := Diff(a, b)

	var left, right []byte
	for _, e := range entries {
		switch e.Tag {
		case Unchanged:
			left = append(left, e.Char)
			right = append(right, e.Char)
		case Removed:
			left = append(left, e.Char)
		case Added:
			right = append(right, e.Char)
		}
	}
	assert.Equal(t, a, string(left))
	assert.Equal(t, b, string(right))
}
