package ot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransform_ConcurrentInsertsAtSamePosition(t *testing.T) {
	// Base "ab" at H1. Server committed insert("X",1) -> "aXb".
	// Client, still at H1, authored insert("Y",1).
	serverOps := []Operation{InsertOp("X", 1)}
	clientOps := []Operation{InsertOp("Y", 1)}

	rebased := Transform(clientOps, serverOps)
	require.Equal(t, []Operation{InsertOp("Y", 2)}, rebased)

	serverContent, err := Apply("ab", serverOps)
	require.NoError(t, err)
	require.Equal(t, "aXb", serverContent)

	merged, err := Apply(serverContent, rebased)
	require.NoError(t, err)
	assert.Equal(t, "aXYb", merged)
}

func TestTransform_ConcurrentDeleteAndInsert(t *testing.T) {
	// Base "hello". Server deleted position 0 length 1 -> "ello".
	// Client, from the same base, inserted "!" at position 5 (the end).
	serverOps := []Operation{DeleteOp(1, 0)}
	clientOps := []Operation{InsertOp("!", 5)}

	rebased := Transform(clientOps, serverOps)
	require.Equal(t, []Operation{InsertOp("!", 4)}, rebased)

	serverContent, err := Apply("hello", serverOps)
	require.NoError(t, err)
	require.Equal(t, "ello", serverContent)

	merged, err := Apply(serverContent, rebased)
	require.NoError(t, err)
	assert.Equal(t, "ello!", merged)
}

func TestTransform_DuplicateDeleteDropsClientOp(t *testing.T) {
	// Base "ab". Both A and B send delete(length=1, position=0).
	serverOps := []Operation{DeleteOp(1, 0)}
	clientOps := []Operation{DeleteOp(1, 0)}

	rebased := Transform(clientOps, serverOps)
	assert.Empty(t, rebased)

	serverContent, err := Apply("ab", serverOps)
	require.NoError(t, err)
	require.Equal(t, "b", serverContent)

	merged, err := Apply(serverContent, rebased)
	require.NoError(t, err)
	assert.Equal(t, serverContent, merged)
}

func TestTransform_ClientOpStrictlyBeforeServerOpsIsUnshifted(t *testing.T) {
	serverOps := []Operation{InsertOp("X", 5)}
	clientOps := []Operation{InsertOp("Y", 0)}

	rebased := Transform(clientOps, serverOps)
	assert.Equal(t, []Operation{InsertOp("Y", 0)}, rebased)
}

func TestTransform_ClientOpStrictlyAfterServerInsertIsShifted(t *testing.T) {
	serverOps := []Operation{InsertOp("XYZ", 0)}
	clientOps := []Operation{InsertOp("A", 3)}

	rebased := Transform(clientOps, serverOps)
	assert.Equal(t, []Operation{InsertOp("A", 6)}, rebased)
}

func TestTransform_ClientOpAfterServerDeleteIsShiftedNegative(t *testing.T) {
	serverOps := []Operation{DeleteOp(2, 0)}
	clientOps := []Operation{InsertOp("A", 5)}

	rebased := Transform(clientOps, serverOps)
	assert.Equal(t, []Operation{InsertOp("A", 3)}, rebased)
}

func TestTransform_NoServerOpsIsIdentity(t *testing.T) {
	clientOps := []Operation{InsertOp("A", 2), RetainOp(1, 3)}
	rebased := Transform(clientOps, nil)
	assert.Equal(t, clientOps, rebased)
}

func TestTransform_PropertySelfConsistencyOfBroadcastDelta(t *testing.T) {
	// For base b, client edit c = apply(b, C), server edit s = apply(b, S),
	// C' = transform(C, S), m = apply(s, C'), the delta diff(s, m)
	// re-applied to s reproduces m exactly.
	cases := []struct {
		base, clientText, serverText string
	}{
		{"ab", "aYb", "aXb"},
		{"hello", "hello!", "ello"},
		{"cat", "cart", "cats"},
		{"", "a", "b"},
	}
	for _, tc := range cases {
		clientOps := DiffToOps(Diff(tc.base, tc.clientText))
		serverOps := DiffToOps(Diff(tc.base, tc.serverText))

		rebased := Transform(clientOps, serverOps)
		merged, err := Apply(tc.serverText, rebased)
		require.NoError(t, err)

		delta := DiffToOps(Diff(tc.serverText, merged))
		reapplied, err := Apply(tc.serverText, delta)
		require.NoError(t, err)
		assert.Equal(t, merged, reapplied)
	}
}
