package operator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testOperators(n int) []Operator {
	out := make([]Operator, n)
	for i := 0; i < n; i++ {
		out[i] = Operator{ID: uint32(i), Identifier: uint32(i) + 1}
	}
	return out
}

func TestNewPoolValidatesIdentifiers(t *testing.T) {
	ops := testOperators(3)
	ops[1].Identifier = 99

	_, err := NewPool(ops, 0)
	require.Error(t, err)
}

func TestPoolCoordinatorAndOrdering(t *testing.T) {
	ops := testOperators(4)
	pool, err := NewPool(ops, 2)
	require.NoError(t, err)

	require.Equal(t, uint32(2), pool.Coordinator().ID)
	require.Len(t, pool.AllOperators(), 4)
	require.Len(t, pool.NonCoordinatorOperators(), 3)

	for _, op := range pool.NonCoordinatorOperators() {
		require.NotEqual(t, uint32(2), op.ID)
	}

	op, err := pool.OperatorByIdentifier(3)
	require.NoError(t, err)
	require.Equal(t, uint32(2), op.ID)

	_, err = pool.OperatorByIdentifier(99)
	require.ErrorIs(t, err, ErrUnknownOperator)
}
