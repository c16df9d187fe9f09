package optimizer

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGreedyLeavesMatchesVector(t *testing.T) {
	got := greedyLeaves(100)
	require.Equal(t, []uint64{4, 32, 64}, got)

	got255 := greedyLeaves(255)
	require.Len(t, got255, 8)
	require.EqualValues(t, 255, sum(got255))
	for _, v := range got255 {
		require.True(t, isPowerOfTwo(v))
	}
}

func TestGreedyLeavesSumsAndPowersOfTwo(t *testing.T) {
	for _, v := range []uint64{0, 1, 2, 3, 7, 1000, 1 << 20} {
		leaves := greedyLeaves(v)
		require.Equal(t, v, sum(leaves))
		for _, l := range leaves {
			require.True(t, isPowerOfTwo(l))
		}
	}
}

func TestSwapMinimizingLeavesSumsAndBoundsCopies(t *testing.T) {
	for m := uint32(0); m <= 5; m++ {
		for _, v := range []uint64{0, 1, 5, 100, 300, 1000} {
			leaves := swapMinimizingLeaves(v, m)
			require.Equal(t, v, sum(leaves), "m=%d v=%d", m, v)

			if m > 0 {
				counts := counter(leaves)
				for val, c := range counts {
					if isPowerOfTwo(val) {
						require.LessOrEqual(t, c, int(m)+1, "m=%d v=%d val=%d count=%d", m, v, val, c)
					}
				}
			}
		}
	}
}

func TestShouldOptimizeMultiplicityZeroTriggersOnShrinkage(t *testing.T) {
	ones := []uint64{1, 1, 1, 1, 1, 1, 1, 1}
	require.True(t, shouldOptimize(ones, OptimizationOptions{Multiplicity: 0, MaxLeavesPerSwap: 64}))
}

func TestShouldOptimizeMultiplicityTwoTriggersOnDenominationDistance(t *testing.T) {
	input := []uint64{100, 100, 100}
	require.True(t, shouldOptimize(input, OptimizationOptions{Multiplicity: 2, MaxLeavesPerSwap: 64}))
}

func TestShouldOptimizeFalseWhenAlreadyOptimal(t *testing.T) {
	optimal := greedyLeaves(1000)
	require.False(t, shouldOptimize(optimal, OptimizationOptions{Multiplicity: 0, MaxLeavesPerSwap: 64}))
}

func TestPlanRoundsClosedness(t *testing.T) {
	current := []uint64{1, 1, 1, 1, 1, 1, 1, 1}
	target := greedyLeaves(sum(current))

	rounds := planRounds(current, target, 64)

	var giveTotal, receiveTotal uint64
	for _, r := range rounds {
		require.Equal(t, sum(r.Give), sum(r.Receive), "round must balance")
		giveTotal += sum(r.Give)
		receiveTotal += sum(r.Receive)
	}
	require.Equal(t, giveTotal, receiveTotal)
}

func TestPlanRoundsRespectsMaxLeavesPerSwap(t *testing.T) {
	current := make([]uint64, 0, 40)
	for i := 0; i < 40; i++ {
		current = append(current, 1)
	}
	target := greedyLeaves(sum(current))

	rounds := planRounds(current, target, 4)
	for _, r := range rounds {
		require.LessOrEqual(t, len(r.Give), 4)
	}
}

func TestMultisetDiffOnlyKeepsExcess(t *testing.T) {
	a := counter([]uint64{1, 1, 2, 4})
	b := counter([]uint64{1, 4})

	diff := multisetDiff(a, b)
	sort.Slice(diff, func(i, j int) bool { return diff[i] < diff[j] })
	require.Equal(t, []uint64{1, 2}, diff)
}

func isPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}
