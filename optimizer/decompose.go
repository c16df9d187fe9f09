package optimizer

import "sort"

// greedyLeaves decomposes v into the largest-power-of-two-first
// decomposition: repeatedly subtract the largest power of two not
// exceeding the remaining budget. This minimizes leaf count and is the
// unilateral-exit-maximizing target shape (multiplicity 0).
func greedyLeaves(v uint64) []uint64 {
	var out []uint64
	for v > 0 {
		p := highestPowerOfTwo(v)
		out = append(out, p)
		v -= p
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// highestPowerOfTwo returns the largest power of two <= v. v must be
// > 0.
func highestPowerOfTwo(v uint64) uint64 {
	var p uint64 = 1
	for p<<1 != 0 && p<<1 <= v {
		p <<= 1
	}
	return p
}

// powersOfTwoUpTo lists every power of two <= v, ascending.
func powersOfTwoUpTo(v uint64) []uint64 {
	var out []uint64
	for p := uint64(1); p <= v; p <<= 1 {
		out = append(out, p)
		if p == 1<<63 {
			break
		}
	}
	return out
}

// swapMinimizingLeaves produces the redundant, swap-minimizing target
// decomposition (multiplicity m>=1): for each power of two p <= v in
// ascending order, take up to m copies of p while the remaining
// budget allows, then greedy-decompose whatever residue is left. The
// redundancy means most outgoing payments of any of the represented
// denominations can be assembled by selection alone.
func swapMinimizingLeaves(v uint64, m uint32) []uint64 {
	if m == 0 {
		return greedyLeaves(v)
	}

	var out []uint64
	remaining := v
	for _, p := range powersOfTwoUpTo(v) {
		for copies := uint32(0); copies < m && p <= remaining; copies++ {
			out = append(out, p)
			remaining -= p
		}
	}
	out = append(out, greedyLeaves(remaining)...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// counter builds a value -> count multiset from a leaf value list.
func counter(values []uint64) map[uint64]int {
	c := make(map[uint64]int, len(values))
	for _, v := range values {
		c[v]++
	}
	return c
}

// distinctCount returns the number of distinct denominations in a
// leaf value list.
func distinctCount(values []uint64) int {
	return len(counter(values))
}

// sum totals a leaf value list.
func sum(values []uint64) uint64 {
	var total uint64
	for _, v := range values {
		total += v
	}
	return total
}

// shouldOptimize implements the two distinct trigger metrics:
// multiplicity 0 compares leaf-count shrinkage, multiplicity >=1
// compares distinct-denomination distance.
// These are genuinely different formulas, not one formula branching on
// a constant.
func shouldOptimize(current []uint64, options OptimizationOptions) bool {
	total := sum(current)
	if total == 0 {
		return false
	}

	if options.Multiplicity == 0 {
		target := greedyLeaves(total)
		return len(current) > 5*len(target)
	}

	target := swapMinimizingLeaves(total, options.Multiplicity)
	diff := distinctCount(current) - distinctCount(target)
	if diff < 0 {
		diff = -diff
	}
	return diff > 2
}

// multisetDiff expands the counter difference a-b into a sorted
// ascending value list, each entry repeated by its positive excess
// count in a over b.
func multisetDiff(a, b map[uint64]int) []uint64 {
	var out []uint64
	for v, countA := range a {
		excess := countA - b[v]
		for i := 0; i < excess; i++ {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Round is one atomic swap step: give up the leaves summing to
// Σgive, receive new leaves summing to the same total, Σgive ==
// Σreceive.
type Round struct {
	Give    []uint64
	Receive []uint64
}

// planRounds computes the give/receive multisets between the current
// leaf set and the target decomposition, then batches them into
// rounds no larger than maxLeavesPerSwap per side. Each emitted round keeps Σgive == Σreceive exactly: an
// oversized side is capped at maxLeavesPerSwap entries and its partner
// side is filled greedily from the sorted queue, splitting the last
// queue entry across rounds when an exact match would otherwise
// overshoot, so no round is ever unbalanced.
func planRounds(current []uint64, target []uint64, maxLeavesPerSwap uint32) []Round {
	give := multisetDiff(counter(current), counter(target))
	receive := multisetDiff(counter(target), counter(current))

	M := int(maxLeavesPerSwap)
	if M <= 0 {
		M = 1
	}

	var rounds []Round
	for len(give) > 0 || len(receive) > 0 {
		giveChunk, giveRest := takeChunk(give, M)
		give = giveRest
		giveSum := sum(giveChunk)

		receiveChunk, rest := fillToSum(receive, giveSum, M)
		receive = rest

		if len(giveChunk) == 0 && len(receiveChunk) == 0 {
			break
		}
		rounds = append(rounds, Round{Give: giveChunk, Receive: receiveChunk})
	}
	return rounds
}

// takeChunk removes up to n entries from the front of a sorted
// ascending queue and returns the chunk plus the remainder.
func takeChunk(queue []uint64, n int) ([]uint64, []uint64) {
	if n > len(queue) {
		n = len(queue)
	}
	chunk := append([]uint64(nil), queue[:n]...)
	return chunk, queue[n:]
}

// fillToSum greedily consumes entries from the front of queue until
// their running sum reaches target, capped at n entries. If the last
// consumed entry would overshoot target, it is split: the portion
// needed to reach target exactly stays in this chunk, and the
// remainder is pushed back onto the front of the returned queue for a
// later round.
func fillToSum(queue []uint64, target uint64, n int) ([]uint64, []uint64) {
	var chunk []uint64
	var running uint64
	i := 0
	for i < len(queue) && running < target && len(chunk) < n {
		v := queue[i]
		if running+v <= target {
			chunk = append(chunk, v)
			running += v
			i++
			continue
		}

		needed := target - running
		chunk = append(chunk, needed)
		running += needed
		remainder := v - needed
		rest := append([]uint64{remainder}, queue[i+1:]...)
		return chunk, rest
	}
	return chunk, queue[i:]
}
