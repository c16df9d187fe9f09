// Package optimizer periodically reshapes a wallet's leaf set into a
// denomination structure chosen for either minimal leaf count (fast
// unilateral exit) or maximal payment-without-swap coverage
// (redundant power-of-two copies), executing each reshaping round as
// an atomic swap.
package optimizer

import (
	"context"
	"fmt"
	"sync"

	"github.com/sparkwallet/spark/tree"
)

// EventKind discriminates the values Optimizer.Events delivers.
type EventKind uint8

const (
	EventStarted EventKind = iota
	EventRoundCompleted
	EventCompleted
	EventCancelled
	EventFailed
	EventSkipped
)

// Event is one lifecycle notification from a run. Total and Current
// are populated for EventStarted/EventRoundCompleted; Err is populated
// for EventFailed.
type Event struct {
	Kind    EventKind
	Current int
	Total   int
	Err     error
}

// Progress is the point-in-time observable state of a run.
type Progress struct {
	IsRunning    bool
	CurrentRound int
	TotalRounds  int
}

// Optimizer runs the leaf-reshaping lifecycle described in
// OptimizationOptions against a tree.Service and a Swapper. Only one
// run may be in flight at a time.
type Optimizer struct {
	cfg *Config

	mu       sync.Mutex
	running  bool
	progress Progress
	cancel   chan struct{}
	done     chan struct{}

	events chan Event
}

// New builds an Optimizer from cfg, defaulting and validating
// cfg.Options.
func New(cfg *Config) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Optimizer{
		cfg:    cfg,
		events: make(chan Event, 16),
	}, nil
}

// Events returns the channel lifecycle notifications are delivered
// on. The channel is never closed; callers select on it alongside
// their own shutdown signal.
func (o *Optimizer) Events() <-chan Event {
	return o.events
}

// Progress returns a snapshot of the current run's state.
func (o *Optimizer) Progress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

func (o *Optimizer) emit(ev Event) {
	select {
	case o.events <- ev:
	default:
		log.Warnf("optimizer event channel full, dropping %v", ev.Kind)
	}
}

// ShouldOptimize reports whether the wallet's currently available
// leaves warrant a run, per the multiplicity-specific trigger metric.
func (o *Optimizer) ShouldOptimize(ctx context.Context) (bool, error) {
	leaves, err := o.cfg.Tree.ListLeaves(ctx)
	if err != nil {
		return false, fmt.Errorf("optimizer: list leaves: %w", err)
	}
	values := valuesOf(leaves)
	return shouldOptimize(values, o.cfg.Options), nil
}

// Start begins a run in the background if one is not already in
// flight, and if the auto-trigger condition holds (unless force is
// true). It returns immediately; progress is observable via Progress
// and Events.
func (o *Optimizer) Start(ctx context.Context, force bool) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}

	if !force {
		should, err := o.ShouldOptimize(ctx)
		if err != nil {
			o.mu.Unlock()
			return err
		}
		if !should {
			o.mu.Unlock()
			o.emit(Event{Kind: EventSkipped})
			return nil
		}
	}

	o.running = true
	o.cancel = make(chan struct{})
	o.done = make(chan struct{})
	cancelCh := o.cancel
	doneCh := o.done
	o.mu.Unlock()

	go o.run(ctx, cancelCh, doneCh)
	return nil
}

// Cancel requests that the in-flight run stop after its current round
// finishes, and blocks until it has. Registering the wait channel
// before sending the cancellation signal avoids a missed wakeup if
// the round completes in the window between the running check and the
// wait.
func (o *Optimizer) Cancel() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return ErrNotRunning
	}
	cancelCh := o.cancel
	doneCh := o.done
	o.mu.Unlock()

	select {
	case <-doneCh:
		return nil
	default:
	}

	close(cancelCh)
	<-doneCh
	return nil
}

func (o *Optimizer) run(ctx context.Context, cancelCh, doneCh chan struct{}) {
	defer close(doneCh)
	defer func() {
		o.mu.Lock()
		o.running = false
		o.progress = Progress{}
		o.mu.Unlock()
	}()

	reservation, nodes, err := o.cfg.Tree.ReserveAll(ctx, tree.PurposeOptimization)
	if err != nil {
		o.emit(Event{Kind: EventFailed, Err: fmt.Errorf("reserve leaves: %w", err)})
		return
	}

	rounds := o.planFor(nodes)
	o.setProgress(Progress{IsRunning: true, CurrentRound: 0, TotalRounds: len(rounds)})
	o.emit(Event{Kind: EventStarted, Total: len(rounds)})

	available := append([]tree.Node(nil), nodes...)
	completed := 0
	for i, round := range rounds {
		select {
		case <-cancelCh:
			o.interrupt(ctx, reservation.ID, completed)
			return
		default:
		}

		consumed, err := o.executeRound(ctx, round, available)
		if err != nil {
			o.emit(Event{Kind: EventFailed, Err: err})
			o.interrupt(ctx, reservation.ID, completed)
			return
		}
		available = removeNodes(available, consumed)

		completed++
		o.setProgress(Progress{IsRunning: true, CurrentRound: completed, TotalRounds: len(rounds)})
		o.emit(Event{Kind: EventRoundCompleted, Current: completed, Total: len(rounds)})

		select {
		case <-cancelCh:
			if i < len(rounds)-1 {
				o.interrupt(ctx, reservation.ID, completed)
				return
			}
		default:
		}
	}

	if err := o.cfg.Tree.FinalizeReservation(ctx, reservation.ID); err != nil {
		o.emit(Event{Kind: EventFailed, Err: fmt.Errorf("finalize reservation: %w", err)})
		return
	}
	o.emit(Event{Kind: EventCompleted})
}

// interrupt implements the cancellation safety rule: zero completed rounds means the reservation
// is simply released; one or more completed rounds means local state
// may already be stale, so force a full refresh after releasing it.
func (o *Optimizer) interrupt(ctx context.Context, reservationID string, completedRounds int) {
	if err := o.cfg.Tree.CancelReservation(ctx, reservationID); err != nil {
		log.Warnf("cancel optimization reservation %s: %v", reservationID, err)
	}
	if completedRounds > 0 {
		if _, err := o.cfg.Tree.RefreshLeaves(ctx); err != nil {
			log.Warnf("refresh leaves after interrupted optimization: %v", err)
		}
	}
	o.emit(Event{Kind: EventCancelled})
}

func (o *Optimizer) setProgress(p Progress) {
	o.mu.Lock()
	o.progress = p
	o.mu.Unlock()
}

// planFor computes the target decomposition for nodes' total value and
// batches the give/receive multisets into rounds.
func (o *Optimizer) planFor(nodes []tree.Node) []Round {
	values := valuesOf(nodes)
	total := sum(values)

	var target []uint64
	if o.cfg.Options.Multiplicity == 0 {
		target = greedyLeaves(total)
	} else {
		target = swapMinimizingLeaves(total, o.cfg.Options.Multiplicity)
	}

	return planRounds(values, target, o.cfg.Options.MaxLeavesPerSwap)
}

// executeRound maps a Round's give denominations onto concrete leaf
// ids from the reserved, still-available node set and runs the swap,
// returning the leaves the swap consumed so the caller can remove them
// from the working set before planning the next round.
func (o *Optimizer) executeRound(ctx context.Context, round Round, available []tree.Node) ([]tree.Node, error) {
	consumed := selectNodesForValues(available, round.Give)

	if _, err := o.cfg.Swapper.SwapReserved(ctx, consumed); err != nil {
		return nil, fmt.Errorf("execute swap round: %w", err)
	}
	return consumed, nil
}

// selectNodesForValues picks, for each requested denomination, one
// not-yet-picked node carrying that value.
func selectNodesForValues(available []tree.Node, values []uint64) []tree.Node {
	remaining := make(map[uint64]int, len(values))
	for _, v := range values {
		remaining[v]++
	}

	var picked []tree.Node
	for _, n := range available {
		if remaining[n.Value] > 0 {
			picked = append(picked, n)
			remaining[n.Value]--
		}
	}
	return picked
}

// removeNodes returns available with every node in consumed removed,
// by id.
func removeNodes(available []tree.Node, consumed []tree.Node) []tree.Node {
	drop := make(map[string]bool, len(consumed))
	for _, n := range consumed {
		drop[n.ID] = true
	}
	out := available[:0:0]
	for _, n := range available {
		if !drop[n.ID] {
			out = append(out, n)
		}
	}
	return out
}

func valuesOf(nodes []tree.Node) []uint64 {
	out := make([]uint64, len(nodes))
	for i, n := range nodes {
		out[i] = n.Value
	}
	return out
}
