package mempool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ConfirmationEvent reports that a watched transaction reached its
// required confirmation depth.
type ConfirmationEvent struct {
	TxID        chainhash.Hash
	BlockHeight uint32
}

// confirmationRequest is a pending confirmation watch.
type confirmationRequest struct {
	txid       chainhash.Hash
	numConfs   uint32
	heightHint uint32

	confChan chan *ConfirmationEvent
	errChan  chan error

	cancel context.CancelFunc
}

// confirmationNotifier tracks pending confirmation watches and polls
// the backing client for each one's status.
type confirmationNotifier struct {
	client       *Client
	pollInterval time.Duration

	requests map[chainhash.Hash]*confirmationRequest
	mu       sync.RWMutex

	quit chan struct{}
	wg   sync.WaitGroup
}

func newConfirmationNotifier(client *Client, pollInterval time.Duration) *confirmationNotifier {
	return &confirmationNotifier{
		client:       client,
		pollInterval: pollInterval,
		requests:     make(map[chainhash.Hash]*confirmationRequest),
		quit:         make(chan struct{}),
	}
}

func (n *confirmationNotifier) Start() {
	n.wg.Add(1)
	go n.pollLoop()
}

func (n *confirmationNotifier) Stop() {
	close(n.quit)
	n.wg.Wait()

	n.mu.Lock()
	for _, req := range n.requests {
		req.cancel()
	}
	n.requests = make(map[chainhash.Hash]*confirmationRequest)
	n.mu.Unlock()
}

// Register starts watching txid for numConfs confirmations.
func (n *confirmationNotifier) Register(ctx context.Context, txid chainhash.Hash, numConfs, heightHint uint32) (*ConfirmationEvent, error) {
	confChan := make(chan *ConfirmationEvent, 1)
	errChan := make(chan error, 1)

	reqCtx, cancel := context.WithCancel(ctx)

	req := &confirmationRequest{
		txid:       txid,
		numConfs:   numConfs,
		heightHint: heightHint,
		confChan:   confChan,
		errChan:    errChan,
		cancel:     cancel,
	}

	n.mu.Lock()
	n.requests[txid] = req
	n.mu.Unlock()

	n.wg.Add(1)
	go n.monitorConfirmation(reqCtx, req)

	select {
	case event := <-confChan:
		return event, nil
	case err := <-errChan:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (n *confirmationNotifier) monitorConfirmation(ctx context.Context, req *confirmationRequest) {
	defer n.wg.Done()

	ticker := time.NewTicker(n.pollInterval)
	defer ticker.Stop()

	var txBlockHeight int64

	for {
		select {
		case <-ctx.Done():
			return
		case <-n.quit:
			return
		case <-ticker.C:
			tx, err := n.client.GetTransaction(ctx, req.txid.String())
			if err != nil {
				continue
			}
			if !tx.Status.Confirmed {
				continue
			}
			if txBlockHeight == 0 {
				txBlockHeight = tx.Status.BlockHeight
			}

			currentHeight, err := n.client.GetCurrentHeight(ctx)
			if err != nil {
				continue
			}

			confs := uint32(int64(currentHeight) - txBlockHeight + 1)
			if confs < req.numConfs {
				continue
			}

			select {
			case req.confChan <- &ConfirmationEvent{TxID: req.txid, BlockHeight: uint32(txBlockHeight)}:
			case <-ctx.Done():
				return
			case <-n.quit:
				return
			}

			n.mu.Lock()
			delete(n.requests, req.txid)
			n.mu.Unlock()

			return
		}
	}
}

func (n *confirmationNotifier) pollLoop() {
	defer n.wg.Done()

	<-n.quit
}

// epochNotifier fans out new-block-height notifications to every
// current subscriber.
type epochNotifier struct {
	client       *Client
	pollInterval time.Duration

	subscribers []epochSubscriber
	mu          sync.RWMutex

	lastHeight uint32

	quit chan struct{}
	wg   sync.WaitGroup
}

type epochSubscriber struct {
	blockChan chan int32
	errChan   chan error
	cancel    context.CancelFunc
}

func newEpochNotifier(client *Client, pollInterval time.Duration) *epochNotifier {
	return &epochNotifier{
		client:       client,
		pollInterval: pollInterval,
		quit:         make(chan struct{}),
	}
}

func (n *epochNotifier) Start() {
	n.wg.Add(1)
	go n.pollLoop()
}

func (n *epochNotifier) Stop() {
	close(n.quit)
	n.wg.Wait()

	n.mu.Lock()
	for _, sub := range n.subscribers {
		sub.cancel()
	}
	n.subscribers = nil
	n.mu.Unlock()
}

// Register subscribes to new-block-height notifications.
func (n *epochNotifier) Register(ctx context.Context) (chan int32, chan error) {
	blockChan := make(chan int32, 10)
	errChan := make(chan error, 1)

	_, cancel := context.WithCancel(ctx)

	n.mu.Lock()
	n.subscribers = append(n.subscribers, epochSubscriber{
		blockChan: blockChan,
		errChan:   errChan,
		cancel:    cancel,
	})
	n.mu.Unlock()

	return blockChan, errChan
}

func (n *epochNotifier) pollLoop() {
	defer n.wg.Done()

	ticker := time.NewTicker(n.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.quit:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			height, err := n.client.GetCurrentHeight(ctx)
			cancel()

			if err != nil {
				n.mu.RLock()
				for _, sub := range n.subscribers {
					select {
					case sub.errChan <- fmt.Errorf("mempool: get current height: %w", err):
					default:
					}
				}
				n.mu.RUnlock()
				continue
			}

			if height > n.lastHeight {
				n.mu.RLock()
				for _, sub := range n.subscribers {
					select {
					case sub.blockChan <- int32(height):
					default:
					}
				}
				n.mu.RUnlock()

				n.lastHeight = height
			}
		}
	}
}
