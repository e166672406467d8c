package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kadchain/blockchain/foundation/blockchain/state"
)

// mineBlock asks the state to produce the next block and proposes it to the
// network. The operation is cancelled when a peer block is accepted, and the
// function does not return until the caller of SignalCancelMining is done.
func (w *Worker) mineBlock() {

	// If mining is signalled to be cancelled by the ProcessProposedBlock
	// function, this G can't terminate until it is told it can.
	var wait chan struct{}
	defer func() {
		if wait != nil {
			w.evHandler("worker: mineBlock: MINING: termination signal: waiting")
			<-wait
			w.evHandler("worker: mineBlock: MINING: termination signal: received")
		}
	}()

	// Drain the cancel mining channel before starting.
	select {
	case <-w.cancelMining:
		w.evHandler("worker: mineBlock: MINING: drained cancel channel")
	default:
	}

	// Create a context so mining can be cancelled.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Can't return from this function until these G's are complete.
	var wg sync.WaitGroup
	wg.Add(2)

	// This G exists to cancel the mining operation.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		select {
		case wait = <-w.cancelMining:
			w.evHandler("worker: mineBlock: MINING: CANCEL: requested")
		case <-ctx.Done():
		}
	}()

	// This G is performing the mining.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		t := time.Now()
		block, err := w.state.MineNewBlock(ctx)
		duration := time.Since(t)

		w.evHandler("worker: mineBlock: MINING: mining duration[%v]", duration)

		if err != nil {
			switch {
			case errors.Is(err, state.ErrNoTransactions):
				w.evHandler("worker: mineBlock: MINING: WARNING: no transactions in mempool")
			case errors.Is(err, state.ErrNotSelected):
				w.evHandler("worker: mineBlock: MINING: %s", err)
			case ctx.Err() != nil:
				w.evHandler("worker: mineBlock: MINING: CANCEL: complete")
			default:
				w.evHandler("worker: mineBlock: MINING: ERROR: %s", err)
			}
			return
		}

		// WOW, we produced a block. Propose the new block to the network.
		// Log the error, but that's it.
		if err := w.state.NetSendBlockToPeers(block); err != nil {
			w.evHandler("worker: mineBlock: MINING: proposeBlockToPeers: WARNING %s", err)
		}
	}()

	// Wait for both G's to terminate.
	wg.Wait()
}
