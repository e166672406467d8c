package worker

import (
	"time"
)

// CORE NOTE: The POS operation is managed by this function which runs on its
// own goroutine. The node starts a loop on a timer of the genesis cycle. At
// the beginning of each cycle the stake weighted selection is executed using
// the latest block and the number of cycles passed since it, which determines
// if this node proposes the next block. Every node runs the same selection
// against the same chain, so only one of them proposes in a cycle and the
// others validate the proposal against the block's timestamp. When the
// selected validator is offline the next cycle draws again.

// posOperations handles proposing blocks.
func (w *Worker) posOperations() {
	w.evHandler("worker: posOperations: G started")
	defer w.evHandler("worker: posOperations: G completed")

	cycle := w.state.RetrieveGenesis().Cycle()

	ticker := time.NewTicker(cycle)
	defer ticker.Stop()

	// Start this on a cycle mark: ex. MM.00, MM.12, MM.24, MM.36.
	resetTicker(ticker, cycle, cycle)

	for {
		select {
		case <-ticker.C:
			if !w.isShutdown() {
				w.runPosOperation()
			}
		case <-w.shut:
			w.evHandler("worker: posOperations: received shut signal")
			return
		}

		// Reset the ticker for the next cycle.
		resetTicker(ticker, cycle, cycle)
	}
}

// runPosOperation proposes a block when this node is the selected validator.
func (w *Worker) runPosOperation() {
	w.evHandler("worker: runPosOperation: started")
	defer w.evHandler("worker: runPosOperation: completed")

	// Validate we are allowed to mine and we are not in a resync.
	if !w.state.IsMiningAllowed() {
		w.evHandler("worker: runPosOperation: MINING: turned off")
		return
	}

	// Run the selection algorithm.
	validator, err := w.state.SelectedValidator()
	if err != nil {
		w.evHandler("worker: runPosOperation: selection: ERROR: %s", err)
		return
	}
	w.evHandler("worker: runPosOperation: SELECTED: %s", validator)

	// If we are not selected, return and wait for the new block.
	if validator != w.state.RetrieveBeneficiaryID() {
		return
	}

	// Make sure there are transactions in the mempool.
	length := w.state.QueryMempoolLength()
	if length == 0 {
		w.evHandler("worker: runPosOperation: MINING: no transactions to mine: Txs[%d]", length)
		return
	}

	w.mineBlock()
}

// =============================================================================

// resetTicker makes sure the next tick happens on the described cadence.
func resetTicker(ticker *time.Ticker, cycle time.Duration, waitOnSecond time.Duration) {
	nextTick := time.Now().Add(cycle).Round(waitOnSecond)
	diff := time.Until(nextTick)
	if diff <= 0 {
		diff = cycle
	}
	ticker.Reset(diff)
}
