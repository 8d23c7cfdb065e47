package jobs

import "github.com/fabworks-io/fabworks/internal/queue"

// StatusOf maps a queue state to the caller-facing status. Paused jobs
// report as pending: callers only care that the job has not started.
// Unrecognized states also degrade to pending.
func StatusOf(state queue.State) Status {
	switch state {
	case queue.StateWaiting, queue.StatePaused:
		return StatusPending
	case queue.StateActive:
		return StatusProcessing
	case queue.StateCompleted:
		return StatusCompleted
	case queue.StateFailed:
		return StatusFailed
	case queue.StateDelayed:
		return StatusDelayed
	case queue.StateStuck:
		return StatusStuck
	default:
		return StatusPending
	}
}

// StateOf maps a caller-facing status back to the queue state used for
// listing. Stalled jobs live in the failed set; stuck and unrecognized
// statuses fall back to waiting.
func StateOf(status Status) queue.State {
	switch status {
	case StatusPending:
		return queue.StateWaiting
	case StatusProcessing:
		return queue.StateActive
	case StatusCompleted:
		return queue.StateCompleted
	case StatusFailed, StatusStalled:
		return queue.StateFailed
	case StatusDelayed:
		return queue.StateDelayed
	case StatusStuck:
		return queue.StateWaiting
	default:
		return queue.StateWaiting
	}
}
