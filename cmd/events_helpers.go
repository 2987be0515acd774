package cmd

import "github.com/fastdown/fastdown/internal/engine/events"

// isTerminal reports whether kind always ends a task run (success or a
// failure), the point at which CLI commands waiting on a task's event
// stream should stop. KindPrefetch is not included: it ends a run only
// when its Err is set.
func isTerminal(kind events.Kind) bool {
	switch kind {
	case events.KindDone, events.KindError, events.KindAborted,
		events.KindClientBuildError, events.KindNoSameFile, events.KindPathError,
		events.KindPullerBuildError, events.KindPusherOpenError:
		return true
	default:
		return false
	}
}
