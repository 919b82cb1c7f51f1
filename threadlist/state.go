package threadlist

import "fmt"

// State is the execution state of a managed thread. Only Runnable threads may
// run managed code; every other state is "suspended" from the point of view of
// a suspend request.
type State uint8

const (
	Terminated State = iota
	Runnable
	TimedWaiting
	Sleeping
	Blocked
	Waiting
	WaitingForGCThreadFlip
	WaitingForCheckpointsToRun
	WaitingPerformingGC
	WaitingForDebuggerSuspension
	Suspended
	Native
	Starting
)

var stateStrings = [...]string{
	Terminated:                   "Terminated",
	Runnable:                     "Runnable",
	TimedWaiting:                 "TimedWaiting",
	Sleeping:                     "Sleeping",
	Blocked:                      "Blocked",
	Waiting:                      "Waiting",
	WaitingForGCThreadFlip:       "WaitingForGCThreadFlip",
	WaitingForCheckpointsToRun:   "WaitingForCheckpointsToRun",
	WaitingPerformingGC:          "WaitingPerformingGC",
	WaitingForDebuggerSuspension: "WaitingForDebuggerSuspension",
	Suspended:                    "Suspended",
	Native:                       "Native",
	Starting:                     "Starting",
}

func (s State) String() string {
	if int(s) < len(stateStrings) {
		return stateStrings[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// SuspendReason says who asked for a suspension. Debugger suspensions are
// tracked separately so that a debugger can undo exactly its own requests.
type SuspendReason uint8

const (
	Internal SuspendReason = iota
	ForDebugger
)

func (r SuspendReason) String() string {
	switch r {
	case Internal:
		return "internal"
	case ForDebugger:
		return "debugger"
	default:
		return fmt.Sprintf("SuspendReason(%d)", uint8(r))
	}
}

// stateAndFlags packs a State in the low byte and request flags above it so
// that a state transition and a concurrent request can't both succeed.
type stateAndFlags uint32

const stateMask stateAndFlags = 0xff

const (
	flagSuspendRequest stateAndFlags = 1 << (8 + iota)
	flagCheckpointRequest
	flagEmptyCheckpointRequest
	flagActiveSuspendBarrier
)

func (sf stateAndFlags) state() State {
	return State(sf & stateMask)
}

func (sf stateAndFlags) withState(s State) stateAndFlags {
	return sf&^stateMask | stateAndFlags(s)
}

func (sf stateAndFlags) flags() stateAndFlags {
	return sf &^ stateMask
}
