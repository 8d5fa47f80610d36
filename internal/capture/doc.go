// Package capture collects a transcoder's streamed output into a
// single in-memory artifact.
//
// Its central rule is the dual-completion barrier: the artifact is
// assembled only after the consumer has drained the pipe to EOF AND
// the producer process has exited successfully. Both signals are
// required; the drain settles first because reaping the process tears
// its pipe down, and EOF cannot arrive before the producer has closed
// its end. Waiting on the logical AND is what makes the captured
// bytes trustworthy.
package capture
