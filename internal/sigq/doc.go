// Package sigq supervises short-lived child processes and routes their
// termination to waiting goroutines through SIGCHLD rather than a blocking
// wait on every caller.
//
// A Supervisor owns three process-wide pieces of state: the ring of tracked
// elements, the child-signal mask that keeps the reaper from observing the
// ring mid-mutation, and the refcounted signal disposition table. Each
// tracked child is represented by an Element that is linked into the ring
// before the child exists, so a termination can never arrive for a child the
// reaper does not know about.
//
// Children are created by re-executing the host binary into a small shim
// (see reexec). The host must therefore call reexec.Init() before doing
// anything else in main, and test binaries must do the same from TestMain:
//
//	func main() {
//		if reexec.Init() {
//			return
//		}
//		...
//	}
//
// A child forked with ForkTracked stays blocked on its handshake pipe until
// the owner calls Wait on the same element. Forking without a following Wait
// leaves the child blocked forever; this is caller misuse and is not
// corrected automatically.
package sigq
