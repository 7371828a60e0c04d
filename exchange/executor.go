package exchange

// Executor runs a pending call's completion. Request() accepts one so a
// caller can choose how its reply callback runs — a fresh goroutine, the
// caller's own thread via ThreadlessExecutor, or (in tests) inline.
type Executor interface {
	Execute(task func())
}

// GoroutineExecutor is the default: each completion runs on its own
// goroutine, matching how the teacher dispatches recvLoop callbacks
// (transport/client_transport.go's recvLoop writes directly to a buffered
// channel the caller's goroutine already owns; spawning a goroutine here
// gets the same non-blocking handoff when the caller isn't already
// parked on Get()).
type GoroutineExecutor struct{}

func (GoroutineExecutor) Execute(task func()) { go task() }

// InlineExecutor runs the completion synchronously on whatever goroutine
// the registry's Received/timeout path is running on. Useful in tests
// that want deterministic ordering.
type InlineExecutor struct{}

func (InlineExecutor) Execute(task func()) { task() }
