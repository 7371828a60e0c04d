package exchange

import "errors"

// readonlyEventMethod is the well-known invocation method name a readonly
// shutdown notice carries, so the receiving side's event handling can
// distinguish it from a heartbeat (empty body) or a future unrelated
// event type without a dedicated wire flag.
const readonlyEventMethod = "dubbo.readonly"

var errNotConnected = errors.New("exchange: client has no active channel")
