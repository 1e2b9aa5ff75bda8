package replica

import "errors"

// ErrClosed is the panic value of Write/Close calls that violate the
// immutable-after-close rule (see Write and Close): both are programmer
// errors, not conditions a caller can recover from.
var ErrClosed = errors.New("replica: segment already closed")

// ErrNonMonotonicOffset is the same classification as ErrClosed: a
// Write call with an offset behind the already-queued one is a
// programmer error.
var ErrNonMonotonicOffset = errors.New("replica: write offset must not move backward")
