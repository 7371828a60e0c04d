package transport

import "errors"

var (
	errClosed      = errors.New("channel closed")
	errTooManyConn = errors.New("accept limit exceeded")
)
