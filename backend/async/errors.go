package async

import "errors"

var (
	errNoDialer  = errors.New("async backend: nil dialer")
	errUnknownOp = errors.New("async backend: unknown command")
	errClosed    = errors.New("async backend: closed before handshake completed")
)
