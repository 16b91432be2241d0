package proxy

import (
	"errors"
	"fmt"
)

// ErrTicketCaptured signals the deliberate stop after a ticket dump. It is
// not a fault: teardown treats it like any fatal exit, logging and the
// process owner treat it as "captured, stop the run".
var ErrTicketCaptured = errors.New("client ticket captured")

// HandshakeError reports that the upstream transport connection or TLS
// negotiation failed. The session never reaches Proxying when it occurs.
type HandshakeError struct {
	Addr string
	Err  error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("upstream handshake with %s failed: %v", e.Addr, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}
