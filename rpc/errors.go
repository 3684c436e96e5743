package rpc

import (
	"fmt"

	"github.com/selimaj-dev/session-go/ws"
)

func wrapJSON(err error) error {
	return &ws.Error{Kind: ws.KindJSON, Cause: err}
}

// RPCError is the error returned by Request when the remote handler replied
// with an `error` wire message. ErrT is the method's declared error payload
// type.
type RPCError[ErrT any] struct {
	Value ErrT
}

func (e *RPCError[ErrT]) Error() string {
	return fmt.Sprintf("remote error: %+v", e.Value)
}
