package rpc

import (
	"context"
	"encoding/json"

	"github.com/selimaj-dev/session-go/ws"
)

// Method is a compile-time descriptor binding a wire method name to its
// Request, Response, and Error payload types. It carries no state; it only
// exists so Request/OnRequest can be called without repeating the type
// parameters at every call site.
type Method[Req any, Res any, ErrT any] struct {
	Name string
}

// NewMethod declares a method descriptor for use with Request and
// OnRequest.
func NewMethod[Req any, Res any, ErrT any](name string) Method[Req, Res, ErrT] {
	return Method[Req, Res, ErrT]{Name: name}
}

// Request sends a `request` wire message for m and blocks until the
// matching `response`/`error` arrives or ctx is done. On cancellation the
// pending-request slot is discarded immediately; a reply that arrives later
// for this id is dropped by the receiver with nobody waiting on it.
func Request[Req any, Res any, ErrT any](ctx context.Context, s *Session, m Method[Req, Res, ErrT], req Req) (Res, error) {
	var zero Res

	data, err := json.Marshal(req)
	if err != nil {
		return zero, wrapJSON(err)
	}

	id := s.nextID()
	waiter := s.pending.register(id)

	if err := s.sendMessage(wireMessage{Type: typeRequest, ID: id, Method: m.Name, Data: data}); err != nil {
		s.pending.cancel(id)
		return zero, err
	}

	select {
	case result := <-waiter:
		if result.isError {
			var errVal ErrT
			if err := json.Unmarshal(result.payload, &errVal); err != nil {
				return zero, wrapJSON(err)
			}
			return zero, &RPCError[ErrT]{Value: errVal}
		}
		var res Res
		if err := json.Unmarshal(result.payload, &res); err != nil {
			return zero, wrapJSON(err)
		}
		return res, nil
	case <-ctx.Done():
		s.pending.cancel(id)
		return zero, ctx.Err()
	case <-s.done:
		s.pending.cancel(id)
		return zero, &ws.Error{Kind: ws.KindRecv, Cause: s.closeErr()}
	}
}

// RequestHandler is the signature a registered method handler implements.
// Returning ok=false suppresses any reply (e.g. the handler decided the
// request doesn't warrant one). A non-nil rpcErr sends an `error` wire
// message instead of a `response`.
type RequestHandler[Req any, Res any, ErrT any] func(ctx context.Context, id uint32, req Req) (res Res, rpcErr *ErrT, ok bool)

// OnRequest registers handler under m.Name, replacing any previous
// registration for the same name. The payload is decoded into Req before
// the handler runs; a decode failure suppresses the reply rather than
// calling the handler.
func OnRequest[Req any, Res any, ErrT any](s *Session, m Method[Req, Res, ErrT], handler RequestHandler[Req, Res, ErrT]) {
	s.registry.set(m.Name, func(ctx context.Context, id uint32, payload json.RawMessage) (json.RawMessage, bool, bool) {
		var req Req
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, false, false
		}

		res, rpcErr, ok := handler(ctx, id, req)
		if !ok {
			return nil, false, false
		}

		if rpcErr != nil {
			data, err := json.Marshal(*rpcErr)
			if err != nil {
				return nil, false, false
			}
			return data, true, true
		}

		data, err := json.Marshal(res)
		if err != nil {
			return nil, false, false
		}
		return data, false, true
	})
}

// Notify sends a `notification` wire message for method — fire and forget,
// no id, no reply ever expected.
func Notify[Data any](s *Session, method string, data Data) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return wrapJSON(err)
	}
	return s.sendMessage(wireMessage{Type: typeNotification, Method: method, Data: payload})
}

// OnNotification registers an observer for inbound notifications on method,
// symmetric to OnRequest. The source only ever dispatched requests;
// notifications were dropped silently. Replacing a prior registration under
// the same method name is allowed, same as OnRequest.
func OnNotification[Data any](s *Session, method string, handler func(data Data)) {
	s.notifications.set(method, func(payload json.RawMessage) {
		var data Data
		if err := json.Unmarshal(payload, &data); err != nil {
			return
		}
		handler(data)
	})
}
