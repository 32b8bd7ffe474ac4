package micro

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/petrarca/nats-micro/bus"
)

// Handler processes a single request. Returning a non-nil error marks
// the request as failed: the endpoint records it and, when no reply
// has been sent yet, answers with a 500 error reply.
type Handler interface {
	Handle(*Request) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(*Request) error

func (fn HandlerFunc) Handle(req *Request) error {
	return fn(req)
}

// Errors returned by Request methods.
var (
	ErrRespond         = errors.New("sending response")
	ErrMarshalResponse = errors.New("marshaling response")
	ErrArgRequired     = errors.New("argument required")
)

// Request is a single in-flight request handed to a handler. It holds
// a non-owning handle to the underlying bus message.
type Request struct {
	msg *bus.Msg
	b   bus.Bus

	replied      bool
	respondError error
}

// RespondOpt configures a reply message.
type RespondOpt func(*bus.Msg)

// WithHeaders merges headers into the reply.
func WithHeaders(h bus.Header) RespondOpt {
	return func(m *bus.Msg) {
		if m.Header == nil {
			m.Header = bus.Header{}
		}
		for k, v := range h {
			m.Header[k] = v
		}
	}
}

// Data returns the request payload.
func (r *Request) Data() []byte { return r.msg.Data }

// Headers returns the request headers.
func (r *Request) Headers() bus.Header { return r.msg.Header }

// Subject returns the subject the request arrived on.
func (r *Request) Subject() string { return r.msg.Subject }

// Reply returns the reply subject, if any.
func (r *Request) Reply() string { return r.msg.Reply }

// Respond publishes data to the request's reply subject.
func (r *Request) Respond(data []byte, opts ...RespondOpt) error {
	if r.msg.Reply == "" {
		return ErrNoReplySubject
	}
	reply := &bus.Msg{Subject: r.msg.Reply, Data: data}
	for _, opt := range opts {
		opt(reply)
	}
	if err := r.b.PublishMsg(reply); err != nil {
		r.respondError = fmt.Errorf("%w: %s", ErrRespond, err)
		return r.respondError
	}
	r.replied = true
	return nil
}

// RespondJSON marshals v and responds with the result.
func (r *Request) RespondJSON(v any, opts ...RespondOpt) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMarshalResponse, err)
	}
	return r.Respond(data, opts...)
}

// Error publishes an error reply carrying code and description in the
// service-error headers. The code must be a positive decimal integer.
// An error reply counts as an error in the endpoint's statistics even
// though the publish itself succeeded.
func (r *Request) Error(code, description string, data []byte, opts ...RespondOpt) error {
	if code == "" {
		return fmt.Errorf("%w: error code", ErrArgRequired)
	}
	if n, err := strconv.Atoi(code); err != nil || n <= 0 {
		return fmt.Errorf("%w: error code %q must be a positive integer", ErrConfigValidation, code)
	}
	if description == "" {
		return fmt.Errorf("%w: description", ErrArgRequired)
	}
	if r.msg.Reply == "" {
		return ErrNoReplySubject
	}

	reply := &bus.Msg{
		Subject: r.msg.Reply,
		Data:    data,
		Header: bus.Header{
			ErrorHeader:     []string{description},
			ErrorCodeHeader: []string{code},
		},
	}
	for _, opt := range opts {
		opt(reply)
	}

	if err := r.b.PublishMsg(reply); err != nil {
		r.respondError = fmt.Errorf("%w: %s", ErrRespond, err)
		return r.respondError
	}
	r.replied = true
	r.respondError = &serviceError{code: code, description: description}
	return nil
}

// serviceError records that a handler answered with an error reply.
type serviceError struct {
	code        string
	description string
}

func (e *serviceError) Error() string {
	return e.description
}
