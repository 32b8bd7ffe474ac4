// Package client discovers and inspects micro services over the
// control plane: PING, INFO and STATS fan out to every matching
// instance via the request-many pattern, and single instances can be
// addressed directly.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	micro "github.com/petrarca/nats-micro"
	"github.com/petrarca/nats-micro/bus"
	"github.com/petrarca/nats-micro/reqmany"
)

// ErrInvalidResponse is returned when a reply cannot be decoded into
// the expected descriptor or misses required fields.
var ErrInvalidResponse = errors.New("invalid service response")

// DefaultInstanceTimeout bounds direct per-instance requests.
const DefaultInstanceTimeout = 500 * time.Millisecond

// ServiceError is a reply whose headers carry a service error.
type ServiceError struct {
	Code        int
	Description string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service error %d: %s", e.Code, e.Description)
}

// Client queries the control plane of running services.
type Client struct {
	b      bus.Bus
	prefix string
	exec   *reqmany.Executor
}

// Opt configures a Client.
type Opt func(*Client)

// WithAPIPrefix overrides the control-plane subject prefix.
func WithAPIPrefix(prefix string) Opt {
	return func(c *Client) { c.prefix = prefix }
}

// WithDefaultMaxWait sets the default collection deadline for the
// fan-out calls.
func WithDefaultMaxWait(d time.Duration) Opt {
	return func(c *Client) {
		c.exec = reqmany.New(c.b, reqmany.WithDefaultMaxWait(d))
	}
}

// New returns a discovery client over b.
func New(b bus.Bus, opts ...Opt) *Client {
	c := &Client{
		b:      b,
		prefix: micro.APIPrefix,
		exec:   reqmany.New(b),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReqOpt configures one discovery call.
type ReqOpt func(*reqOpts)

type reqOpts struct {
	service     string
	maxWait     time.Duration
	maxCount    int
	maxInterval time.Duration
}

// ForService scopes the call to instances of one service.
func ForService(name string) ReqOpt {
	return func(o *reqOpts) { o.service = name }
}

// MaxWait bounds the total collection time.
func MaxWait(d time.Duration) ReqOpt {
	return func(o *reqOpts) { o.maxWait = d }
}

// MaxCount stops collecting after n replies.
func MaxCount(n int) ReqOpt {
	return func(o *reqOpts) { o.maxCount = n }
}

// MaxInterval stops collecting when replies dry up for d.
func MaxInterval(d time.Duration) ReqOpt {
	return func(o *reqOpts) { o.maxInterval = d }
}

// Ping pings all matching service instances.
func (c *Client) Ping(ctx context.Context, opts ...ReqOpt) ([]micro.Ping, error) {
	return collect(c, ctx, micro.PingVerb, decodePing, opts)
}

// Info fetches the info descriptors of all matching instances.
func (c *Client) Info(ctx context.Context, opts ...ReqOpt) ([]micro.Info, error) {
	return collect(c, ctx, micro.InfoVerb, decodeInfo, opts)
}

// Stats fetches the stats descriptors of all matching instances.
func (c *Client) Stats(ctx context.Context, opts ...ReqOpt) ([]micro.Stats, error) {
	return collect(c, ctx, micro.StatsVerb, decodeStats, opts)
}

// PingIter streams ping replies as they arrive.
func (c *Client) PingIter(ctx context.Context, opts ...ReqOpt) (*Iter[micro.Ping], error) {
	return iterate(c, ctx, micro.PingVerb, decodePing, opts)
}

// InfoIter streams info replies as they arrive.
func (c *Client) InfoIter(ctx context.Context, opts ...ReqOpt) (*Iter[micro.Info], error) {
	return iterate(c, ctx, micro.InfoVerb, decodeInfo, opts)
}

// StatsIter streams stats replies as they arrive.
func (c *Client) StatsIter(ctx context.Context, opts ...ReqOpt) (*Iter[micro.Stats], error) {
	return iterate(c, ctx, micro.StatsVerb, decodeStats, opts)
}

// Service returns a view with the service filter curried in.
func (c *Client) Service(name string) *ServiceView {
	return &ServiceView{client: c, service: name}
}

// Instance returns a handle for direct requests to one instance.
func (c *Client) Instance(service, id string) *Instance {
	return &Instance{client: c, service: service, id: id}
}

// Request sends a single request and translates service-error reply
// headers into a *ServiceError.
func (c *Client) Request(ctx context.Context, subject string, data []byte, header bus.Header, timeout time.Duration) (*bus.Msg, error) {
	resp, err := c.b.Request(ctx, subject, data, header, timeout)
	if err != nil {
		return nil, err
	}
	if code := resp.Header.Get(micro.ErrorCodeHeader); code != "" {
		var n int
		if _, err := fmt.Sscanf(code, "%d", &n); err != nil {
			return nil, fmt.Errorf("%w: bad error code %q", ErrInvalidResponse, code)
		}
		return nil, &ServiceError{Code: n, Description: resp.Header.Get(micro.ErrorHeader)}
	}
	return resp, nil
}

func (c *Client) subjectFor(verb micro.Verb, o *reqOpts) (string, []reqmany.ReqOpt, error) {
	subject, err := micro.ControlSubjectWithPrefix(c.prefix, verb, o.service, "")
	if err != nil {
		return "", nil, err
	}
	var ropts []reqmany.ReqOpt
	if o.maxWait > 0 {
		ropts = append(ropts, reqmany.MaxWait(o.maxWait))
	}
	if o.maxCount > 0 {
		ropts = append(ropts, reqmany.MaxCount(o.maxCount))
	}
	if o.maxInterval > 0 {
		ropts = append(ropts, reqmany.MaxInterval(o.maxInterval))
	}
	return subject, ropts, nil
}

// collect is the eager form: it drains the fan-out and decodes each
// reply. Malformed replies are skipped; if nothing decodes and at
// least one reply was malformed, the first decode error is returned.
func collect[T any](c *Client, ctx context.Context, verb micro.Verb, decode func([]byte) (T, error), opts []ReqOpt) ([]T, error) {
	var o reqOpts
	for _, opt := range opts {
		opt(&o)
	}
	subject, ropts, err := c.subjectFor(verb, &o)
	if err != nil {
		return nil, err
	}

	msgs, err := c.exec.Do(ctx, subject, nil, ropts...)
	if err != nil {
		return nil, err
	}

	results := make([]T, 0, len(msgs))
	var firstErr error
	for _, msg := range msgs {
		v, err := decode(msg.Data)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, v)
	}
	if len(results) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

func iterate[T any](c *Client, ctx context.Context, verb micro.Verb, decode func([]byte) (T, error), opts []ReqOpt) (*Iter[T], error) {
	var o reqOpts
	for _, opt := range opts {
		opt(&o)
	}
	subject, ropts, err := c.subjectFor(verb, &o)
	if err != nil {
		return nil, err
	}
	inner, err := c.exec.Iterate(ctx, subject, nil, ropts...)
	if err != nil {
		return nil, err
	}
	return &Iter[T]{inner: inner, decode: decode}, nil
}

// Iter streams decoded descriptors from a fan-out call. Malformed
// replies are skipped.
type Iter[T any] struct {
	inner  *reqmany.Iterator
	decode func([]byte) (T, error)
}

// Next blocks for the next decodable reply; false means the
// collection terminated.
func (it *Iter[T]) Next() (T, bool) {
	for {
		msg, ok := it.inner.Next()
		if !ok {
			var zero T
			return zero, false
		}
		v, err := it.decode(msg.Data)
		if err != nil {
			continue
		}
		return v, true
	}
}

// Stop abandons the stream and releases its subscription.
func (it *Iter[T]) Stop() {
	it.inner.Stop()
}

func decodePing(data []byte) (micro.Ping, error) {
	var p micro.Ping
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("%w: %s", ErrInvalidResponse, err)
	}
	if err := checkDescriptor(p.Type, micro.PingResponseType, p.ServiceIdentity); err != nil {
		return p, err
	}
	return p, nil
}

func decodeInfo(data []byte) (micro.Info, error) {
	var i micro.Info
	if err := json.Unmarshal(data, &i); err != nil {
		return i, fmt.Errorf("%w: %s", ErrInvalidResponse, err)
	}
	if err := checkDescriptor(i.Type, micro.InfoResponseType, i.ServiceIdentity); err != nil {
		return i, err
	}
	return i, nil
}

func decodeStats(data []byte) (micro.Stats, error) {
	var s micro.Stats
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("%w: %s", ErrInvalidResponse, err)
	}
	if err := checkDescriptor(s.Type, micro.StatsResponseType, s.ServiceIdentity); err != nil {
		return s, err
	}
	return s, nil
}

func checkDescriptor(typ, want string, id micro.ServiceIdentity) error {
	if typ != want {
		return fmt.Errorf("%w: type %q, want %q", ErrInvalidResponse, typ, want)
	}
	if id.Name == "" || id.ID == "" || id.Version == "" {
		return fmt.Errorf("%w: missing identity fields", ErrInvalidResponse)
	}
	return nil
}
