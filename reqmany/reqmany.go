// Package reqmany implements the request-many pattern: one request
// fanned out on a subject, with replies collected from any number of
// responders until a time, count or inter-arrival bound is hit.
//
// The streaming Iterator is the primitive; Do drains it, so both
// forms share one termination algorithm.
package reqmany

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/petrarca/nats-micro/bus"
	"github.com/petrarca/nats-micro/pkg/x_log"
)

// DefaultMaxWait bounds a collection when no explicit deadline is
// given.
const DefaultMaxWait = 500 * time.Millisecond

// statusHeader carries transport status codes; the bus emits an empty
// 503 message on the reply subject when nobody subscribes to the
// request subject.
const (
	statusHeader       = "Status"
	noRespondersStatus = "503"
)

// Executor issues request-many calls over a shared bus.
type Executor struct {
	b       bus.Bus
	maxWait time.Duration
	log     x_log.Logger
}

// Opt configures an Executor.
type Opt func(*Executor)

// WithDefaultMaxWait replaces the executor-wide deadline default.
func WithDefaultMaxWait(d time.Duration) Opt {
	return func(e *Executor) {
		e.maxWait = d
	}
}

// New returns an Executor over b.
func New(b bus.Bus, opts ...Opt) *Executor {
	e := &Executor{
		b:       b,
		maxWait: DefaultMaxWait,
		log:     x_log.L().Named("reqmany"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ReqOpt configures a single call.
type ReqOpt func(*reqOpts)

type reqOpts struct {
	maxWait     time.Duration
	maxCount    int
	maxInterval time.Duration
	header      bus.Header
}

// MaxWait bounds the total collection time for this call.
func MaxWait(d time.Duration) ReqOpt {
	return func(o *reqOpts) { o.maxWait = d }
}

// MaxCount stops the collection after n replies.
func MaxCount(n int) ReqOpt {
	return func(o *reqOpts) { o.maxCount = n }
}

// MaxInterval stops the collection when no reply arrives for d after
// the previous one.
func MaxInterval(d time.Duration) ReqOpt {
	return func(o *reqOpts) { o.maxInterval = d }
}

// WithHeader attaches headers to the outgoing request.
func WithHeader(h bus.Header) ReqOpt {
	return func(o *reqOpts) { o.header = h }
}

// Do publishes the request and returns the collected replies in
// arrival order. Hitting any bound is normal termination, not an
// error; only subscribe/publish failures are errors.
func (e *Executor) Do(ctx context.Context, subject string, payload []byte, opts ...ReqOpt) ([]*bus.Msg, error) {
	it, err := e.Iterate(ctx, subject, payload, opts...)
	if err != nil {
		return nil, err
	}
	defer it.Stop()

	var msgs []*bus.Msg
	for {
		msg, ok := it.Next()
		if !ok {
			return msgs, nil
		}
		msgs = append(msgs, msg)
	}
}

// Iterate publishes the request and returns an Iterator yielding
// replies as they arrive. The caller must either drain it or call
// Stop; both release the inbox subscription.
func (e *Executor) Iterate(ctx context.Context, subject string, payload []byte, opts ...ReqOpt) (*Iterator, error) {
	o := reqOpts{maxWait: e.maxWait}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxWait <= 0 {
		o.maxWait = e.maxWait
	}

	inbox := e.b.NewInbox()

	// Buffered so slow consumers only stall the collection, never the
	// bus callback. Overflow is dropped and logged.
	raw := make(chan *bus.Msg, 512)
	sub, err := e.b.Subscribe(inbox, "", func(msg *bus.Msg) {
		select {
		case raw <- msg:
		default:
			e.log.Warnw("reply dropped, iterator backlog full", "subject", subject)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing reply inbox: %w", err)
	}

	req := &bus.Msg{Subject: subject, Reply: inbox, Data: payload, Header: o.header}
	if err := e.b.PublishMsg(req); err != nil {
		_ = sub.Unsubscribe()
		return nil, err
	}

	it := &Iterator{
		out:  make(chan *bus.Msg),
		stop: make(chan struct{}),
		sub:  sub,
	}
	go it.collect(ctx, raw, &o)
	return it, nil
}

// Iterator streams the replies of one request-many call.
type Iterator struct {
	out      chan *bus.Msg
	stop     chan struct{}
	stopOnce sync.Once
	sub      bus.Subscription
}

// Next blocks for the next reply. It returns false once the
// collection terminated, for whatever reason.
func (it *Iterator) Next() (*bus.Msg, bool) {
	msg, ok := <-it.out
	return msg, ok
}

// Stop abandons the collection and releases the subscription. Safe to
// call multiple times and concurrently with Next.
func (it *Iterator) Stop() {
	it.stopOnce.Do(func() {
		close(it.stop)
	})
}

// collect is the single termination algorithm. It owns the
// subscription and always releases it on exit.
func (it *Iterator) collect(ctx context.Context, raw <-chan *bus.Msg, o *reqOpts) {
	defer func() {
		_ = it.sub.Unsubscribe()
		close(it.out)
	}()

	deadline := time.NewTimer(o.maxWait)
	defer deadline.Stop()

	var interval *time.Timer
	defer func() {
		if interval != nil {
			interval.Stop()
		}
	}()
	intervalC := func() <-chan time.Time {
		if o.maxInterval <= 0 {
			return nil
		}
		if interval == nil {
			interval = time.NewTimer(o.maxInterval)
		} else {
			if !interval.Stop() {
				select {
				case <-interval.C:
				default:
				}
			}
			interval.Reset(o.maxInterval)
		}
		return interval.C
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-it.stop:
			return
		case <-deadline.C:
			return
		case <-intervalC():
			return
		case msg := <-raw:
			if len(msg.Data) == 0 && msg.Header.Get(statusHeader) == noRespondersStatus {
				return
			}
			select {
			case it.out <- msg:
			case <-ctx.Done():
				return
			case <-it.stop:
				return
			case <-deadline.C:
				return
			}
			count++
			if o.maxCount > 0 && count >= o.maxCount {
				return
			}
		}
	}
}
