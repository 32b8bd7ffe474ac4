package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/petrarca/nats-micro/pkg/x_log"
)

// natsBus adapts a nats.go connection to the Bus contract.
type natsBus struct {
	nc       *nats.Conn
	ownsConn bool
}

// Connect dials a NATS server and returns a Bus that owns the
// connection. Extra options are passed through to the client library.
func Connect(url string, opts ...nats.Option) (Bus, error) {
	connectOpts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(func(*nats.Conn) {
			x_log.L().Infow("reconnected", "url", url)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			x_log.L().Warnw("disconnected", "err", err)
		}),
	}
	connectOpts = append(connectOpts, opts...)

	nc, err := nats.Connect(url, connectOpts...)
	if err != nil {
		return nil, fmt.Errorf("bus: connect %q: %w", url, err)
	}
	return &natsBus{nc: nc, ownsConn: true}, nil
}

// Wrap returns a Bus over an existing connection. Close becomes a
// no-op; the caller keeps ownership.
func Wrap(nc *nats.Conn) Bus {
	return &natsBus{nc: nc}
}

func (b *natsBus) Publish(subject string, data []byte) error {
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("bus: publish %q: %w", subject, translate(err))
	}
	return nil
}

func (b *natsBus) PublishMsg(msg *Msg) error {
	if err := b.nc.PublishMsg(toNats(msg)); err != nil {
		return fmt.Errorf("bus: publish %q: %w", msg.Subject, translate(err))
	}
	return nil
}

func (b *natsBus) Subscribe(subject, queue string, cb func(*Msg), opts ...SubOpt) (Subscription, error) {
	var o subOpts
	for _, opt := range opts {
		opt(&o)
	}

	handler := func(m *nats.Msg) {
		cb(fromNats(m))
	}

	var (
		sub *nats.Subscription
		err error
	)
	if queue == "" {
		sub, err = b.nc.Subscribe(subject, handler)
	} else {
		sub, err = b.nc.QueueSubscribe(subject, queue, handler)
	}
	if err != nil {
		return nil, fmt.Errorf("bus: subscribe %q: %w", subject, translate(err))
	}

	if o.pendingMsgs > 0 || o.pendingBytes > 0 {
		msgs, bytes := o.pendingMsgs, o.pendingBytes
		if msgs == 0 {
			msgs = nats.DefaultSubPendingMsgsLimit
		}
		if bytes == 0 {
			bytes = nats.DefaultSubPendingBytesLimit
		}
		if err := sub.SetPendingLimits(msgs, bytes); err != nil {
			_ = sub.Unsubscribe()
			return nil, fmt.Errorf("bus: pending limits on %q: %w", subject, err)
		}
	}

	return &natsSubscription{sub: sub, nc: b.nc}, nil
}

func (b *natsBus) Request(ctx context.Context, subject string, data []byte, header Header, timeout time.Duration) (*Msg, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header(header)}
	resp, err := b.nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("bus: request %q: %w", subject, translate(err))
	}
	return fromNats(resp), nil
}

func (b *natsBus) NewInbox() string {
	return b.nc.NewInbox()
}

func (b *natsBus) Close() error {
	if !b.ownsConn {
		return nil
	}
	return b.nc.Drain()
}

type natsSubscription struct {
	sub *nats.Subscription
	nc  *nats.Conn
}

func (s *natsSubscription) Subject() string { return s.sub.Subject }

func (s *natsSubscription) Unsubscribe() error {
	if err := s.sub.Unsubscribe(); err != nil && !closedErr(err) {
		return fmt.Errorf("bus: unsubscribe %q: %w", s.sub.Subject, err)
	}
	return nil
}

func (s *natsSubscription) Drain() error {
	if !s.sub.IsValid() || s.nc.IsClosed() {
		return nil
	}
	if err := s.sub.Drain(); err != nil && !closedErr(err) {
		return fmt.Errorf("bus: drain %q: %w", s.sub.Subject, err)
	}
	return nil
}

func toNats(m *Msg) *nats.Msg {
	return &nats.Msg{
		Subject: m.Subject,
		Reply:   m.Reply,
		Data:    m.Data,
		Header:  nats.Header(m.Header),
	}
}

func fromNats(m *nats.Msg) *Msg {
	return &Msg{
		Subject: m.Subject,
		Reply:   m.Reply,
		Data:    m.Data,
		Header:  Header(m.Header),
	}
}

// translate maps client-library sentinels onto the bus sentinels so
// callers never import nats.go for error checks.
func translate(err error) error {
	switch {
	case errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, nats.ErrNoResponders):
		return ErrNoResponders
	case errors.Is(err, nats.ErrConnectionClosed):
		return ErrClosed
	default:
		return err
	}
}

func closedErr(err error) bool {
	return errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription)
}
