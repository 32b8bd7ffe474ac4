package micro

import (
	"fmt"

	"github.com/petrarca/nats-micro/bus"
)

// Endpoint is a named, subject-bound handler owned by a Service.
type Endpoint struct {
	EndpointConfig
	Name string

	service *Service
	stats   EndpointStats
	sub     bus.Subscription
}

// EndpointConfig holds the resolved configuration of an endpoint.
type EndpointConfig struct {
	Subject           string            `json:"subject"`
	Handler           Handler           `json:"-"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	QueueGroup        string            `json:"queue_group"`
	PendingMsgsLimit  int               `json:"-"`
	PendingBytesLimit int               `json:"-"`
}

// EndpointOpt customizes AddEndpoint.
type EndpointOpt func(*endpointOpts) error

type endpointOpts struct {
	subject      string
	metadata     map[string]string
	queueGroup   string
	pendingMsgs  int
	pendingBytes int
	middleware   []Middleware
}

// WithEndpointSubject overrides the subject, which defaults to the
// endpoint name.
func WithEndpointSubject(subject string) EndpointOpt {
	return func(o *endpointOpts) error {
		o.subject = subject
		return nil
	}
}

// WithEndpointQueueGroup overrides the inherited queue group.
func WithEndpointQueueGroup(queueGroup string) EndpointOpt {
	return func(o *endpointOpts) error {
		o.queueGroup = queueGroup
		return nil
	}
}

// WithEndpointMetadata attaches metadata, visible in INFO replies.
func WithEndpointMetadata(metadata map[string]string) EndpointOpt {
	return func(o *endpointOpts) error {
		o.metadata = metadata
		return nil
	}
}

// WithEndpointPendingLimits caps the subscription's pending counts,
// overriding the service-wide defaults.
func WithEndpointPendingLimits(msgs, bytes int) EndpointOpt {
	return func(o *endpointOpts) error {
		o.pendingMsgs = msgs
		o.pendingBytes = bytes
		return nil
	}
}

// WithEndpointMiddleware wraps the handler, outermost first.
func WithEndpointMiddleware(mw ...Middleware) EndpointOpt {
	return func(o *endpointOpts) error {
		o.middleware = append(o.middleware, mw...)
		return nil
	}
}

// addEndpoint validates, subscribes and registers an endpoint under
// subject with the effective queue group. Callers resolved both from
// any enclosing group already.
func (s *Service) addEndpoint(name, subject string, handler Handler, queueGroup string, o *endpointOpts) error {
	if handler == nil {
		return fmt.Errorf("%w: handler", ErrArgRequired)
	}
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("%w: invalid endpoint name %q", ErrConfigValidation, name)
	}
	if !subjectRegexp.MatchString(subject) || subject == "" {
		return fmt.Errorf("%w: invalid endpoint subject %q", ErrConfigValidation, subject)
	}
	if !subjectRegexp.MatchString(queueGroup) || queueGroup == "" {
		return fmt.Errorf("%w: invalid queue group %q", ErrConfigValidation, queueGroup)
	}

	// Endpoint middleware wraps the handler first so the service-wide
	// middleware runs outermost.
	for i := len(o.middleware) - 1; i >= 0; i-- {
		handler = o.middleware[i](handler)
	}
	for i := len(s.cfg.Middleware) - 1; i >= 0; i-- {
		handler = s.cfg.Middleware[i](handler)
	}

	metadata := o.metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	pendingMsgs := o.pendingMsgs
	if pendingMsgs == 0 {
		pendingMsgs = s.cfg.PendingMsgsLimitByEndpoint
	}
	pendingBytes := o.pendingBytes
	if pendingBytes == 0 {
		pendingBytes = s.cfg.PendingBytesLimitByEndpoint
	}

	ep := &Endpoint{
		Name:    name,
		service: s,
		EndpointConfig: EndpointConfig{
			Subject:           subject,
			Handler:           handler,
			Metadata:          metadata,
			QueueGroup:        queueGroup,
			PendingMsgsLimit:  pendingMsgs,
			PendingBytesLimit: pendingBytes,
		},
		stats: EndpointStats{
			Name:       name,
			Subject:    subject,
			QueueGroup: queueGroup,
		},
	}

	s.m.Lock()
	defer s.m.Unlock()

	if s.state != stateStarted {
		return ErrServiceStopped
	}
	for _, existing := range s.endpoints {
		if existing.Name == name {
			return fmt.Errorf("%w: %q", ErrDuplicateEndpoint, name)
		}
	}

	sub, err := s.bus.Subscribe(subject, queueGroup, func(msg *bus.Msg) {
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.dispatch(ep, msg)
		}()
	}, bus.WithPendingLimits(ep.PendingMsgsLimit, ep.PendingBytesLimit))
	if err != nil {
		return fmt.Errorf("subscribing endpoint %q: %w", name, err)
	}

	ep.sub = sub
	s.endpoints = append(s.endpoints, ep)

	s.log.Infow("endpoint added",
		"service", s.cfg.Name, "name", name,
		"subject", subject, "queue_group", queueGroup)
	return nil
}

// dispatch runs the handler for one message and settles statistics.
// It runs on its own goroutine; two requests for the same endpoint may
// be in flight at once.
func (s *Service) dispatch(ep *Endpoint, msg *bus.Msg) {
	req := &Request{msg: msg, b: s.bus}

	start := s.cfg.Now()
	err := safeHandle(ep.Handler, req)
	elapsed := s.cfg.Now().Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}

	if err != nil && !req.replied {
		if rerr := req.Error("500", err.Error(), nil); rerr != nil {
			s.log.Errorw("sending unhandled-error reply",
				"service", s.cfg.Name, "endpoint", ep.Name, "err", rerr)
		}
	}

	s.m.Lock()
	defer s.m.Unlock()

	ep.stats.NumRequests++
	ep.stats.ProcessingTime += elapsed
	if err != nil {
		ep.stats.NumErrors++
		ep.stats.LastError = truncateError(err.Error())
	} else if req.respondError != nil {
		ep.stats.NumErrors++
		ep.stats.LastError = truncateError(req.respondError.Error())
	}
}

// safeHandle invokes the handler, converting a panic into an error.
func safeHandle(h Handler, req *Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(req)
}

const maxLastErrorLen = 1024

func truncateError(s string) string {
	if len(s) > maxLastErrorLen {
		return s[:maxLastErrorLen]
	}
	return s
}

// stop drains the endpoint's subscription and drops the endpoint's
// handle to it; the endpoint stays registered with the service. Safe
// to call more than once.
func (e *Endpoint) stop() error {
	if e.sub == nil {
		return nil
	}
	sub := e.sub
	e.sub = nil

	if err := sub.Drain(); err != nil {
		e.service.log.Errorw("draining endpoint", "name", e.Name, "subject", e.Subject, "err", err)
		return err
	}
	return nil
}

// reset zeroes the endpoint's counters, keeping its identity fields.
func (e *Endpoint) reset() {
	e.stats = EndpointStats{
		Name:       e.stats.Name,
		Subject:    e.stats.Subject,
		QueueGroup: e.stats.QueueGroup,
	}
}
