package micro

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/petrarca/nats-micro/bus"
	"github.com/petrarca/nats-micro/pkg/x_log"
)

type state int

const (
	stateCreated state = iota
	stateStarted
	stateStopping
	stateStopped
)

// drainGrace bounds how long Stop waits for in-flight handlers after
// the subscriptions have drained.
const drainGrace = 5 * time.Second

// Service hosts endpoints and answers the control-plane verbs for one
// service instance.
type Service struct {
	cfg Config
	bus bus.Bus
	log x_log.Logger

	m         sync.Mutex
	state     state
	id        string
	started   time.Time
	endpoints []*Endpoint
	verbSubs  map[string]bus.Subscription

	inflight sync.WaitGroup
	async    *asyncCallbacks
}

// AddService validates cfg, opens the control-plane subscriptions and
// returns a started service. The caller keeps ownership of the bus.
func AddService(b bus.Bus, cfg Config) (*Service, error) {
	if err := cfg.valid(); err != nil {
		return nil, err
	}
	cfg.normalize()

	svc := &Service{
		cfg:      cfg,
		bus:      b,
		log:      x_log.L().Named("micro"),
		id:       cfg.GenerateID(),
		started:  cfg.Now(),
		verbSubs: make(map[string]bus.Subscription),
		async:    newAsyncCallbacks(),
	}

	go svc.async.run()

	if err := svc.subscribeVerbs(); err != nil {
		svc.teardown()
		return nil, err
	}

	svc.m.Lock()
	svc.state = stateStarted
	svc.m.Unlock()

	if cfg.OnStart != nil {
		cfg.OnStart(svc)
	}
	svc.log.Infow("service started",
		"name", cfg.Name, "version", cfg.Version, "id", svc.id)
	return svc, nil
}

// ID returns the instance id generated at construction.
func (s *Service) ID() string { return s.id }

// Name returns the service name.
func (s *Service) Name() string { return s.cfg.Name }

// Version returns the service version.
func (s *Service) Version() string { return s.cfg.Version }

// subscribeVerbs opens the nine control subscriptions: each verb on
// the all-services, by-name and by-name-and-id scopes.
func (s *Service) subscribeVerbs() error {
	scopes := []struct {
		service string
		id      string
	}{
		{"", ""},
		{s.cfg.Name, ""},
		{s.cfg.Name, s.id},
	}

	for _, verb := range []Verb{PingVerb, InfoVerb, StatsVerb} {
		payload := s.verbPayload(verb)
		for _, scope := range scopes {
			subj, err := controlSubject(s.cfg.APIPrefix, verb, scope.service, scope.id)
			if err != nil {
				return err
			}
			sub, err := s.bus.Subscribe(subj, "", func(msg *bus.Msg) {
				s.handleVerb(verb, payload, msg)
			})
			if err != nil {
				return fmt.Errorf("subscribing control subject %q: %w", subj, err)
			}
			s.verbSubs[subj] = sub
		}
	}
	return nil
}

func (s *Service) verbPayload(verb Verb) func() any {
	switch verb {
	case PingVerb:
		return func() any { return s.PingInfo() }
	case InfoVerb:
		return func() any { return s.Info() }
	default:
		return func() any { return s.Stats() }
	}
}

// handleVerb answers one control-plane request. Replies bypass
// endpoint statistics; failures are logged, never propagated, and
// publish failures are also dispatched to the error handler.
func (s *Service) handleVerb(verb Verb, payload func() any, msg *bus.Msg) {
	if msg.Reply == "" {
		s.log.Debugw("control request without reply subject",
			"verb", verb.String(), "subject", msg.Subject)
		return
	}
	data, err := json.Marshal(payload())
	if err != nil {
		s.log.Errorw("encoding control reply",
			"verb", verb.String(), "err", err)
		return
	}
	if err := s.bus.Publish(msg.Reply, data); err != nil {
		s.log.Errorw("sending control reply",
			"verb", verb.String(), "subject", msg.Subject, "err", err)
		s.dispatchError(&BusError{Subject: msg.Subject, Description: err.Error()})
	}
}

func (s *Service) dispatchError(busErr *BusError) {
	if s.cfg.ErrorHandler == nil {
		return
	}
	s.async.push(func() {
		s.cfg.ErrorHandler(s, busErr)
	})
}

// AddEndpoint registers an endpoint named name. The subject defaults
// to the name; the queue group is inherited from the service config.
func (s *Service) AddEndpoint(name string, handler Handler, opts ...EndpointOpt) error {
	var o endpointOpts
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return err
		}
	}

	subject := o.subject
	if subject == "" {
		subject = name
	}
	qg := resolveQueueGroup(o.queueGroup, s.cfg.QueueGroup)
	return s.addEndpoint(name, subject, handler, qg, &o)
}

// AddGroup returns a group rooted at name. Endpoints added through it
// get name as a subject prefix.
func (s *Service) AddGroup(name string, opts ...GroupOpt) *Group {
	var o groupOpts
	for _, opt := range opts {
		opt(&o)
	}
	return &Group{
		service:    s,
		prefix:     name,
		queueGroup: resolveInherited(o.queueGroup, s.cfg.QueueGroup),
	}
}

// PingInfo returns the instance's ping descriptor.
func (s *Service) PingInfo() Ping {
	return Ping{
		ServiceIdentity: s.identity(),
		Type:            PingResponseType,
	}
}

// Info returns the instance's info descriptor, listing all endpoints.
func (s *Service) Info() Info {
	s.m.Lock()
	defer s.m.Unlock()

	endpoints := make([]EndpointInfo, 0, len(s.endpoints))
	for _, e := range s.endpoints {
		endpoints = append(endpoints, EndpointInfo{
			Name:       e.Name,
			Subject:    e.Subject,
			QueueGroup: e.QueueGroup,
			Metadata:   e.Metadata,
		})
	}

	return Info{
		ServiceIdentity: s.identity(),
		Type:            InfoResponseType,
		Description:     s.cfg.Description,
		Endpoints:       endpoints,
	}
}

// Stats snapshots the per-endpoint counters. The average is derived
// from the totals at snapshot time.
func (s *Service) Stats() Stats {
	s.m.Lock()
	defer s.m.Unlock()

	stats := Stats{
		ServiceIdentity: s.identity(),
		Type:            StatsResponseType,
		Started:         s.started,
		Endpoints:       make([]*EndpointStats, 0, len(s.endpoints)),
	}

	for _, ep := range s.endpoints {
		snapshot := ep.stats
		n := snapshot.NumRequests
		if n == 0 {
			n = 1
		}
		snapshot.AverageProcessingTime = snapshot.ProcessingTime / time.Duration(n)
		snapshot.Data = json.RawMessage("{}")

		if s.cfg.StatsHandler != nil {
			if data, err := json.Marshal(s.cfg.StatsHandler(ep)); err == nil {
				snapshot.Data = data
			} else {
				s.log.Errorw("encoding custom endpoint stats",
					"endpoint", ep.Name, "err", err)
			}
		}

		stats.Endpoints = append(stats.Endpoints, &snapshot)
	}
	return stats
}

// Reset zeroes every endpoint's counters. The service start time is
// not touched.
func (s *Service) Reset() error {
	s.m.Lock()
	defer s.m.Unlock()

	if s.state != stateStarted {
		return ErrServiceStopped
	}
	for _, ep := range s.endpoints {
		ep.reset()
	}
	return nil
}

// Stopped reports whether Stop has completed.
func (s *Service) Stopped() bool {
	s.m.Lock()
	defer s.m.Unlock()
	return s.state == stateStopped
}

// Stop drains every endpoint, waits for in-flight handlers, and
// removes the control subscriptions. Idempotent: only the first call
// tears down; later calls return nil immediately. Teardown continues
// past individual failures and the first one is returned.
func (s *Service) Stop() error {
	s.m.Lock()
	if s.state == stateStopping || s.state == stateStopped {
		s.m.Unlock()
		return nil
	}
	s.state = stateStopping
	endpoints := make([]*Endpoint, len(s.endpoints))
	copy(endpoints, s.endpoints)
	s.m.Unlock()

	var firstErr error
	for _, ep := range endpoints {
		if err := ep.stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	// Bounded wait for handlers that were already dispatched.
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainGrace):
		s.log.Warnw("in-flight handlers did not finish within grace period",
			"service", s.cfg.Name, "grace", drainGrace)
	}

	s.m.Lock()
	for subj, sub := range s.verbSubs {
		if err := sub.Unsubscribe(); err != nil {
			s.log.Errorw("unsubscribing control subject", "subject", subj, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
		delete(s.verbSubs, subj)
	}
	s.state = stateStopped
	s.m.Unlock()

	if s.cfg.OnStop != nil {
		s.cfg.OnStop(s)
	}
	if s.cfg.DoneHandler != nil {
		s.async.push(func() { s.cfg.DoneHandler(s) })
	}
	s.async.close()

	s.log.Infow("service stopped", "name", s.cfg.Name, "id", s.id)
	return firstErr
}

// teardown aborts a half-constructed service.
func (s *Service) teardown() {
	for _, sub := range s.verbSubs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, bus.ErrClosed) {
			s.log.Errorw("unsubscribing during teardown", "err", err)
		}
	}
	s.async.close()
}

func (s *Service) identity() ServiceIdentity {
	return ServiceIdentity{
		Name:     s.cfg.Name,
		ID:       s.id,
		Version:  s.cfg.Version,
		Metadata: s.cfg.Metadata,
	}
}
