package client

import (
	"context"
	"time"

	micro "github.com/petrarca/nats-micro"
)

// ServiceView is a Client scoped to one service name.
type ServiceView struct {
	client  *Client
	service string
}

func (v *ServiceView) Ping(ctx context.Context, opts ...ReqOpt) ([]micro.Ping, error) {
	return v.client.Ping(ctx, append(opts, ForService(v.service))...)
}

func (v *ServiceView) Info(ctx context.Context, opts ...ReqOpt) ([]micro.Info, error) {
	return v.client.Info(ctx, append(opts, ForService(v.service))...)
}

func (v *ServiceView) Stats(ctx context.Context, opts ...ReqOpt) ([]micro.Stats, error) {
	return v.client.Stats(ctx, append(opts, ForService(v.service))...)
}

func (v *ServiceView) PingIter(ctx context.Context, opts ...ReqOpt) (*Iter[micro.Ping], error) {
	return v.client.PingIter(ctx, append(opts, ForService(v.service))...)
}

func (v *ServiceView) InfoIter(ctx context.Context, opts ...ReqOpt) (*Iter[micro.Info], error) {
	return v.client.InfoIter(ctx, append(opts, ForService(v.service))...)
}

func (v *ServiceView) StatsIter(ctx context.Context, opts ...ReqOpt) (*Iter[micro.Stats], error) {
	return v.client.StatsIter(ctx, append(opts, ForService(v.service))...)
}

// Instance returns a handle for one instance of the viewed service.
func (v *ServiceView) Instance(id string) *Instance {
	return v.client.Instance(v.service, id)
}

// Instance addresses a single service instance on its by-name-and-id
// subjects. Unlike the fan-out calls it issues ordinary single
// requests with a timeout.
type Instance struct {
	client  *Client
	service string
	id      string

	// Timeout for each request; DefaultInstanceTimeout when zero.
	Timeout time.Duration
}

func (i *Instance) Ping(ctx context.Context) (micro.Ping, error) {
	data, err := i.request(ctx, micro.PingVerb)
	if err != nil {
		return micro.Ping{}, err
	}
	return decodePing(data)
}

func (i *Instance) Info(ctx context.Context) (micro.Info, error) {
	data, err := i.request(ctx, micro.InfoVerb)
	if err != nil {
		return micro.Info{}, err
	}
	return decodeInfo(data)
}

func (i *Instance) Stats(ctx context.Context) (micro.Stats, error) {
	data, err := i.request(ctx, micro.StatsVerb)
	if err != nil {
		return micro.Stats{}, err
	}
	return decodeStats(data)
}

func (i *Instance) request(ctx context.Context, verb micro.Verb) ([]byte, error) {
	subject, err := micro.ControlSubjectWithPrefix(i.client.prefix, verb, i.service, i.id)
	if err != nil {
		return nil, err
	}
	timeout := i.Timeout
	if timeout <= 0 {
		timeout = DefaultInstanceTimeout
	}
	resp, err := i.client.Request(ctx, subject, nil, nil, timeout)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}
