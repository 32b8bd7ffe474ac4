package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	micro "github.com/petrarca/nats-micro"
	"github.com/petrarca/nats-micro/bus"
)

func runServer(t *testing.T) *server.Server {
	t.Helper()
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	s := natsserver.RunServer(&opts)
	t.Cleanup(s.Shutdown)
	return s
}

func setup(t *testing.T, cfg micro.Config) (bus.Bus, *micro.Service, *Client) {
	t.Helper()
	s := runServer(t)
	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	b := bus.Wrap(nc)
	svc, err := micro.AddService(b, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Stop() })

	return b, svc, New(b)
}

func TestPing(t *testing.T) {
	_, svc, c := setup(t, micro.Config{Name: "service1", Version: "0.0.1"})
	ctx := context.Background()

	results, err := c.Ping(ctx, MaxCount(1))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "service1", results[0].Name)
	assert.Equal(t, "0.0.1", results[0].Version)
	assert.NotEmpty(t, results[0].ID)

	instanceID := results[0].ID
	assert.Equal(t, svc.ID(), instanceID)

	results, err = c.Ping(ctx, ForService("service1"), MaxCount(1))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, instanceID, results[0].ID)

	results, err = c.Service("service1").Ping(ctx, MaxCount(1))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, instanceID, results[0].ID)

	result, err := c.Service("service1").Instance(instanceID).Ping(ctx)
	require.NoError(t, err)
	assert.Equal(t, instanceID, result.ID)
	assert.Equal(t, "service1", result.Name)
}

func TestInfo(t *testing.T) {
	_, svc, c := setup(t, micro.Config{Name: "service1", Version: "0.0.1"})
	ctx := context.Background()

	require.NoError(t, svc.AddEndpoint("endpoint1",
		micro.HandlerFunc(func(req *micro.Request) error {
			return req.Respond([]byte("ok"))
		})))

	results, err := c.Info(ctx, MaxCount(1))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Endpoints, 1)

	ep := results[0].Endpoints[0]
	assert.Equal(t, "endpoint1", ep.Name)
	assert.Equal(t, "endpoint1", ep.Subject)
	assert.Equal(t, "q", ep.QueueGroup)
	assert.Equal(t, map[string]string{}, ep.Metadata)

	result, err := c.Instance("service1", svc.ID()).Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, svc.ID(), result.ID)
	assert.Len(t, result.Endpoints, 1)
}

func TestStatsFresh(t *testing.T) {
	_, svc, c := setup(t, micro.Config{Name: "service1", Version: "0.0.1"})
	ctx := context.Background()

	require.NoError(t, svc.AddEndpoint("endpoint1",
		micro.HandlerFunc(func(req *micro.Request) error { return nil })))

	results, err := c.Stats(ctx, MaxCount(1))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Endpoints, 1)

	ep := results[0].Endpoints[0]
	assert.Equal(t, 0, ep.NumRequests)
	assert.Equal(t, 0, ep.NumErrors)
	assert.Empty(t, ep.LastError)
	assert.Zero(t, ep.ProcessingTime)
	assert.Zero(t, ep.AverageProcessingTime)
	assert.JSONEq(t, "{}", string(ep.Data))
	assert.False(t, results[0].Started.IsZero())
}

func TestPingIter(t *testing.T) {
	_, _, c := setup(t, micro.Config{Name: "service1", Version: "0.0.1"})

	it, err := c.PingIter(context.Background(), MaxWait(500*time.Millisecond), MaxCount(1))
	require.NoError(t, err)
	defer it.Stop()

	p, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, "service1", p.Name)

	_, ok = it.Next()
	assert.False(t, ok)
}

func TestRequestTranslatesServiceErrors(t *testing.T) {
	_, svc, c := setup(t, micro.Config{Name: "service1", Version: "0.0.1"})
	ctx := context.Background()

	require.NoError(t, svc.AddEndpoint("fail",
		micro.HandlerFunc(func(req *micro.Request) error {
			return req.Error("400", "bad", nil)
		})))

	_, err := c.Request(ctx, "fail", nil, nil, time.Second)
	require.Error(t, err)

	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr), "got: %v", err)
	assert.Equal(t, 400, svcErr.Code)
	assert.Equal(t, "bad", svcErr.Description)
}

func TestRequestPassesThroughReplies(t *testing.T) {
	_, svc, c := setup(t, micro.Config{Name: "service1", Version: "0.0.1"})
	ctx := context.Background()

	require.NoError(t, svc.AddEndpoint("echo",
		micro.HandlerFunc(func(req *micro.Request) error {
			return req.Respond(req.Data())
		})))

	resp, err := c.Request(ctx, "echo", []byte("hello"), nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), resp.Data)
}

func TestPingNoServices(t *testing.T) {
	s := runServer(t)
	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	c := New(bus.Wrap(nc))
	results, err := c.Ping(context.Background(), MaxWait(300*time.Millisecond))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestInstanceUnknownID(t *testing.T) {
	_, _, c := setup(t, micro.Config{Name: "service1", Version: "0.0.1"})

	inst := c.Instance("service1", "doesnotexist")
	_, err := inst.Ping(context.Background())
	require.Error(t, err)
	assert.True(t,
		errors.Is(err, bus.ErrNoResponders) || errors.Is(err, bus.ErrTimeout),
		"got: %v", err)
}

func TestMalformedReplies(t *testing.T) {
	s := runServer(t)
	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	b := bus.Wrap(nc)

	// A rogue responder on the ping subject answering garbage.
	sub, err := b.Subscribe("$SRV.PING", "", func(msg *bus.Msg) {
		_ = b.Publish(msg.Reply, []byte("not json"))
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	c := New(b)
	_, err = c.Ping(context.Background(), MaxWait(300*time.Millisecond), MaxCount(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidResponse), "got: %v", err)
}
