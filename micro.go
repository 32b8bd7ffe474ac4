// Package micro hosts NATS-style micro services: named services expose
// endpoints on bus subjects and answer the PING/INFO/STATS control
// plane on $SRV subjects, so other processes can discover, inspect and
// collect statistics from them.
//
// A minimal service:
//
//	b, _ := bus.Connect("nats://localhost:4222")
//	svc, _ := micro.AddService(b, micro.Config{Name: "echo", Version: "1.0.0"})
//	_ = svc.AddEndpoint("echo", micro.HandlerFunc(func(req *micro.Request) error {
//		return req.Respond(req.Data())
//	}))
//	defer svc.Stop()
//
// Discovery lives in the client package; the fan-out primitive it is
// built on lives in reqmany.
package micro
