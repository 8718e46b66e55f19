// Package queue defines the storage contract every queue backend
// implements, the connection manager that resolves connection names to
// backends and the producer facade used to enqueue work.
//
// # Backend contract
//
// A [Backend] stores records with an availability time, a reservation flag
// and an attempt counter. A record is leasable when it is not reserved and
// its available time has passed, or when its reservation is older than the
// connection's Expire. Pop never reserves: the worker admits a popped job
// with CanRun and then calls MarkReserved.
//
// # Connections
//
// A [Manager] holds connection configs and connectors keyed by driver name:
//
//	m := queue.NewManager(queue.WithLogger(logger))
//	m.AddConnector("redis", redisstore.NewConnector(client))
//	m.AddConnection("default", queue.Config{Driver: "redis", Limit: 5})
//
//	b, err := m.Connection(ctx, "default")
//
// Connections are resolved on first use and cached for the lifetime of the
// manager.
//
// # Producer
//
// [Producer] is the enqueueing facade over a Manager:
//
//	p := queue.NewProducer(m)
//	p.Push(ctx, "send-email", job.Args{"to": "a@b.com"}, queue.OnQueue("mail"))
//	p.LaterUnique(ctx, time.Minute, "reindex", job.Args{"id": 7})
package queue
