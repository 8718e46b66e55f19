// Package jobqueue provides a durable, backend-agnostic background job
// queue for Go.
//
// Producers push typed work items onto named queues, optionally delayed or
// deduplicated. Worker daemons poll the queues, lease one job at a time
// under a per-queue concurrency limit and hand each leased job to an
// isolated process. Jobs that keep failing are quarantined in a failed-job
// store from which they can be replayed.
//
// # Quick Start
//
//	reg := job.NewRegistry()
//	job.RegisterDefinition(reg, job.NewDefinition("send-email",
//	    func(ctx context.Context, h *job.Handle, in Email) error {
//	        return h.Delete(ctx)
//	    },
//	))
//
//	m := queue.NewManager()
//	m.AddConnector("redis", redisstore.NewConnector(client))
//	m.AddConnection("default", queue.Config{Driver: "redis"})
//
//	p := queue.NewProducer(m)
//	p.Push(ctx, "send-email", job.Args{"to": "a@b.com"})
//
// # Architecture
//
// Each storage medium (Redis, MongoDB, PostgreSQL/SQLite through bun and an
// in-process memory store) implements the same queue.Backend contract. The
// queue.Manager resolves connection names to backends lazily through
// connectors keyed by driver name. The worker package drives the lease,
// retry and quarantine state machine on top of that contract.
package jobqueue
