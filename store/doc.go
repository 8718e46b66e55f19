// Package store groups the queue backends. Each subpackage implements
// queue.Backend and failed.Store on one medium and exposes a connector for
// queue.Manager:
//
//   - store/memory: in-process maps, for tests and development
//   - store/redis: sorted sets and hashes on go-redis
//   - store/mongo: one document per record on the MongoDB v2 driver
//   - store/bun: one row per record on PostgreSQL or SQLite through Bun
//
// # Usage
//
//	m := queue.NewManager()
//	m.AddConnector(redisstore.Driver, redisstore.NewConnector(client))
//	m.AddConnection("default", queue.Config{Driver: redisstore.Driver})
//
//	b, err := m.Connection(ctx, "")
//
// Relational and document backends create their schema or indexes when the
// connector first resolves a connection.
package store
