// Package redis implements the queue backend and the failed-job store on
// Redis.
//
// A queue named q under collection c uses five keys:
//
//	c:q            ZSET  id -> available_at
//	c:q:payload    HASH  id -> serialized payload
//	c:q:reserved   ZSET  id -> reserved_at
//	c:q:attempted  ZSET  id -> attempts
//	c:q:created    ZSET  id -> created_at
//
// Ids come from the c:seq counter and are zero-padded, so members with
// equal availability sort in push order. Reservation and deletion run as
// MULTI transactions; reservation is additionally guarded by WATCH on the
// attempted set.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	m.AddConnector("redis", redisstore.NewConnector(client))
package redis
