package queue

import "time"

// Defaults applied by connectors to zero config fields.
const (
	DefaultQueue      = "default"
	DefaultCollection = "queue_jobs"
	DefaultExpire     = 60 * time.Second
	DefaultLimit      = 15
)

// Config describes one named connection.
type Config struct {
	// Driver selects the connector.
	Driver string

	// Collection names the key prefix, collection or table.
	Collection string

	// Queue is used when callers pass an empty queue name.
	Queue string

	// Expire is the lease timeout after which a reservation is reclaimable.
	Expire time.Duration

	// Limit caps concurrently reserved records per queue.
	Limit int
}

// DefaultConfig returns the connector defaults.
func DefaultConfig() Config {
	return Config{
		Collection: DefaultCollection,
		Queue:      DefaultQueue,
		Expire:     DefaultExpire,
		Limit:      DefaultLimit,
	}
}

// WithDefaults returns c with its zero fields taken from d.
func (c Config) WithDefaults(d Config) Config {
	if c.Driver == "" {
		c.Driver = d.Driver
	}
	if c.Collection == "" {
		c.Collection = d.Collection
	}
	if c.Queue == "" {
		c.Queue = d.Queue
	}
	if c.Expire <= 0 {
		c.Expire = d.Expire
	}
	if c.Limit <= 0 {
		c.Limit = d.Limit
	}
	return c
}

// QueueName returns q, or the default queue when q is empty.
func (c Config) QueueName(q string) string {
	if q == "" {
		return c.Queue
	}
	return q
}
