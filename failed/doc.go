// Package failed defines the quarantine store for jobs that failed
// permanently, and the service that replays them.
//
// A job is quarantined when it exceeds its max tries or its deadline. The
// worker removes it from its queue and appends an [Entry] holding the
// connection, queue, verbatim payload and failure message. Entries stay until
// they are replayed or forgotten:
//
//	svc := failed.NewService(store, manager)
//	n, err := svc.RetryAll(ctx)     // replay everything
//	err = svc.Retry(ctx, entryID)   // replay one entry
//
// Every store package (memory, redis, mongo, bun) provides a [Store]
// implementation next to its queue backend.
package failed
