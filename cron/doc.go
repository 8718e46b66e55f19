// Package cron pushes jobs onto queues on recurring schedules.
//
// A [Scheduler] holds a set of named [Entry] values in memory. On every tick
// it pushes each due entry through a queue.Producer and computes the next
// run time from the entry's schedule. Schedules use the standard five-field
// cron syntax or descriptors such as "@hourly" and "@every 30s".
//
// Run one scheduler per deployment. Entries marked Unique are pushed with
// PushUnique, so a slow consumer does not accumulate copies of the same
// recurring job.
//
// After each push the scheduler calls its [Emitter]; ext.Registry satisfies
// it through EmitCronFired.
package cron
