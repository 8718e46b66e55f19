package job

import (
	"context"
	"fmt"
	"time"
)

// Owner is the part of a backend a Handle may call back into.
type Owner interface {
	DeleteReserved(ctx context.Context, queue, id string) (bool, error)
	Release(ctx context.Context, h *Handle, delay time.Duration) (string, error)
}

// Handle is a leased record plus its terminal-state flags. A Handle is
// owned by a single execution and is not safe for concurrent use.
type Handle struct {
	rec       Record
	payload   Payload
	decodeErr error
	owner     Owner

	deleted  bool
	released bool
	failed   bool
}

// NewHandle wraps rec. A payload that cannot be decoded is reported by Fire,
// so a malformed record still flows through the retry pipeline.
func NewHandle(rec Record, owner Owner) *Handle {
	h := &Handle{rec: rec, owner: owner}
	h.payload, h.decodeErr = Decode(rec.Payload)
	return h
}

func (h *Handle) ID() string             { return h.rec.ID }
func (h *Handle) Queue() string          { return h.rec.Queue }
func (h *Handle) RawPayload() []byte     { return h.rec.Payload }
func (h *Handle) Attempts() int          { return h.rec.Attempts }
func (h *Handle) Reserved() bool         { return h.rec.Reserved }
func (h *Handle) ReservedAt() *time.Time { return h.rec.ReservedAt }
func (h *Handle) AvailableAt() time.Time { return h.rec.AvailableAt }
func (h *Handle) CreatedAt() time.Time   { return h.rec.CreatedAt }

// Record returns a copy of the underlying record.
func (h *Handle) Record() Record { return h.rec }

// Name returns the job type, or "" if the payload is malformed.
func (h *Handle) Name() string { return h.payload.Job }

// DisplayName returns the payload's display name.
func (h *Handle) DisplayName() string {
	if h.payload.DisplayName != "" {
		return h.payload.DisplayName
	}
	return h.payload.Job
}

// Args returns the job arguments.
func (h *Handle) Args() Args { return h.payload.Data }

// Payload returns the decoded payload.
func (h *Handle) Payload() (Payload, error) { return h.payload, h.decodeErr }

// MaxTries returns the payload's max tries, or nil when the payload leaves it
// to the worker options.
func (h *Handle) MaxTries() *int { return h.payload.MaxTries }

// TimeoutAt returns the payload's absolute deadline, if any.
func (h *Handle) TimeoutAt() (time.Time, bool) { return h.payload.Deadline() }

// Timeout returns the payload's per-attempt timeout, if any.
func (h *Handle) Timeout() (time.Duration, bool) { return h.payload.TimeoutDuration() }

// MarkReserved records a successful reservation made by the backend.
func (h *Handle) MarkReserved(at time.Time) {
	at = at.Truncate(time.Second)
	h.rec.Reserved = true
	h.rec.ReservedAt = &at
	h.rec.Attempts++
}

// Fire resolves the job's handler and invokes it with the job arguments.
func (h *Handle) Fire(ctx context.Context, r Resolver) error {
	if h.decodeErr != nil {
		return h.decodeErr
	}
	handler, err := r.Resolve(h.payload.Job)
	if err != nil {
		return err
	}
	return handler.Fire(ctx, h, h.payload.Data)
}

// Delete removes the record from its queue.
func (h *Handle) Delete(ctx context.Context) error {
	if _, err := h.owner.DeleteReserved(ctx, h.rec.Queue, h.rec.ID); err != nil {
		return fmt.Errorf("delete job %s: %w", h.rec.ID, err)
	}
	h.deleted = true
	return nil
}

// Release removes the record and pushes it back onto its queue to become
// available after delay, carrying its attempts forward.
func (h *Handle) Release(ctx context.Context, delay time.Duration) error {
	if _, err := h.owner.DeleteReserved(ctx, h.rec.Queue, h.rec.ID); err != nil {
		return fmt.Errorf("release job %s: %w", h.rec.ID, err)
	}
	if _, err := h.owner.Release(ctx, h, delay); err != nil {
		return fmt.Errorf("release job %s: %w", h.rec.ID, err)
	}
	h.released = true
	return nil
}

// MarkFailed flags the handle as permanently failed.
func (h *Handle) MarkFailed() { h.failed = true }

// Failed flags the handle as failed and notifies the job's handler when it
// implements FailedHandler.
func (h *Handle) Failed(ctx context.Context, r Resolver, cause error) error {
	h.MarkFailed()
	if h.decodeErr != nil {
		return nil
	}
	handler, err := r.Resolve(h.payload.Job)
	if err != nil {
		return err
	}
	if fh, ok := handler.(FailedHandler); ok {
		return fh.Failed(ctx, h.payload.Data, cause)
	}
	return nil
}

func (h *Handle) IsDeleted() bool  { return h.deleted }
func (h *Handle) IsReleased() bool { return h.released }
func (h *Handle) HasFailed() bool  { return h.failed }

// IsDeletedOrReleased reports whether the handle reached a terminal state
// that needs no further handling.
func (h *Handle) IsDeletedOrReleased() bool { return h.deleted || h.released }
