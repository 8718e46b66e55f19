package job

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/jobqueue"
)

// Args is the argument map handed to a job handler.
type Args map[string]any

// Payload is the serialized description of a unit of work.
type Payload struct {
	DisplayName string `json:"displayName"`
	Job         string `json:"job"`
	MaxTries    *int   `json:"maxTries"`
	Timeout     *int   `json:"timeout"`
	TimeoutAt   *int64 `json:"timeoutAt"`
	Data        Args   `json:"data"`
}

// PayloadOption configures optional payload fields.
type PayloadOption func(*Payload)

// WithDisplayName overrides the display name, which defaults to the job type.
func WithDisplayName(name string) PayloadOption {
	return func(p *Payload) { p.DisplayName = name }
}

// WithMaxTries limits the number of attempts. Zero means unlimited.
func WithMaxTries(n int) PayloadOption {
	return func(p *Payload) { p.MaxTries = &n }
}

// WithTimeout bounds a single attempt. It is stored in whole seconds.
func WithTimeout(d time.Duration) PayloadOption {
	return func(p *Payload) {
		secs := int(d / time.Second)
		p.Timeout = &secs
	}
}

// WithTimeoutAt sets an absolute deadline after which the job is failed
// instead of retried.
func WithTimeoutAt(t time.Time) PayloadOption {
	return func(p *Payload) {
		at := t.Unix()
		p.TimeoutAt = &at
	}
}

// NewPayload builds a payload for jobType with the given arguments.
func NewPayload(jobType string, args Args, opts ...PayloadOption) Payload {
	if args == nil {
		args = Args{}
	}
	p := Payload{
		DisplayName: jobType,
		Job:         jobType,
		Data:        args,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Encode serializes p. Failures wrap jobqueue.ErrInvalidPayload.
func Encode(p Payload) ([]byte, error) {
	if p.Job == "" {
		return nil, fmt.Errorf("%w: empty job type", jobqueue.ErrInvalidPayload)
	}
	if p.Data == nil {
		p.Data = Args{}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", jobqueue.ErrInvalidPayload, err)
	}
	return b, nil
}

// EncodeJob serializes the default payload for jobType and args.
func EncodeJob(jobType string, args Args) ([]byte, error) {
	return Encode(NewPayload(jobType, args))
}

// Decode parses a stored payload. Failures wrap jobqueue.ErrInvalidPayload.
func Decode(b []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %w", jobqueue.ErrInvalidPayload, err)
	}
	if p.Job == "" {
		return Payload{}, fmt.Errorf("%w: missing job type", jobqueue.ErrInvalidPayload)
	}
	return p, nil
}

// MaxTriesOr returns the payload's max tries, or def when unset.
func (p Payload) MaxTriesOr(def int) int {
	if p.MaxTries != nil {
		return *p.MaxTries
	}
	return def
}

// Deadline returns the absolute timeout deadline, if any.
func (p Payload) Deadline() (time.Time, bool) {
	if p.TimeoutAt == nil {
		return time.Time{}, false
	}
	return time.Unix(*p.TimeoutAt, 0), true
}

// TimeoutDuration returns the per-attempt timeout, if any.
func (p Payload) TimeoutDuration() (time.Duration, bool) {
	if p.Timeout == nil || *p.Timeout <= 0 {
		return 0, false
	}
	return time.Duration(*p.Timeout) * time.Second, true
}
