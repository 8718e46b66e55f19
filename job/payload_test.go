package job_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/job"
)

func TestEncode_Deterministic(t *testing.T) {
	a, err := job.EncodeJob("send-email", job.Args{"to": "a@b.com", "cc": "c@d.com", "n": 1})
	if err != nil {
		t.Fatalf("EncodeJob: %v", err)
	}
	b, err := job.EncodeJob("send-email", job.Args{"n": 1, "cc": "c@d.com", "to": "a@b.com"})
	if err != nil {
		t.Fatalf("EncodeJob: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("encodings differ:\n%s\n%s", a, b)
	}
}

func TestEncode_Shape(t *testing.T) {
	b, err := job.EncodeJob("send-email", job.Args{"to": "a@b.com"})
	if err != nil {
		t.Fatalf("EncodeJob: %v", err)
	}
	want := `{"displayName":"send-email","job":"send-email","maxTries":null,"timeout":null,"timeoutAt":null,"data":{"to":"a@b.com"}}`
	if string(b) != want {
		t.Errorf("got  %s\nwant %s", b, want)
	}
}

func TestEncode_NilArgs(t *testing.T) {
	b, err := job.EncodeJob("ping", nil)
	if err != nil {
		t.Fatalf("EncodeJob: %v", err)
	}
	p, err := job.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Data == nil {
		t.Fatal("expected empty, non-nil data")
	}
}

func TestEncode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		p    job.Payload
	}{
		{"empty job type", job.NewPayload("", nil)},
		{"unencodable arg", job.NewPayload("x", job.Args{"ch": make(chan int)})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := job.Encode(tt.p); !errors.Is(err, jobqueue.ErrInvalidPayload) {
				t.Fatalf("expected ErrInvalidPayload, got %v", err)
			}
		})
	}
}

func TestDecode_Invalid(t *testing.T) {
	for _, s := range []string{`{not json`, `{"data":{}}`} {
		if _, err := job.Decode([]byte(s)); !errors.Is(err, jobqueue.ErrInvalidPayload) {
			t.Errorf("Decode(%s): expected ErrInvalidPayload, got %v", s, err)
		}
	}
}

func TestPayloadOptions(t *testing.T) {
	deadline := time.Unix(1_700_000_000, 0)
	p := job.NewPayload("report", job.Args{"id": "r1"},
		job.WithDisplayName("Monthly report"),
		job.WithMaxTries(3),
		job.WithTimeout(90*time.Second),
		job.WithTimeoutAt(deadline),
	)

	b, err := job.Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := job.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.DisplayName != "Monthly report" {
		t.Errorf("DisplayName = %q", got.DisplayName)
	}
	if got.MaxTriesOr(0) != 3 {
		t.Errorf("MaxTries = %d, want 3", got.MaxTriesOr(0))
	}
	if d, ok := got.TimeoutDuration(); !ok || d != 90*time.Second {
		t.Errorf("Timeout = %v, %v", d, ok)
	}
	if at, ok := got.Deadline(); !ok || !at.Equal(deadline) {
		t.Errorf("Deadline = %v, %v", at, ok)
	}
}

func TestPayload_Defaults(t *testing.T) {
	p := job.NewPayload("x", nil)
	if p.MaxTriesOr(5) != 5 {
		t.Errorf("MaxTriesOr(5) = %d", p.MaxTriesOr(5))
	}
	if _, ok := p.Deadline(); ok {
		t.Error("expected no deadline")
	}
	if _, ok := p.TimeoutDuration(); ok {
		t.Error("expected no timeout")
	}
}
