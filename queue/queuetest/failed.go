package queuetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/failed"
)

// FailedFactory builds an empty failed-job store.
type FailedFactory func(t *testing.T) failed.Store

// RunFailedStore runs the failed-job store conformance suite.
func RunFailedStore(t *testing.T, newStore FailedFactory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s failed.Store)
	}{
		{"LogAndFind", testFailedLogAndFind},
		{"AllNewestFirst", testFailedAllNewestFirst},
		{"Forget", testFailedForget},
		{"Flush", testFailedFlush},
		{"FindUnknown", testFailedFindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

const samplePayload = `{"displayName":"SendEmail","job":"SendEmail","maxTries":2,"timeout":null,"timeoutAt":null,"data":{"to":"a@b.com"}}`

func mustLog(t *testing.T, s failed.Store, q string) string {
	t.Helper()
	entryID, err := s.Log(context.Background(), "default", q, []byte(samplePayload), errors.New("smtp timeout"))
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if entryID == "" {
		t.Fatal("Log returned empty id")
	}
	return entryID
}

func testFailedLogAndFind(t *testing.T, s failed.Store) {
	before := time.Now().Add(-time.Second)
	entryID := mustLog(t, s, "mail")

	e, err := s.Find(context.Background(), entryID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if e.ID != entryID {
		t.Errorf("ID = %q, want %q", e.ID, entryID)
	}
	if e.Connection != "default" || e.Queue != "mail" {
		t.Errorf("connection/queue = %q/%q", e.Connection, e.Queue)
	}
	if string(e.Payload) != samplePayload {
		t.Errorf("Payload = %s, want %s", e.Payload, samplePayload)
	}
	if e.Exception != "smtp timeout" {
		t.Errorf("Exception = %q", e.Exception)
	}
	if e.FailedAt.Before(before) {
		t.Errorf("FailedAt = %v, want after %v", e.FailedAt, before)
	}
}

func testFailedAllNewestFirst(t *testing.T, s failed.Store) {
	first := mustLog(t, s, "a")
	time.Sleep(1100 * time.Millisecond)
	second := mustLog(t, s, "b")

	all, err := s.All(context.Background())
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("All returned %d entries, want 2", len(all))
	}
	if all[0].ID != second || all[1].ID != first {
		t.Errorf("order = [%s %s], want [%s %s]", all[0].ID, all[1].ID, second, first)
	}
}

func testFailedForget(t *testing.T, s failed.Store) {
	ctx := context.Background()
	entryID := mustLog(t, s, "default")

	ok, err := s.Forget(ctx, entryID)
	if err != nil || !ok {
		t.Fatalf("Forget = %v, %v; want true", ok, err)
	}
	ok, err = s.Forget(ctx, entryID)
	if err != nil || ok {
		t.Fatalf("second Forget = %v, %v; want false", ok, err)
	}
	if _, err := s.Find(ctx, entryID); !errors.Is(err, jobqueue.ErrFailedJobNotFound) {
		t.Fatalf("Find after Forget = %v, want ErrFailedJobNotFound", err)
	}
}

func testFailedFlush(t *testing.T, s failed.Store) {
	ctx := context.Background()
	mustLog(t, s, "a")
	mustLog(t, s, "b")

	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("All after Flush returned %d entries", len(all))
	}
}

func testFailedFindUnknown(t *testing.T, s failed.Store) {
	for _, unknown := range []string{"failed_01h2xcejqtf2nbrexx3vqjhp41", "12345", "garbage"} {
		if _, err := s.Find(context.Background(), unknown); !errors.Is(err, jobqueue.ErrFailedJobNotFound) {
			t.Errorf("Find(%q) = %v, want ErrFailedJobNotFound", unknown, err)
		}
	}
}
