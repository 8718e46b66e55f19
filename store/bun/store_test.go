package bunstore_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/uptrace/bun"

	"github.com/xraph/jobqueue/failed"
	"github.com/xraph/jobqueue/queue"
	"github.com/xraph/jobqueue/queue/queuetest"
	bunstore "github.com/xraph/jobqueue/store/bun"
)

var dbSeq atomic.Int64

// openSQLite returns a private in-memory database.
func openSQLite(t *testing.T) *bun.DB {
	t.Helper()
	db, err := bunstore.Open(fmt.Sprintf("file:jobqueue_%d?mode=memory&cache=shared", dbSeq.Add(1)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBackend(t *testing.T) {
	queuetest.RunBackend(t, func(t *testing.T, cfg queue.Config, clock queue.Clock) queue.Backend {
		s := bunstore.New(openSQLite(t), cfg, bunstore.WithClock(clock))
		if err := s.Migrate(context.Background()); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
		return s
	})
}

func TestFailedStore(t *testing.T) {
	queuetest.RunFailedStore(t, func(t *testing.T) failed.Store {
		f := bunstore.NewFailedStore(openSQLite(t), "")
		if err := f.Migrate(context.Background()); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
		return f
	})
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openSQLite(t)
	s := bunstore.New(db, queue.Config{Collection: "mail_jobs"})

	for i := 0; i < 2; i++ {
		if err := s.Migrate(context.Background()); err != nil {
			t.Fatalf("Migrate #%d: %v", i+1, err)
		}
	}

	jobID, err := s.Push(context.Background(), "mail", nil, "")
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if jobID != "1" {
		t.Errorf("first id = %q, want 1", jobID)
	}
}

func TestOpen_UnsupportedDSN(t *testing.T) {
	t.Parallel()
	if _, err := bunstore.Open("mysql://localhost/app"); err == nil {
		t.Fatal("Open(mysql) succeeded, want error")
	}
}

func TestConnector(t *testing.T) {
	m := queue.NewManager()
	m.AddConnector(bunstore.Driver, bunstore.NewConnector(openSQLite(t)))
	m.AddConnection("default", queue.Config{Driver: bunstore.Driver})

	b, err := m.Connection(context.Background(), "")
	if err != nil {
		t.Fatalf("Connection: %v", err)
	}
	if _, err := b.Push(context.Background(), "mail", nil, ""); err != nil {
		t.Fatalf("Push through connector: %v", err)
	}
}
