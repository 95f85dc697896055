package inmemory

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/finance-ledger/internal/jobs"
	"github.com/dvloznov/finance-ledger/internal/logger"
)

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func jobStatus(store *Store, id string) jobs.JobStatus {
	job, err := store.GetJob(context.Background(), id)
	if err != nil {
		return ""
	}
	return job.Status
}

func TestQueue_ProcessesJobs(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(10, store)
	defer q.Close()

	var handled atomic.Int32
	if err := q.Start(ctx, func(context.Context, jobs.Job) error {
		handled.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	job := &jobs.PersistJob{Version: 1}
	if err := q.PublishPersist(ctx, job); err != nil {
		t.Fatal(err)
	}
	if job.JobID == "" || job.MaxRetries != defaultMaxRetries {
		t.Errorf("defaults not applied: %+v", job)
	}

	waitFor(t, func() bool { return jobStatus(store, job.JobID) == jobs.JobStatusCompleted })
	if handled.Load() != 1 {
		t.Errorf("handled = %d", handled.Load())
	}
}

func TestQueue_RetriesThenFails(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(10, store, WithMaxRetries(2), WithBackoff(func(int) time.Duration { return time.Millisecond }))
	defer q.Close()

	var attempts atomic.Int32
	boom := errors.New("unavailable")
	if err := q.Start(ctx, func(context.Context, jobs.Job) error {
		attempts.Add(1)
		return boom
	}); err != nil {
		t.Fatal(err)
	}

	job := &jobs.PersistJob{JobID: "job-1", Version: 1}
	if err := q.PublishPersist(ctx, job); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return jobStatus(store, "job-1") == jobs.JobStatusFailed })
	got, _ := store.GetJob(ctx, "job-1")
	if attempts.Load() != 3 || got.RetryCount != 2 || got.Error != "unavailable" {
		t.Errorf("attempts = %d, record = %+v", attempts.Load(), got)
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestQueue_FailureLogCarriesJobFields(t *testing.T) {
	out := &lockedBuffer{}
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(out))
	store := NewStore()
	q := NewQueue(10, store, WithMaxRetries(0))
	defer q.Close()

	if err := q.Start(ctx, func(context.Context, jobs.Job) error { return errors.New("disk full") }); err != nil {
		t.Fatal(err)
	}
	if err := q.PublishPersist(ctx, &jobs.PersistJob{JobID: "job-7", Version: 7}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return jobStatus(store, "job-7") == jobs.JobStatusFailed })

	logged := out.String()
	for _, want := range []string{`"job_id":"job-7"`, `"version":7`, `"error":"disk full"`} {
		if !strings.Contains(logged, want) {
			t.Errorf("log missing %s: %s", want, logged)
		}
	}
}

func TestQueue_SupersededIsSkipped(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(10, store)
	defer q.Close()

	if err := q.Start(ctx, func(context.Context, jobs.Job) error { return jobs.ErrSuperseded }); err != nil {
		t.Fatal(err)
	}
	if err := q.PublishPersist(ctx, &jobs.PersistJob{JobID: "old", Version: 1}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return jobStatus(store, "old") == jobs.JobStatusSkipped })
}

func TestQueue_StopUnblocksPublisher(t *testing.T) {
	q := NewQueue(1, nil)

	// Fill the buffer with no consumer running.
	if err := q.PublishPersist(context.Background(), &jobs.PersistJob{Version: 1}); err != nil {
		t.Fatal(err)
	}

	errc := make(chan error, 1)
	go func() { errc <- q.PublishPersist(context.Background(), &jobs.PersistJob{Version: 2}) }()

	time.Sleep(20 * time.Millisecond)
	if err := q.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, jobs.ErrQueueClosed) {
			t.Errorf("blocked publish returned %v, want ErrQueueClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("publisher still blocked after Stop")
	}

	if err := q.PublishPersist(context.Background(), &jobs.PersistJob{Version: 3}); !errors.Is(err, jobs.ErrQueueClosed) {
		t.Errorf("publish after stop = %v", err)
	}
	if err := q.Start(context.Background(), nil); !errors.Is(err, jobs.ErrQueueClosed) {
		t.Errorf("start after stop = %v", err)
	}
}

func TestStore_ListJobs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, st := range []jobs.JobStatus{jobs.JobStatusCompleted, jobs.JobStatusSkipped, jobs.JobStatusCompleted, jobs.JobStatusFailed} {
		job := &jobs.PersistJob{
			JobID:     string(rune('a' + i)),
			Version:   uint64(i + 1),
			Status:    st,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.SaveJob(ctx, job); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{"all newest first", jobs.JobFilter{}, []string{"d", "c", "b", "a"}},
		{"by status", jobs.JobFilter{Status: jobs.JobStatusCompleted}, []string{"c", "a"}},
		{"min version", jobs.JobFilter{MinVersion: 3}, []string{"d", "c"}},
		{"limit and offset", jobs.JobFilter{Limit: 2, Offset: 1}, []string{"c", "b"}},
		{"offset past end", jobs.JobFilter{Offset: 10}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d jobs, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].JobID != tt.want[i] {
					t.Errorf("jobs[%d] = %s, want %s", i, got[i].JobID, tt.want[i])
				}
			}
		})
	}
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	if _, err := s.GetJob(ctx, "nope"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("GetJob = %v", err)
	}
	if err := s.UpdateJobStatus(ctx, "nope", jobs.JobStatusFailed, "x"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("UpdateJobStatus = %v", err)
	}
	if err := s.SaveJob(ctx, &jobs.PersistJob{}); err == nil {
		t.Error("SaveJob without id should fail")
	}
}
