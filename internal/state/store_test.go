package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"forum/crawler/internal/domain"
	"forum/crawler/internal/domain/task"

	"github.com/redis/go-redis/v9"
)

type storeFactory func(t *testing.T, dir string) ResumeStore

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"file": func(t *testing.T, dir string) ResumeStore {
			s, err := NewFileStore(dir)
			if err != nil {
				t.Fatalf("NewFileStore: %v", err)
			}
			return s
		},
		"sqlite": func(t *testing.T, dir string) ResumeStore {
			s, err := NewSQLiteStore(dir)
			if err != nil {
				t.Fatalf("NewSQLiteStore: %v", err)
			}
			return s
		},
	}
}

func TestStoreLifecycle(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t, t.TempDir())
			defer s.Close()

			if err := s.MarkPending(ctx, "post:1"); err != nil {
				t.Fatalf("MarkPending: %v", err)
			}
			if done, _ := s.IsDone(ctx, "post:1"); done {
				t.Fatal("pending fingerprint reported done")
			}

			if err := s.MarkDone(ctx, "post:1"); err != nil {
				t.Fatalf("MarkDone: %v", err)
			}
			if err := s.MarkDone(ctx, "post:1"); err != nil {
				t.Fatalf("second MarkDone: %v", err)
			}
			if done, _ := s.IsDone(ctx, "post:1"); !done {
				t.Fatal("expected fingerprint to be done")
			}

			// done is terminal
			if err := s.MarkFailed(ctx, "post:1", "late failure"); err != nil {
				t.Fatalf("MarkFailed: %v", err)
			}
			if err := s.MarkPending(ctx, "post:1"); err != nil {
				t.Fatalf("MarkPending: %v", err)
			}
			if done, _ := s.IsDone(ctx, "post:1"); !done {
				t.Fatal("done fingerprint was downgraded")
			}

			if err := s.MarkFailed(ctx, "image:2", "HTTP 404"); err != nil {
				t.Fatalf("MarkFailed: %v", err)
			}

			records, err := s.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(records) != 2 {
				t.Fatalf("expected 2 records, got %d", len(records))
			}
			if rec := records["image:2"]; rec.Status != domain.StatusFailed || rec.Reason != "HTTP 404" {
				t.Fatalf("unexpected failed record: %+v", rec)
			}
		})
	}
}

func TestStoreSurvivesRestart(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			first := open(t, dir)
			_ = first.MarkDone(ctx, "post:a")
			_ = first.MarkFailed(ctx, "post:b", "timeout")
			if err := first.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			second := open(t, dir)
			defer second.Close()

			if done, _ := second.IsDone(ctx, "post:a"); !done {
				t.Fatal("done fingerprint lost across restart")
			}
			if done, _ := second.IsDone(ctx, "post:b"); done {
				t.Fatal("failed fingerprint must not be reported done")
			}
		})
	}
}

func TestStoreConcurrentMarks(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t, t.TempDir())
			defer s.Close()

			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					fp := fmt.Sprintf("post:%d", i%10)
					_ = s.MarkPending(ctx, fp)
					_ = s.MarkDone(ctx, fp)
				}(i)
			}
			wg.Wait()

			records, _ := s.Load(ctx)
			if len(records) != 10 {
				t.Fatalf("expected 10 records, got %d", len(records))
			}
			for fp, rec := range records {
				if rec.Status != domain.StatusDone {
					t.Errorf("%s: expected done, got %s", fp, rec.Status)
				}
			}
		})
	}
}

func TestFileStoreIgnoresTruncatedTail(t *testing.T) {
	dir := t.TempDir()
	journal := `{"fingerprint":"post:a","status":"done","updated_at":"2024-01-01T00:00:00Z"}
{"fingerprint":"post:b","status":"pen`
	if err := os.WriteFile(filepath.Join(dir, JournalFileName), []byte(journal), 0o640); err != nil {
		t.Fatal(err)
	}

	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer s.Close()

	records, _ := s.Load(context.Background())
	if len(records) != 1 || records["post:a"].Status != domain.StatusDone {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestFileStoreCorruptJournalStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	journal := "this is not json\n" +
		`{"fingerprint":"post:a","status":"done","updated_at":"2024-01-01T00:00:00Z"}` + "\n"
	if err := os.WriteFile(filepath.Join(dir, JournalFileName), []byte(journal), 0o640); err != nil {
		t.Fatal(err)
	}

	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("corrupt journal must not be fatal: %v", err)
	}
	defer s.Close()

	records, _ := s.Load(context.Background())
	if len(records) != 0 {
		t.Fatalf("expected empty state, got %+v", records)
	}

	// the store stays writable after recovering
	if err := s.MarkDone(context.Background(), "post:c"); err != nil {
		t.Fatalf("MarkDone after recovery: %v", err)
	}
}

func TestSQLiteStoreCorruptDatabaseStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, SQLiteFileName)
	if err := os.WriteFile(path, []byte("definitely not a sqlite database, just garbage bytes"), 0o640); err != nil {
		t.Fatal(err)
	}

	s, err := NewSQLiteStore(dir)
	if err != nil {
		t.Fatalf("corrupt database must not be fatal: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	records, err := s.Load(ctx)
	if err != nil || len(records) != 0 {
		t.Fatalf("expected empty state, got %+v (err %v)", records, err)
	}
	if err := s.MarkDone(ctx, "post:a"); err != nil {
		t.Fatalf("MarkDone after recovery: %v", err)
	}
	if done, _ := s.IsDone(ctx, "post:a"); !done {
		t.Fatal("expected post:a done after recovery")
	}

	aside, _ := filepath.Glob(path + ".corrupt-*")
	if len(aside) != 1 {
		t.Fatalf("expected the corrupt database to be kept aside, got %v", aside)
	}
}

func TestFileStoreCompactsJournal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, _ := NewFileStore(dir)
	_ = s.MarkPending(ctx, "post:a")
	_ = s.MarkFailed(ctx, "post:a", "timeout")
	_ = s.MarkDone(ctx, "post:a")
	_ = s.Close()

	reopened, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer reopened.Close()

	data, err := os.ReadFile(filepath.Join(dir, JournalFileName))
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 1 {
		t.Fatalf("expected compacted journal with 1 line, got %d:\n%s", lines, data)
	}
}

func TestFileStoreRejectsWritesAfterClose(t *testing.T) {
	s, _ := NewFileStore(t.TempDir())
	_ = s.Close()

	if err := s.MarkDone(context.Background(), "post:a"); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

// TestRedisStore runs against a live server when REDIS_ADDR is set.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	rdb.Del(ctx, recordsKey, failedStream)

	s := NewRedisStore(rdb)
	_ = s.MarkDone(ctx, "post:a")
	_ = s.MarkFailed(ctx, "post:a", "ignored")
	_ = s.MarkFailed(ctx, "post:b", "HTTP 500")
	failed := &task.ImageFetchTask{Board: "Python", PostID: "1", URL: "https://forum.test/a.png", Index: 1}
	if err := s.RecordFailure(ctx, failed, "HTTP 500"); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}

	if done, _ := s.IsDone(ctx, "post:a"); !done {
		t.Fatal("expected post:a done")
	}
	records, _ := s.Load(ctx)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	units, err := s.FailedUnits(ctx)
	if err != nil {
		t.Fatalf("FailedUnits: %v", err)
	}
	if len(units) != 1 || units[0].Fingerprint() != failed.Fingerprint() {
		t.Fatalf("unexpected failed units: %+v", units)
	}

	t.Run("concurrent marks", func(t *testing.T) {
		rdb.Del(ctx, recordsKey)

		var wg sync.WaitGroup
		errs := make(chan error, 100)
		for i := 0; i < 50; i++ {
			wg.Add(2)
			fp := fmt.Sprintf("post:%d", i%10)
			go func() {
				defer wg.Done()
				errs <- s.MarkDone(ctx, fp)
			}()
			go func(i int) {
				defer wg.Done()
				errs <- s.MarkFailed(ctx, fp, fmt.Sprintf("HTTP 5%02d", i))
			}(i)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil {
				t.Fatalf("concurrent mark failed: %v", err)
			}
		}
		for i := 0; i < 10; i++ {
			if done, _ := s.IsDone(ctx, fmt.Sprintf("post:%d", i)); !done {
				t.Fatalf("post:%d lost its done status", i)
			}
		}
	})
}
