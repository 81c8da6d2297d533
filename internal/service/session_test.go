package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"forum/crawler/internal/client"
	"forum/crawler/internal/config"
	"forum/crawler/internal/domain"
	"forum/crawler/internal/domain/task"
	"forum/crawler/internal/parser"
	"forum/crawler/internal/repository"
	"forum/crawler/internal/state"
)

// fakeForum serves listing pages with postsPerPage posts each, numbered
// page*100+i, and one image per post when withImages is set.
type fakeForum struct {
	*httptest.Server

	pages        int
	postsPerPage int
	withImages   bool
	brokenImages bool

	mu   sync.Mutex
	hits map[string]int
}

func newFakeForum(t *testing.T, pages, postsPerPage int) *fakeForum {
	t.Helper()
	f := &fakeForum{pages: pages, postsPerPage: postsPerPage, hits: make(map[string]int)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeForum) serve(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Path
	if p := r.URL.Query().Get("p"); p != "" {
		key += "?p=" + p
	}
	f.mu.Lock()
	f.hits[key]++
	f.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	switch {
	case strings.HasPrefix(r.URL.Path, "/board/"):
		page, _ := strconv.Atoi(r.URL.Query().Get("p"))
		var b strings.Builder
		b.WriteString(`<html><body><table class="board-list">`)
		if page <= f.pages {
			for i := 1; i <= f.postsPerPage; i++ {
				id := page*100 + i
				fmt.Fprintf(&b, `<tr><td class="title"><a href="/article/Python/%d">Post %d</a></td><td class="author">u%d</td><td class="time">2024-01-01</td></tr>`, id, id, id)
			}
		}
		b.WriteString(`</table><div class="pagination">`)
		if page < f.pages {
			fmt.Fprintf(&b, `<a class="next" href="?p=%d">下一页</a>`, page+1)
		}
		b.WriteString(`</div></body></html>`)
		_, _ = w.Write([]byte(b.String()))

	case strings.HasPrefix(r.URL.Path, "/article/"):
		id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		img := ""
		if f.withImages {
			img = fmt.Sprintf(`<img src="/img/%s.png">`, id)
		}
		fmt.Fprintf(w, `<html><body><h3 class="post-title">Post %s</h3>
<div class="post-meta"><span class="author">u%s</span><span class="time">2024-01-01</span></div>
<div class="post-content"><p>body of %s</p>%s</div></body></html>`, id, id, id, img)

	case strings.HasPrefix(r.URL.Path, "/img/"):
		if f.brokenImages {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png"))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeForum) hitCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[key]
}

func (f *fakeForum) articleHits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for k, v := range f.hits {
		if strings.HasPrefix(k, "/article/") {
			n += v
		}
	}
	return n
}

type testEnv struct {
	session *Session
	store   state.ResumeStore
	output  string
}

func newTestEnv(t *testing.T, forum *fakeForum, stateDir, output string, saveImages bool) *testEnv {
	t.Helper()

	c := client.New(client.Options{Timeout: 2 * time.Second, MaxRetries: 0, RetryDelay: time.Millisecond}, nil)
	t.Cleanup(func() { _ = c.Close() })

	p, err := parser.New(forum.URL)
	if err != nil {
		t.Fatal(err)
	}

	store, err := state.NewFileStore(stateDir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	sink := repository.NewFileSink(output, "")
	return &testEnv{
		session: NewSession(c, p, sink, store, Options{Workers: 3, SaveImages: saveImages}),
		store:   store,
		output:  output,
	}
}

func board(forum *fakeForum, maxPages, maxPosts int) domain.BoardTarget {
	return domain.BoardTarget{Name: "Python", ListingURL: forum.URL + "/board/Python", MaxPages: maxPages, MaxPosts: maxPosts}
}

func TestRunRespectsPostBudget(t *testing.T) {
	forum := newFakeForum(t, 5, 5)
	env := newTestEnv(t, forum, t.TempDir(), t.TempDir(), false)

	report, err := env.session.Run(context.Background(), []domain.BoardTarget{board(forum, 2, 3)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if forum.hitCount("/board/Python?p=2") != 0 {
		t.Fatal("page 2 must not be fetched once the post budget is spent")
	}
	if forum.articleHits() != 3 {
		t.Fatalf("expected 3 post fetches, got %d", forum.articleHits())
	}

	progress, _ := report.Board("Python")
	if progress.State != domain.WalkerDone || progress.PostsFetched != 3 || progress.PagesFetched != 1 {
		t.Fatalf("unexpected progress: %+v", progress)
	}
	if !report.Success() {
		t.Fatalf("expected success, got %+v", report)
	}

	files, _ := filepath.Glob(filepath.Join(env.output, "Python", "posts", "*.json"))
	if len(files) != 3 {
		t.Fatalf("expected 3 saved posts, got %d", len(files))
	}
}

func TestRunWalksAllPages(t *testing.T) {
	forum := newFakeForum(t, 3, 2)
	env := newTestEnv(t, forum, t.TempDir(), t.TempDir(), false)

	report, err := env.session.Run(context.Background(), []domain.BoardTarget{board(forum, 0, 0)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	progress, _ := report.Board("Python")
	if progress.PagesFetched != 3 || progress.PostsFetched != 6 {
		t.Fatalf("unexpected progress: %+v", progress)
	}
	if forum.hitCount("/board/Python?p=4") != 0 {
		t.Fatal("paging must stop at the last page")
	}
}

func TestImageFailureDoesNotFailPost(t *testing.T) {
	forum := newFakeForum(t, 1, 1)
	forum.withImages = true
	forum.brokenImages = true
	env := newTestEnv(t, forum, t.TempDir(), t.TempDir(), true)

	report, err := env.session.Run(context.Background(), []domain.BoardTarget{board(forum, 1, 0)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(report.Failures) != 1 {
		t.Fatalf("expected exactly one failure, got %+v", report.Failures)
	}
	failure := report.Failures[0]
	if failure.Kind != string(task.KindImage) || failure.Category != domain.CategoryPermanent {
		t.Fatalf("unexpected failure: %+v", failure)
	}

	if _, err := os.Stat(filepath.Join(env.output, "Python", "posts", "Post 101_101.json")); err != nil {
		t.Fatalf("post was not persisted: %v", err)
	}

	ref := domain.PostRef{ID: "101", URL: forum.URL + "/article/Python/101"}
	if done, _ := env.store.IsDone(context.Background(), task.PostFingerprint("Python", ref)); !done {
		t.Fatal("post fingerprint must be done")
	}
	if report.Success() {
		t.Fatal("a board with a failed unit is not a clean success")
	}
}

// failureLogStore keeps failed units in memory the way the Redis store keeps
// them in its stream.
type failureLogStore struct {
	state.ResumeStore

	mu     sync.Mutex
	failed []task.Task
}

func (s *failureLogStore) RecordFailure(_ context.Context, unit task.Task, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, unit)
	return nil
}

func (s *failureLogStore) FailedUnits(context.Context) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]task.Task(nil), s.failed...), nil
}

func TestRestartRetriesFailedImages(t *testing.T) {
	forum := newFakeForum(t, 1, 1)
	forum.withImages = true
	forum.brokenImages = true
	stateDir, output := t.TempDir(), t.TempDir()

	first := newTestEnv(t, forum, stateDir, output, true)
	store := &failureLogStore{ResumeStore: first.store}
	first.session.store = store

	report, err := first.session.Run(context.Background(), []domain.BoardTarget{board(forum, 1, 0)})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if len(report.Failures) != 1 || len(store.failed) != 1 {
		t.Fatalf("expected one failed image, got %+v", report.Failures)
	}

	forum.brokenImages = false

	second := newTestEnv(t, forum, t.TempDir(), output, true)
	second.session.store = store

	report, err = second.session.Run(context.Background(), []domain.BoardTarget{board(forum, 1, 0)})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if hits := forum.hitCount("/article/Python/101"); hits != 1 {
		t.Fatalf("done post must not be fetched again, got %d fetches", hits)
	}
	if hits := forum.hitCount("/img/101.png"); hits != 2 {
		t.Fatalf("expected the failed image to be fetched again, got %d fetches", hits)
	}
	progress, _ := report.Board("Python")
	if progress.State != domain.WalkerDone || progress.ImagesFetched != 1 || progress.Failed != 0 {
		t.Fatalf("unexpected progress: %+v", progress)
	}
	if !report.Success() || len(report.Failures) != 0 {
		t.Fatalf("expected clean success, got %+v", report)
	}
}

func TestRestartDoesNotRefetchDonePosts(t *testing.T) {
	forum := newFakeForum(t, 2, 3)
	stateDir := t.TempDir()
	output := t.TempDir()

	first := newTestEnv(t, forum, stateDir, output, false)
	if _, err := first.session.Run(context.Background(), []domain.BoardTarget{board(forum, 0, 0)}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if forum.articleHits() != 6 {
		t.Fatalf("expected 6 post fetches on the first run, got %d", forum.articleHits())
	}
	_ = first.store.Close()

	second := newTestEnv(t, forum, stateDir, output, false)
	report, err := second.session.Run(context.Background(), []domain.BoardTarget{board(forum, 0, 0)})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if forum.articleHits() != 6 {
		t.Fatalf("done posts were fetched again: %d post fetches in total", forum.articleHits())
	}
	progress, _ := report.Board("Python")
	if progress.PostsSkipped != 6 || progress.State != domain.WalkerDone {
		t.Fatalf("unexpected progress: %+v", progress)
	}
}

func TestRunWithCancelledContextAbandonsWork(t *testing.T) {
	forum := newFakeForum(t, 1, 1)
	env := newTestEnv(t, forum, t.TempDir(), t.TempDir(), false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := env.session.Run(ctx, []domain.BoardTarget{board(forum, 0, 0)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Interrupted || report.Abandoned != 1 {
		t.Fatalf("expected an interrupted report, got %+v", report)
	}
	if progress, _ := report.Board("Python"); progress.State != domain.WalkerStopped {
		t.Fatalf("expected Stopped, got %s", progress.State)
	}
	if forum.hitCount("/board/Python?p=1") != 0 {
		t.Fatal("no request should be made after cancellation")
	}
}

func TestRunRejectsInvalidBoards(t *testing.T) {
	forum := newFakeForum(t, 1, 1)
	env := newTestEnv(t, forum, t.TempDir(), t.TempDir(), false)

	_, err := env.session.Run(context.Background(), nil)
	if !errors.Is(err, config.ErrNoBoards) {
		t.Fatalf("expected ErrNoBoards, got %v", err)
	}

	b := board(forum, 0, 0)
	_, err = env.session.Run(context.Background(), []domain.BoardTarget{b, b})
	if !errors.Is(err, config.ErrDuplicateBoard) {
		t.Fatalf("expected ErrDuplicateBoard, got %v", err)
	}
}

func TestWriteReportNamesFailedBoards(t *testing.T) {
	report := &domain.CrawlReport{
		PerBoard: []domain.CrawlProgress{
			{Board: "Python", State: domain.WalkerDone, Failed: 2},
			{Board: "Go", State: domain.WalkerDone},
		},
	}

	var buf bytes.Buffer
	if err := WriteReport(&buf, report); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "At least one board finished without failures") || !strings.Contains(out, "Boards with failures: Python.") {
		t.Errorf("report does not name the failed board:\n%s", out)
	}
}

func TestWriteReport(t *testing.T) {
	report := &domain.CrawlReport{
		StartedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC),
		PerBoard:   []domain.CrawlProgress{{Board: "Python", State: domain.WalkerDone, PostsFetched: 3, Failed: 1}},
		Failures:   []domain.Failure{{Board: "Python", Kind: "image", Category: domain.CategoryPermanent, URL: "https://forum.test/a.png", Reason: "HTTP 404"}},
	}

	var buf bytes.Buffer
	if err := WriteReport(&buf, report); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"# Crawl Report", "Python", "done", "https://forum.test/a.png", "permanent_fetch"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}
