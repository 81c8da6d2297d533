package walker

import (
	"context"
	"fmt"
	"sync"

	"forum/crawler/internal/client"
	"forum/crawler/internal/domain"
	"forum/crawler/internal/domain/task"
	"forum/crawler/internal/parser"
	"forum/crawler/internal/repository"
	"forum/crawler/internal/scheduler"

	log "github.com/sirupsen/logrus"
)

// DoneChecker answers whether a fingerprint already completed in an earlier run.
type DoneChecker interface {
	IsDone(ctx context.Context, fingerprint string) (bool, error)
}

type Options struct {
	SaveImages bool
}

// Walker drives the crawl of one board: it pages through the listing and
// turns discovered posts and images into work units. Caps are enforced
// under the walker's own lock, so they hold with any number of workers.
type Walker struct {
	board  domain.BoardTarget
	client client.Client
	parser parser.Parser
	sink   repository.PostSink
	resume DoneChecker
	opts   Options

	mu       sync.Mutex
	progress domain.CrawlProgress
	pending  int  // emitted units not yet settled
	stopped  bool // some unit was interrupted or abandoned
}

func New(
	board domain.BoardTarget,
	client client.Client,
	parser parser.Parser,
	sink repository.PostSink,
	resume DoneChecker,
	opts Options,
) *Walker {
	return &Walker{
		board:  board,
		client: client,
		parser: parser,
		sink:   sink,
		resume: resume,
		opts:   opts,
		progress: domain.CrawlProgress{
			Board: board.Name,
			State: domain.WalkerStart,
		},
	}
}

func (w *Walker) Board() domain.BoardTarget {
	return w.board
}

// Start emits the first listing page.
func (w *Walker) Start() task.Task {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.progress.State = domain.WalkerPagingUp
	w.progress.PagesEmitted++
	w.pending++

	log.Infof("🔄 Walking board %s (max pages: %d, max posts: %d)", w.board.Name, w.board.MaxPages, w.board.MaxPosts)
	return w.pageTask(1)
}

// Replay re-emits a unit that failed in an earlier run. It settles like any
// other unit of this walker.
func (w *Walker) Replay(unit task.Task) task.Task {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending++
	return unit
}

func (w *Walker) pageTask(page int) *task.PageFetchTask {
	return &task.PageFetchTask{
		Board:     w.board.Name,
		PageIndex: page,
		URL:       w.board.PageURL(page),
	}
}

// Handle executes one unit of this board.
func (w *Walker) Handle(ctx context.Context, unit task.Task) ([]task.Task, error) {
	switch unit.Kind() {
	case task.KindPage:
		return w.handlePage(ctx, unit.(*task.PageFetchTask))
	case task.KindPost:
		return w.handlePost(ctx, unit.(*task.PostFetchTask))
	case task.KindImage:
		return nil, w.handleImage(ctx, unit.(*task.ImageFetchTask))
	default:
		return nil, fmt.Errorf("unknown unit kind %q", unit.Kind())
	}
}

func (w *Walker) fetch(ctx context.Context, url string) (*client.Response, string, error) {
	resp, err := w.client.Fetch(ctx, client.Request{URL: url})
	if err != nil {
		return nil, "", err
	}
	return resp, parser.Decode(resp.Body, resp.ContentType()), nil
}

func (w *Walker) handlePage(ctx context.Context, t *task.PageFetchTask) ([]task.Task, error) {
	_, html, err := w.fetch(ctx, t.URL)
	if err != nil {
		return nil, err
	}

	listing, err := w.parser.ParseListingPage(html)
	if err != nil {
		return nil, fmt.Errorf("listing page %d of %s: %w", t.PageIndex, w.board.Name, err)
	}

	// resume lookups may hit the store, so they run before taking the lock
	done := make([]bool, len(listing.PostRefs))
	for i, ref := range listing.PostRefs {
		ok, err := w.resume.IsDone(ctx, task.PostFingerprint(w.board.Name, ref))
		if err != nil {
			log.Warnf("Resume lookup failed for %s, fetching it again: %v", ref.URL, err)
		}
		done[i] = ok
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.progress.PagesFetched++

	children := make([]task.Task, 0, len(listing.PostRefs)+1)
	for i, ref := range listing.PostRefs {
		if done[i] {
			w.progress.PostsSkipped++
			continue
		}
		if w.board.PostCapReached(w.progress.PostsEmitted) {
			break
		}
		children = append(children, &task.PostFetchTask{Board: w.board.Name, Ref: ref})
		w.progress.PostsEmitted++
	}

	if !w.board.PageCapReached(t.PageIndex) &&
		listing.HasNextPage &&
		len(listing.PostRefs) > 0 &&
		!w.board.PostCapReached(w.progress.PostsEmitted) {
		children = append(children, w.pageTask(t.PageIndex+1))
		w.progress.PagesEmitted++
	} else if w.progress.State == domain.WalkerPagingUp {
		w.progress.State = domain.WalkerDraining
		log.Infof("📄 Board %s: last listing page is %d", w.board.Name, t.PageIndex)
	}

	w.pending += len(children)

	log.Infof("📄 Board %s page %d: %d posts listed, %d units emitted", w.board.Name, t.PageIndex, len(listing.PostRefs), len(children))
	return children, nil
}

func (w *Walker) handlePost(ctx context.Context, t *task.PostFetchTask) ([]task.Task, error) {
	_, html, err := w.fetch(ctx, t.Ref.URL)
	if err != nil {
		return nil, err
	}

	page, err := w.parser.ParsePostPage(html)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", t.Ref.URL, err)
	}

	post := domain.NewPost(w.board.Name, t.Ref, page)

	// a post that was fetched is written even when the session is stopping
	if err := w.sink.SavePost(context.WithoutCancel(ctx), w.board.Name, post); err != nil {
		return nil, fmt.Errorf("%w: post %s: %w", domain.ErrPersistence, t.Ref.URL, err)
	}

	var children []task.Task
	if w.opts.SaveImages {
		postKey := post.ID
		if postKey == "" {
			postKey = post.URL
		}
		for i, imageURL := range post.ImageRefs {
			children = append(children, &task.ImageFetchTask{
				Board:     w.board.Name,
				PostID:    postKey,
				PostTitle: post.Title,
				URL:       imageURL,
				Index:     i + 1,
			})
		}
	}

	w.mu.Lock()
	w.progress.PostsFetched++
	w.pending += len(children)
	w.mu.Unlock()

	log.Infof("✅ Saved post %q (%d images)", post.Title, len(post.ImageRefs))
	return children, nil
}

func (w *Walker) handleImage(ctx context.Context, t *task.ImageFetchTask) error {
	resp, err := w.client.Fetch(ctx, client.Request{URL: t.URL})
	if err != nil {
		return err
	}

	if err := w.sink.SaveImage(context.WithoutCancel(ctx), w.board.Name, t.PostTitle, resp.Body, t.Index, t.URL); err != nil {
		return fmt.Errorf("%w: image %s: %w", domain.ErrPersistence, t.URL, err)
	}

	w.mu.Lock()
	w.progress.ImagesFetched++
	w.mu.Unlock()
	return nil
}

// Settle records how a unit emitted by this walker ended. The walker is Done
// once paging has stopped and every emitted unit has settled.
func (w *Walker) Settle(unit task.Task, outcome scheduler.Outcome, _ error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch outcome {
	case scheduler.OutcomeFailed:
		w.progress.Failed++
	case scheduler.OutcomeSkipped:
		if unit.Kind() == task.KindPost {
			w.progress.PostsSkipped++
		}
	case scheduler.OutcomeInterrupted, scheduler.OutcomeAbandoned:
		w.stopped = true
	}

	// a listing page that did not complete ends paging
	if unit.Kind() == task.KindPage && outcome != scheduler.OutcomeDone && w.progress.State == domain.WalkerPagingUp {
		w.progress.State = domain.WalkerDraining
	}

	w.pending--
	if w.pending == 0 && w.progress.State == domain.WalkerDraining {
		w.finishLocked()
	}
}

func (w *Walker) finishLocked() {
	if w.stopped {
		w.progress.State = domain.WalkerStopped
	} else {
		w.progress.State = domain.WalkerDone
	}
	log.Infof("🏁 Board %s %s: %d pages, %d posts, %d images, %d skipped, %d failed",
		w.board.Name, w.progress.State, w.progress.PagesFetched, w.progress.PostsFetched,
		w.progress.ImagesFetched, w.progress.PostsSkipped, w.progress.Failed)
}

// Finish closes the walk after the scheduler returned. A walker that had not
// reached Done by then was cut short by the session stopping.
func (w *Walker) Finish() domain.CrawlProgress {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.progress.State {
	case domain.WalkerDone, domain.WalkerStopped:
	default:
		w.stopped = true
		w.finishLocked()
	}
	return w.progress
}

// Progress returns a snapshot of the board counters.
func (w *Walker) Progress() domain.CrawlProgress {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.progress
}
