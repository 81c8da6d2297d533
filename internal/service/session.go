package service

import (
	"context"
	"fmt"
	"time"

	"forum/crawler/internal/client"
	"forum/crawler/internal/config"
	"forum/crawler/internal/domain"
	"forum/crawler/internal/domain/task"
	"forum/crawler/internal/parser"
	"forum/crawler/internal/repository"
	"forum/crawler/internal/scheduler"
	"forum/crawler/internal/state"
	"forum/crawler/internal/walker"

	log "github.com/sirupsen/logrus"
)

// failedUnitSource is implemented by stores that keep the units which failed
// in earlier runs.
type failedUnitSource interface {
	FailedUnits(ctx context.Context) ([]task.Task, error)
}

type Options struct {
	Workers    int
	SaveImages bool
}

// Session runs one crawl over a set of boards, from loading the resume state
// to the final report.
type Session struct {
	client client.Client
	parser parser.Parser
	sink   repository.PostSink
	store  state.ResumeStore
	opts   Options
}

func NewSession(
	client client.Client,
	parser parser.Parser,
	sink repository.PostSink,
	store state.ResumeStore,
	opts Options,
) *Session {
	return &Session{
		client: client,
		parser: parser,
		sink:   sink,
		store:  store,
		opts:   opts,
	}
}

// Run crawls boards until every walker is done or ctx is cancelled. Unit
// failures only show up in the report; an error means the session could not
// start at all.
func (s *Session) Run(ctx context.Context, boards []domain.BoardTarget) (*domain.CrawlReport, error) {
	if err := validateBoards(boards); err != nil {
		return nil, err
	}

	report := &domain.CrawlReport{StartedAt: time.Now().UTC()}

	records, err := s.store.Load(ctx)
	if err != nil {
		log.Warnf("⚠️ Failed to load resume state, starting fresh: %v", err)
		records = nil
	}
	if n := countDone(records); n > 0 {
		log.Infof("🔄 Resuming: %d units already done", n)
	}

	r := newRouter()
	walkers := make([]*walker.Walker, 0, len(boards))
	for _, board := range boards {
		w := walker.New(board, s.client, s.parser, s.sink, s.store, walker.Options{SaveImages: s.opts.SaveImages})
		r.add(board.Name, w)
		walkers = append(walkers, w)
	}

	sched := scheduler.New(r, s.store, s.opts.Workers, records)
	for _, w := range walkers {
		sched.Submit(w.Start())
	}
	s.replayFailedImages(ctx, r, sched)

	summary := sched.Run(ctx)

	for _, w := range walkers {
		progress := w.Finish()
		report.PerBoard = append(report.PerBoard, progress)
		if progress.State == domain.WalkerStopped {
			report.Interrupted = true
		}
	}
	report.Failures = summary.Failures
	report.Skipped = summary.Skipped
	report.Duplicates = summary.Duplicates
	report.Abandoned = summary.Abandoned
	if summary.Interrupted > 0 || summary.Abandoned > 0 {
		report.Interrupted = true
	}
	report.FinishedAt = time.Now().UTC()

	log.Infof("🏁 Crawl finished in %s: %d succeeded, %d failed, %d skipped, %d abandoned",
		report.Duration().Round(time.Millisecond), summary.Succeeded, summary.Failed, summary.Skipped, summary.Abandoned)

	return report, nil
}

// replayFailedImages resubmits images that failed in earlier runs. Their posts
// are done and will not be fetched again, so nothing else would retry them.
// Failed posts need no replay since the listing rediscovers them.
func (s *Session) replayFailedImages(ctx context.Context, r *router, sched *scheduler.Scheduler) {
	source, ok := s.store.(failedUnitSource)
	if !ok || !s.opts.SaveImages {
		return
	}

	units, err := source.FailedUnits(ctx)
	if err != nil {
		log.Warnf("⚠️ Failed to read failed units, not retrying them: %v", err)
		return
	}

	replayed := 0
	for _, unit := range units {
		if unit.Kind() != task.KindImage {
			continue
		}
		w, ok := r.walkers[unit.BoardName()]
		if !ok {
			continue
		}
		if sched.Submit(w.Replay(unit)) {
			replayed++
		}
	}
	if replayed > 0 {
		log.Infof("🔁 Retrying %d images that failed in earlier runs", replayed)
	}
}

func validateBoards(boards []domain.BoardTarget) error {
	if len(boards) == 0 {
		return config.ErrNoBoards
	}

	seen := make(map[string]struct{}, len(boards))
	for _, board := range boards {
		if err := board.Validate(); err != nil {
			return err
		}
		if _, ok := seen[board.Name]; ok {
			return fmt.Errorf("%w: %s", config.ErrDuplicateBoard, board.Name)
		}
		seen[board.Name] = struct{}{}
	}
	return nil
}

func countDone(records map[string]domain.ResumeRecord) int {
	n := 0
	for _, rec := range records {
		if rec.Status == domain.StatusDone {
			n++
		}
	}
	return n
}
