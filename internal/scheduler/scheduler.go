package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"forum/crawler/internal/domain"
	"forum/crawler/internal/domain/task"
	"forum/crawler/internal/state"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Handler executes units and is told how each one settled.
type Handler interface {
	// Handle runs the unit and returns the follow-up units it discovered.
	Handle(ctx context.Context, unit task.Task) ([]task.Task, error)
	// Settle is called exactly once per submitted unit.
	Settle(unit task.Task, outcome Outcome, err error)
}

// Scheduler runs work units on a bounded pool of workers. A fingerprint is
// accepted at most once per session, and fingerprints already done in the
// resume store are never executed again.
type Scheduler struct {
	handler Handler
	store   state.ResumeStore
	workers int

	mu          sync.Mutex
	cond        *sync.Cond
	queue       []task.Task
	seen        map[string]struct{}
	done        map[string]struct{}
	outstanding int // queued plus in flight
	inflight    int
	stopped     bool
	running     bool
	summary     Summary
}

// New builds a scheduler. done seeds the skip set, normally from ResumeStore.Load.
func New(handler Handler, store state.ResumeStore, workers int, done map[string]domain.ResumeRecord) *Scheduler {
	if workers < 1 {
		workers = 1
	}

	s := &Scheduler{
		handler: handler,
		store:   store,
		workers: workers,
		seen:    make(map[string]struct{}),
		done:    make(map[string]struct{}),
	}
	s.cond = sync.NewCond(&s.mu)

	for fp, rec := range done {
		if rec.Status == domain.StatusDone {
			s.done[fp] = struct{}{}
		}
	}
	return s
}

// Submit enqueues unit unless its fingerprint is already done or was already
// accepted in this session. It reports whether the unit was enqueued.
func (s *Scheduler) Submit(unit task.Task) bool {
	fp := unit.Fingerprint()

	s.mu.Lock()
	outcome := OutcomeQueued
	switch {
	case s.stopped:
		outcome = OutcomeAbandoned
		s.summary.Abandoned++
	case s.isDoneLocked(fp):
		outcome = OutcomeSkipped
		s.summary.Skipped++
	case s.isSeenLocked(fp):
		outcome = OutcomeDuplicate
		s.summary.Duplicates++
	default:
		s.seen[fp] = struct{}{}
		s.queue = append(s.queue, unit)
		s.outstanding++
		s.cond.Signal()
	}
	s.mu.Unlock()

	if outcome != OutcomeQueued {
		log.WithFields(unitFields(unit)).Debugf("Unit not queued: %s", outcome)
		s.handler.Settle(unit, outcome, nil)
		return false
	}

	if task.Resumable(unit) {
		if err := s.store.MarkPending(context.Background(), fp); err != nil {
			log.WithFields(unitFields(unit)).Warnf("Failed to record pending unit: %v", err)
		}
	}
	return true
}

func (s *Scheduler) isDoneLocked(fp string) bool {
	_, ok := s.done[fp]
	return ok
}

func (s *Scheduler) isSeenLocked(fp string) bool {
	_, ok := s.seen[fp]
	return ok
}

// Run executes queued units until the queue is empty with nothing in flight,
// or until ctx is cancelled. On cancellation no further unit is started;
// units already running finish and are recorded, queued ones are abandoned.
func (s *Scheduler) Run(ctx context.Context) Summary {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		panic("scheduler: Run called twice")
	}
	s.running = true
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.stopped = true
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	log.Infof("🚀 Starting %d workers", s.workers)

	g := new(errgroup.Group)
	for i := 0; i < s.workers; i++ {
		workerID := i
		g.Go(func() error {
			s.work(ctx, workerID)
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	abandoned := s.queue
	s.queue = nil
	s.outstanding -= len(abandoned)
	s.summary.Abandoned += len(abandoned)
	summary := s.summary.clone()
	s.mu.Unlock()

	for _, unit := range abandoned {
		s.handler.Settle(unit, OutcomeAbandoned, nil)
	}
	if len(abandoned) > 0 {
		log.Warnf("⏹️ Abandoned %d queued units after stop", len(abandoned))
	}

	return summary
}

func (s *Scheduler) work(ctx context.Context, workerID int) {
	for {
		unit, ok := s.next(ctx)
		if !ok {
			log.Debugf("Worker %d exiting", workerID)
			return
		}
		s.execute(ctx, unit)
	}
}

// next blocks until a unit is available. It returns false once the
// scheduler is stopped or quiescent.
func (s *Scheduler) next(ctx context.Context) (task.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.queue) == 0 && s.outstanding > 0 && !s.stopped {
		s.cond.Wait()
	}
	if s.stopped || ctx.Err() != nil || len(s.queue) == 0 {
		return nil, false
	}

	unit := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	s.inflight++
	return unit, true
}

func (s *Scheduler) execute(ctx context.Context, unit task.Task) {
	fields := unitFields(unit)
	fp := unit.Fingerprint()
	resumable := task.Resumable(unit)

	// recording outlives the session context so finished work is never lost
	recordCtx := context.WithoutCancel(ctx)

	if resumable {
		done, err := s.store.IsDone(recordCtx, fp)
		if err != nil {
			log.WithFields(fields).Warnf("Resume lookup failed, executing anyway: %v", err)
		}
		if done {
			s.mu.Lock()
			s.summary.Skipped++
			s.mu.Unlock()
			s.handler.Settle(unit, OutcomeSkipped, nil)
			s.finish()
			return
		}
	}

	children, err := s.invoke(ctx, unit)

	switch {
	case err == nil:
		if resumable {
			if err := s.store.MarkDone(recordCtx, fp); err != nil {
				log.WithFields(fields).Errorf("❌ Failed to record completed unit: %v", err)
			}
		}
		s.mu.Lock()
		s.summary.Executed++
		s.summary.Succeeded++
		s.done[fp] = struct{}{}
		s.mu.Unlock()

		s.handler.Settle(unit, OutcomeDone, nil)
		for _, child := range children {
			s.Submit(child)
		}

	case errors.Is(err, context.Canceled):
		log.WithFields(fields).Infof("⏹️ Unit interrupted: %v", err)
		s.mu.Lock()
		s.summary.Executed++
		s.summary.Interrupted++
		s.mu.Unlock()
		s.handler.Settle(unit, OutcomeInterrupted, err)

	default:
		failure := domain.Failure{
			Fingerprint: fp,
			Board:       unit.BoardName(),
			Kind:        unit.Kind().String(),
			URL:         unit.Target(),
			Reason:      err.Error(),
			Category:    domain.Classify(err),
		}
		log.WithFields(fields).WithField("category", failure.Category).Errorf("❌ Unit failed: %v", err)

		if resumable {
			if err := s.store.MarkFailed(recordCtx, fp, failure.Reason); err != nil {
				log.WithFields(fields).Errorf("Failed to record failed unit: %v", err)
			}
		}
		if recorder, ok := s.store.(state.FailureRecorder); ok {
			if err := recorder.RecordFailure(recordCtx, unit, failure.Reason); err != nil {
				log.WithFields(fields).Warnf("Failed to log failed unit: %v", err)
			}
		}
		s.mu.Lock()
		s.summary.Executed++
		s.summary.Failed++
		s.summary.Failures = append(s.summary.Failures, failure)
		s.mu.Unlock()
		s.handler.Settle(unit, OutcomeFailed, err)
	}

	s.finish()
}

// invoke runs the handler, turning a panic into a unit failure.
func (s *Scheduler) invoke(ctx context.Context, unit task.Task) (children []task.Task, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(unitFields(unit)).Errorf("💥 Handler panic: %v\n%s", r, debug.Stack())
			children = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return s.handler.Handle(ctx, unit)
}

// finish retires an in-flight unit after its children were submitted, so
// quiescence is only observed once no more work can appear.
func (s *Scheduler) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inflight--
	s.outstanding--
	if s.outstanding == 0 || s.stopped {
		s.cond.Broadcast()
	}
}

func unitFields(unit task.Task) log.Fields {
	return log.Fields{
		"board": unit.BoardName(),
		"kind":  unit.Kind().String(),
		"url":   unit.Target(),
	}
}
