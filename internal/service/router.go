package service

import (
	"context"
	"fmt"

	"forum/crawler/internal/domain/task"
	"forum/crawler/internal/scheduler"
	"forum/crawler/internal/walker"

	log "github.com/sirupsen/logrus"
)

// router hands each unit to the walker of its board.
type router struct {
	walkers map[string]*walker.Walker
}

func newRouter() *router {
	return &router{walkers: make(map[string]*walker.Walker)}
}

func (r *router) add(board string, w *walker.Walker) {
	r.walkers[board] = w
}

func (r *router) Handle(ctx context.Context, unit task.Task) ([]task.Task, error) {
	w, ok := r.walkers[unit.BoardName()]
	if !ok {
		return nil, fmt.Errorf("no walker for board %q", unit.BoardName())
	}
	return w.Handle(ctx, unit)
}

func (r *router) Settle(unit task.Task, outcome scheduler.Outcome, err error) {
	w, ok := r.walkers[unit.BoardName()]
	if !ok {
		log.Warnf("Dropping %s outcome for unknown board %q", outcome, unit.BoardName())
		return
	}
	w.Settle(unit, outcome, err)
}
