// Package pairsup supervises one goroutine per trading pair, each with
// exclusive access to that pair's Facade — the single-writer discipline
// events.TxBus and the rest of the core assume (see facade.Facade's doc
// comment). Adapted from the teacher's internal/worker.go WorkerPool, but
// keyed by pair rather than by an unbounded generic task queue: a CLOB
// cannot let two goroutines interleave matches against the same order
// book, so each pair gets exactly one worker instead of a shared pool.
package pairsup

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"clob/internal/admin"
)

var (
	ErrUnknownPair    = errors.New("pairsup: pair not registered")
	ErrSupervisorDown = errors.New("pairsup: supervisor is shutting down")
)

// job is one unit of exclusive-access work submitted to a pair's worker.
type job struct {
	run  func() (any, error)
	resp chan result
}

type result struct {
	val any
	err error
}

// worker owns one pair's inbox and runs every submitted job serially.
type worker struct {
	pair  admin.Pair
	inbox chan job
}

// Supervisor owns one worker goroutine per configured pair and routes
// Submit calls to the right one by pair.
type Supervisor struct {
	t      *tomb.Tomb
	mu     sync.RWMutex
	byPair map[admin.Pair]*worker
}

// New constructs a Supervisor with no workers registered yet; call
// Register for each pair the engine serves before calling Run.
func New() *Supervisor {
	return &Supervisor{byPair: make(map[admin.Pair]*worker)}
}

// Register adds a pair's worker inbox. Every job submitted for that pair
// through Submit runs serially on its worker — typically a closure over
// that pair's *facade.Facade.
func (s *Supervisor) Register(pair admin.Pair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPair[pair] = &worker{pair: pair, inbox: make(chan job, 64)}
}

// Run starts every registered worker under a tomb.Tomb tied to ctx, and
// blocks until ctx is canceled or a worker returns an error.
func (s *Supervisor) Run(ctx context.Context) error {
	s.t, ctx = tomb.WithContext(ctx)
	s.mu.RLock()
	workers := make([]*worker, 0, len(s.byPair))
	for _, w := range s.byPair {
		workers = append(workers, w)
	}
	s.mu.RUnlock()

	for _, w := range workers {
		w := w
		s.t.Go(func() error { return s.runWorker(w) })
	}
	<-s.t.Dying()
	return s.t.Err()
}

func (s *Supervisor) runWorker(w *worker) error {
	log.Info().Str("base", w.pair.Base).Str("quote", w.pair.Quote).Msg("pairsup: worker starting")
	for {
		select {
		case <-s.t.Dying():
			return nil
		case j := <-w.inbox:
			val, err := j.run()
			j.resp <- result{val: val, err: err}
		}
	}
}

// Submit enqueues run to execute on pair's worker and blocks until it
// completes, ctx is canceled, or the supervisor is shutting down.
func Submit[T any](ctx context.Context, s *Supervisor, pair admin.Pair, run func() (T, error)) (T, error) {
	var zero T
	if s.t != nil && !s.t.Alive() {
		return zero, ErrSupervisorDown
	}
	s.mu.RLock()
	w, ok := s.byPair[pair]
	s.mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("%w: %s/%s", ErrUnknownPair, pair.Base, pair.Quote)
	}

	resp := make(chan result, 1)
	j := job{run: func() (any, error) { return run() }, resp: resp}

	select {
	case w.inbox <- j:
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case r := <-resp:
		if r.err != nil {
			return zero, r.err
		}
		if r.val == nil {
			return zero, nil
		}
		return r.val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
