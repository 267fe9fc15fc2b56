// Package monitor drives the recurring search cycles: fan out one task per
// enabled search, deliver what matched, sleep out the rest of the interval.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mhorvath/vintedwatch/internal/clock"
	"github.com/mhorvath/vintedwatch/internal/metrics"
	"github.com/mhorvath/vintedwatch/internal/model"
	"github.com/mhorvath/vintedwatch/internal/vinted"
)

// ErrNoEnabledSearches is returned when the scheduler is asked to run with
// nothing to monitor. It is a configuration error and fatal to startup.
var ErrNoEnabledSearches = errors.New("monitor: no enabled searches configured")

// State is the scheduler lifecycle state.
type State int32

// Lifecycle states. Transitions are strictly forward.
const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Searcher executes one catalog search.
type Searcher interface {
	Search(ctx context.Context, f model.Filter, page, perPage int) ([]model.Listing, error)
}

// Deliverer sends new listings to a chat and reports how many went out.
type Deliverer interface {
	Deliver(ctx context.Context, listings []model.Listing, chatID int64) int
}

// Config controls cycle behavior.
type Config struct {
	Interval time.Duration
	PerPage  int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 50 * time.Second
	}
	if c.PerPage <= 0 {
		c.PerPage = 20
	}
	return c
}

// SearchStatus is a point-in-time snapshot of one search's statistics.
type SearchStatus struct {
	Name       string    `json:"name"`
	Query      string    `json:"query"`
	ChatID     int64     `json:"chat_id"`
	Enabled    bool      `json:"enabled"`
	LastRun    time.Time `json:"last_run"`
	ItemsFound int       `json:"items_found"`
}

// Scheduler owns the monitoring loop. Cycles run strictly sequentially;
// within a cycle the per-search tasks run concurrently and are isolated
// from each other's failures.
type Scheduler struct {
	cfg      Config
	client   Searcher
	notifier Deliverer
	searches []*model.Search
	closer   io.Closer
	clock    clock.Clock
	logger   *zap.Logger

	state atomic.Int32

	// statsMu guards the mutable run statistics on the searches.
	statsMu sync.Mutex
}

// New builds a Scheduler. closer is released when the scheduler stops,
// typically the shared session; it may be nil.
func New(cfg Config, client Searcher, notifier Deliverer, searches []*model.Search, closer io.Closer, c clock.Clock, logger *zap.Logger) *Scheduler {
	if c == nil {
		c = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:      cfg.withDefaults(),
		client:   client,
		notifier: notifier,
		searches: searches,
		closer:   closer,
		clock:    c,
		logger:   logger,
	}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Snapshot returns a copy of every search's current statistics.
func (s *Scheduler) Snapshot() []SearchStatus {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	out := make([]SearchStatus, 0, len(s.searches))
	for _, sc := range s.searches {
		out = append(out, SearchStatus{
			Name:       sc.Name,
			Query:      sc.Filter.Query,
			ChatID:     sc.ChatID,
			Enabled:    sc.Enabled,
			LastRun:    sc.LastRun,
			ItemsFound: sc.ItemsFound,
		})
	}
	return out
}

// Run executes cycles until ctx is canceled, then releases the session and
// returns. Cancellation is observed at cycle boundaries only; an in-flight
// cycle finishes its fan-out first. Returns ErrNoEnabledSearches without
// starting when there is nothing to monitor.
func (s *Scheduler) Run(ctx context.Context) error {
	enabled := s.enabledSearches()
	if len(enabled) == 0 {
		return ErrNoEnabledSearches
	}
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("monitor: run called in state %s", s.State())
	}

	metrics.SetActiveSearches(len(enabled))
	s.logger.Info("monitor started",
		zap.Int("searches", len(enabled)),
		zap.Duration("interval", s.cfg.Interval))

	for ctx.Err() == nil {
		start := s.clock.Now()
		cycleID := uuid.NewString()

		s.runCycle(ctx, cycleID, enabled)
		metrics.IncCycle()

		elapsed := s.clock.Now().Sub(start)
		s.logger.Info("cycle complete",
			zap.String("cycle", cycleID),
			zap.Duration("elapsed", elapsed),
			zap.Duration("next_in", s.cfg.Interval-elapsed))

		// Sleep out what remains of the interval. A cycle that overran
		// proceeds immediately.
		pause(ctx, s.cfg.Interval-elapsed)
	}

	s.state.Store(int32(StateStopping))
	s.logger.Info("monitor stopping")
	if s.closer != nil {
		// Best effort: in-flight requests may be aborted by this.
		if err := s.closer.Close(); err != nil {
			s.logger.Warn("session release failed", zap.Error(err))
		}
	}
	s.state.Store(int32(StateStopped))
	s.logger.Info("monitor stopped")
	return nil
}

// runCycle fans out one task per enabled search and waits for all of them.
func (s *Scheduler) runCycle(ctx context.Context, cycleID string, searches []*model.Search) {
	var wg sync.WaitGroup
	for _, sc := range searches {
		wg.Add(1)
		go func(sc *model.Search) {
			defer wg.Done()
			s.runSearch(ctx, cycleID, sc)
		}(sc)
	}
	wg.Wait()
}

// runSearch executes one search task. Failures, including panics, are
// contained here and never cancel sibling tasks or the cycle.
func (s *Scheduler) runSearch(ctx context.Context, cycleID string, sc *model.Search) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("search task panicked",
				zap.String("cycle", cycleID),
				zap.String("search", sc.Name),
				zap.Any("panic", r))
		}
	}()

	log := s.logger.With(zap.String("cycle", cycleID), zap.String("search", sc.Name))
	log.Debug("processing search")

	listings, err := s.client.Search(ctx, sc.Filter, 1, s.cfg.PerPage)
	if err != nil {
		kind := vinted.Classify(err)
		metrics.IncFetchError(kind)
		log.Warn("search failed", zap.String("kind", kind), zap.Error(err))
		return
	}

	s.recordRun(sc, len(listings))
	metrics.AddListings(sc.Name, len(listings))
	if len(listings) == 0 {
		return
	}

	sent := s.notifier.Deliver(ctx, listings, sc.ChatID)
	log.Debug("search delivered", zap.Int("matched", len(listings)), zap.Int("sent", sent))
}

func (s *Scheduler) recordRun(sc *model.Search, found int) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	sc.LastRun = s.clock.Now()
	sc.ItemsFound = found
}

func (s *Scheduler) enabledSearches() []*model.Search {
	out := make([]*model.Search, 0, len(s.searches))
	for _, sc := range s.searches {
		if sc.Enabled {
			out = append(out, sc)
		}
	}
	return out
}

// pause sleeps for d or until ctx is done, whichever comes first.
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
