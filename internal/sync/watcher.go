package sync

import (
	"context"
	"log/slog"
	stdsync "sync"

	"github.com/whodunit/platform/internal/domain"
)

// LatestEliminationFunc fetches the most recent kill record for the watched
// session, invoked when an elimination edge is observed.
type LatestEliminationFunc func(ctx context.Context) (*domain.GameEvent, error)

// EliminationHandler receives the record behind an observed elimination edge.
type EliminationHandler func(record *domain.GameEvent)

// Watcher ties a projection to its producers: one snapshot read on attach,
// then any number of sources folded concurrently into the shared projection.
// Detaching is cancelling the context passed to Run; in-flight writes issued
// elsewhere are unaffected.
type Watcher struct {
	mu   stdsync.Mutex
	proj *Projection

	snapshot      SnapshotFunc
	latestElim    LatestEliminationFunc
	onElimination EliminationHandler
	logger        *slog.Logger
}

// NewWatcher creates a watcher. onElimination may be nil when the caller has
// no elimination side effect to run.
func NewWatcher(snapshot SnapshotFunc, latestElim LatestEliminationFunc, onElimination EliminationHandler, logger *slog.Logger) *Watcher {
	return &Watcher{
		proj:          NewProjection(),
		snapshot:      snapshot,
		latestElim:    latestElim,
		onElimination: onElimination,
		logger:        logger,
	}
}

// Attach seeds the projection with a full snapshot read. Events delivered by
// a feed that connected before the snapshot are folded harmlessly on top.
func (w *Watcher) Attach(ctx context.Context) error {
	snap, err := w.snapshot(ctx)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.proj.LoadSnapshot(*snap)
	w.mu.Unlock()
	return nil
}

// Run consumes every source until ctx is cancelled. Each source failure is
// logged and ends that source only; the fold's idempotence means the
// remaining producers keep the projection converging.
func (w *Watcher) Run(ctx context.Context, sources ...Source) {
	var wg stdsync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			for {
				ev, err := src.Next(ctx)
				if err != nil {
					if ctx.Err() == nil {
						w.logger.Error("change source failed", "error", err)
					}
					return
				}
				w.fold(ctx, ev)
			}
		}(src)
	}
	wg.Wait()
}

// fold applies one event and dispatches any effects it produced.
func (w *Watcher) fold(ctx context.Context, ev domain.ChangeEvent) {
	w.mu.Lock()
	effects, err := w.proj.Apply(ev)
	w.mu.Unlock()
	if err != nil {
		w.logger.Error("fold change event", "table", ev.Table, "op", ev.Op, "error", err)
		return
	}

	for _, effect := range effects {
		if effect.Kind != EffectEliminationObserved || w.onElimination == nil {
			continue
		}
		record, err := w.latestElim(ctx)
		if err != nil {
			w.logger.Error("fetch latest elimination", "error", err)
			continue
		}
		if record != nil {
			w.onElimination(record)
		}
	}
}

// View is the read-only projection exposed at the presentation boundary.
type View struct {
	Session            *domain.Session      `json:"session"`
	Phase              domain.Phase         `json:"phase"`
	Participants       []domain.Participant `json:"participants"`
	LatestElimination  *domain.GameEvent    `json:"latest_elimination,omitempty"`
	LatestBallotResult *domain.GameEvent    `json:"latest_ballot_result,omitempty"`
	BallotCounts       map[string]int       `json:"ballot_counts"`
}

// View copies the current projection state, safe to hand across goroutines.
func (w *Watcher) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()

	view := View{
		Session:            w.proj.Session,
		Participants:       w.proj.Participants(),
		LatestElimination:  w.proj.LatestElimination,
		LatestBallotResult: w.proj.LatestBallotResult,
		BallotCounts:       make(map[string]int),
	}
	if w.proj.Session != nil {
		view.Phase = w.proj.Session.Phase
	}
	for id, n := range w.proj.BallotCounts() {
		view.BallotCounts[id.String()] = n
	}
	return view
}
