// Package pipeline runs one evaluate → suppress → dispatch pass over the whole
// fleet. Both triggers (daily timer, on-demand HTTP call) drive this same code.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/st20medic/trucks/internal/domain"
	"github.com/st20medic/trucks/internal/metrics"
	"github.com/st20medic/trucks/internal/notify"
	"github.com/st20medic/trucks/internal/rules"
	"github.com/st20medic/trucks/internal/store"
)

// Store is the vehicle/suppression persistence the pass needs.
// *store.PostgresStore satisfies it.
type Store interface {
	ListVehicleStates(ctx context.Context) ([]store.VehicleState, error)
	RecordBatchSent(ctx context.Context, vehicleIDs []string, at time.Time) error
}

// Publisher receives side outputs for the dashboard. *store.RedisStore
// satisfies it. Failures here are logged and never fail the pass.
type Publisher interface {
	CacheVehicleAlerts(ctx context.Context, vehicleID string, alerts []domain.Alert, outOfService bool, evaluatedAt time.Time, ttl time.Duration) error
	PublishDigestEvent(ctx context.Context, payload []byte) error
}

// Dispatcher delivers the digest. *notify.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, entries []notify.DigestEntry, now time.Time) (notify.DispatchResult, error)
}

// Summary is what a trigger surfaces as its result.
type Summary struct {
	Evaluated  int                   `json:"evaluated"`
	Alerting   int                   `json:"alerting"`
	Suppressed int                   `json:"suppressed"`
	Included   []string              `json:"included"`
	Dispatch   notify.DispatchResult `json:"dispatch"`
	Sent       bool                  `json:"sent"`
	RanAt      time.Time             `json:"ran_at"`
	Forced     bool                  `json:"forced"`
}

type Pipeline struct {
	store       Store
	publisher   Publisher
	dispatcher  Dispatcher
	ruleset     rules.Ruleset
	batchWindow time.Duration
	cacheTTL    time.Duration
	workers     int
	logger      *zap.Logger
}

type Options struct {
	BatchWindow time.Duration
	CacheTTL    time.Duration
	Workers     int
}

func New(st Store, pub Publisher, disp Dispatcher, rs rules.Ruleset, opts Options, logger *zap.Logger) *Pipeline {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	batchWindow := opts.BatchWindow
	if batchWindow <= 0 {
		batchWindow = 7 * 24 * time.Hour
	}
	return &Pipeline{
		store:       st,
		publisher:   pub,
		dispatcher:  disp,
		ruleset:     rs,
		batchWindow: batchWindow,
		cacheTTL:    opts.CacheTTL,
		workers:     workers,
		logger:      logger.Named("pipeline"),
	}
}

// Run executes one pass. force bypasses the 7-day batch gate (the documented
// escape hatch for on-demand verification); it never bypasses the per-kind
// clearance gate. Suppression state advances only after a fully successful
// dispatch; any detectable failure leaves it untouched so a re-trigger can
// re-attempt the same batch.
func (p *Pipeline) Run(ctx context.Context, now time.Time, force bool) (Summary, error) {
	summary := Summary{RanAt: now, Forced: force, Included: []string{}}
	metrics.PassesRun.Add(1)

	states, err := p.store.ListVehicleStates(ctx)
	if err != nil {
		metrics.PassesFailed.Add(1)
		return summary, err
	}
	summary.Evaluated = len(states)
	metrics.VehiclesEvaluated.Add(int64(len(states)))

	// Evaluation is pure and independent per vehicle.
	alertSets := make([][]domain.Alert, len(states))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, st := range states {
		i, st := i, st
		g.Go(func() error {
			alertSets[i] = p.ruleset.Evaluate(st.Snapshot, st.Clearances, now)
			return nil
		})
	}
	_ = g.Wait()

	p.cacheAlertStates(ctx, states, alertSets, now)

	// Batch gate: per vehicle, independent of the rest of the fleet.
	var entries []notify.DigestEntry
	for i, st := range states {
		alerts := alertSets[i]
		if len(alerts) == 0 && !st.Snapshot.OutOfService() {
			continue
		}
		summary.Alerting++
		if !force && recentlyBatched(st.LastBatchSentAt, now, p.batchWindow) {
			summary.Suppressed++
			metrics.VehiclesSuppressed.Add(1)
			continue
		}
		entries = append(entries, notify.DigestEntry{Vehicle: st.Snapshot, Alerts: alerts})
		summary.Included = append(summary.Included, st.Snapshot.ID)
	}

	if len(entries) == 0 {
		p.logger.Info("pass complete, nothing to dispatch",
			zap.Int("evaluated", summary.Evaluated),
			zap.Int("suppressed", summary.Suppressed))
		return summary, nil
	}

	result, err := p.dispatcher.Dispatch(ctx, entries, now)
	summary.Dispatch = result
	if err != nil {
		// Channel-level failure (auth/config): the whole pass aborts and no
		// suppression state changes for any vehicle.
		metrics.PassesFailed.Add(1)
		p.logger.Error("digest dispatch aborted",
			zap.Int("vehicles", len(entries)),
			zap.Error(err))
		return summary, err
	}
	if !result.AllAccepted() {
		// Soft recipient failures: reported in the summary, suppression not
		// advanced, so the next pass re-attempts the same batch. Duplicate
		// delivery to already-successful recipients is the accepted cost.
		p.logger.Warn("digest partially delivered, suppression not advanced",
			zap.Strings("rejected", result.Rejected),
			zap.Int("vehicles", len(entries)))
		return summary, nil
	}

	if err := p.store.RecordBatchSent(ctx, summary.Included, now); err != nil {
		metrics.PassesFailed.Add(1)
		return summary, err
	}
	summary.Sent = true
	metrics.VehiclesIncluded.Add(int64(len(summary.Included)))

	p.publishDigestEvent(ctx, summary, now)

	p.logger.Info("digest dispatched",
		zap.Int("vehicles", len(summary.Included)),
		zap.Int("recipients", len(result.Accepted)))
	return summary, nil
}

func recentlyBatched(lastSentAt *time.Time, now time.Time, window time.Duration) bool {
	return lastSentAt != nil && now.Sub(*lastSentAt) <= window
}

func (p *Pipeline) cacheAlertStates(ctx context.Context, states []store.VehicleState, alertSets [][]domain.Alert, now time.Time) {
	if p.publisher == nil {
		return
	}
	for i, st := range states {
		err := p.publisher.CacheVehicleAlerts(ctx, st.Snapshot.ID, alertSets[i], st.Snapshot.OutOfService(), now, p.cacheTTL)
		if err != nil {
			p.logger.Warn("alert state cache update failed",
				zap.String("vehicle_id", st.Snapshot.ID),
				zap.Error(err))
		}
	}
}

func (p *Pipeline) publishDigestEvent(ctx context.Context, summary Summary, now time.Time) {
	if p.publisher == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"vehicle_ids": summary.Included,
		"recipients":  len(summary.Dispatch.Accepted),
		"sent_at":     now.Unix(),
	})
	if err := p.publisher.PublishDigestEvent(ctx, payload); err != nil {
		p.logger.Warn("digest event publish failed", zap.Error(err))
	}
}
