// Package clearance implements the dismissal workflow: a mechanic consciously
// silences one alert kind for one vehicle for the clearance window. Every
// successful dismissal leaves exactly one accountability record; a dismissal
// that cannot be made accountable is rolled back and reported as failed.
package clearance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/st20medic/trucks/internal/domain"
	"github.com/st20medic/trucks/internal/metrics"
	"github.com/st20medic/trucks/internal/store"
)

var (
	// ErrEmptyJustification rejects a dismissal with no stated reason. The UI
	// enforces this too; the workflow does not trust it.
	ErrEmptyJustification = errors.New("clearance requires a non-empty justification")

	// ErrInvalidKind rejects kinds outside the fixed clearable set.
	ErrInvalidKind = errors.New("unknown alert kind")

	// ErrUnaccountable means the accountability write failed after all retries
	// and the clearance was rolled back. Distinct from an ordinary store error
	// so callers can tell the user the dismissal did not take effect.
	ErrUnaccountable = errors.New("clearance rolled back: accountability record could not be written")
)

// Store is the persistence surface the workflow needs. *store.PostgresStore
// satisfies it.
type Store interface {
	GetVehicleState(ctx context.Context, vehicleID string) (store.VehicleState, error)
	RecordClearance(ctx context.Context, vehicleID string, kind domain.AlertKind, at time.Time) error
	RestoreClearance(ctx context.Context, vehicleID string, kind domain.AlertKind, prev *time.Time) error
	AppendClearanceLog(ctx context.Context, rec domain.AccountabilityRecord) error
}

type Workflow struct {
	store   Store
	logger  *zap.Logger
	now     func() time.Time
	retries int
	backoff time.Duration
}

func NewWorkflow(st Store, logger *zap.Logger) *Workflow {
	return &Workflow{
		store:   st,
		logger:  logger.Named("clearance"),
		now:     time.Now,
		retries: 3,
		backoff: 250 * time.Millisecond,
	}
}

// Clear dismisses one alert kind for one vehicle. The clearance-state write
// must succeed first; the accountability append is then attempted up to three
// times with exponential backoff. If every attempt fails the clearance is
// restored to its previous value and ErrUnaccountable is returned, so a later
// Clear behaves as if this one never happened. Re-clearing inside the window
// is allowed: it resets the window and appends a fresh record.
func (w *Workflow) Clear(ctx context.Context, vehicleID string, kind domain.AlertKind, justification, author string) (domain.AccountabilityRecord, error) {
	if strings.TrimSpace(justification) == "" {
		return domain.AccountabilityRecord{}, ErrEmptyJustification
	}
	if !kind.Valid() {
		return domain.AccountabilityRecord{}, fmt.Errorf("%q: %w", kind, ErrInvalidKind)
	}

	st, err := w.store.GetVehicleState(ctx, vehicleID)
	if err != nil {
		return domain.AccountabilityRecord{}, fmt.Errorf("load vehicle %s: %w", vehicleID, err)
	}

	var prev *time.Time
	if t, ok := st.Clearances[kind]; ok {
		prev = &t
	}

	clearedAt := w.now()
	if err := w.store.RecordClearance(ctx, vehicleID, kind, clearedAt); err != nil {
		metrics.ClearancesFailed.Add(1)
		return domain.AccountabilityRecord{}, fmt.Errorf("record clearance %s/%s: %w", vehicleID, kind, err)
	}

	rec := domain.AccountabilityRecord{
		ID:              uuid.NewString(),
		VehicleID:       vehicleID,
		Kind:            kind,
		ClearedAt:       clearedAt,
		ClearedOdometer: st.Snapshot.Odometer,
		Justification:   justification,
		Author:          author,
	}
	if expiry, ok := st.Snapshot.DocumentExpiry[kind]; ok {
		rec.ClearedExpiry = &expiry
	}

	if err := w.appendWithRetry(ctx, rec); err != nil {
		w.logger.Error("accountability write failed, rolling back clearance",
			zap.String("vehicle_id", vehicleID),
			zap.String("kind", string(kind)),
			zap.Error(err))
		if rbErr := w.store.RestoreClearance(ctx, vehicleID, kind, prev); rbErr != nil {
			// State is now inconsistent until the next successful Clear or a
			// manual fix; the caller still sees a hard failure.
			w.logger.Error("clearance rollback failed",
				zap.String("vehicle_id", vehicleID),
				zap.String("kind", string(kind)),
				zap.Error(rbErr))
		}
		metrics.ClearancesFailed.Add(1)
		return domain.AccountabilityRecord{}, fmt.Errorf("%w: %s", ErrUnaccountable, err)
	}

	metrics.ClearancesRecorded.Add(1)
	w.logger.Info("alert cleared",
		zap.String("vehicle_id", vehicleID),
		zap.String("kind", string(kind)),
		zap.String("author", author))
	return rec, nil
}

func (w *Workflow) appendWithRetry(ctx context.Context, rec domain.AccountabilityRecord) error {
	var lastErr error
	delay := w.backoff
	for attempt := 1; attempt <= w.retries; attempt++ {
		lastErr = w.store.AppendClearanceLog(ctx, rec)
		if lastErr == nil {
			return nil
		}
		if attempt == w.retries {
			break
		}
		w.logger.Warn("accountability write failed, retrying",
			zap.String("vehicle_id", rec.VehicleID),
			zap.String("kind", string(rec.Kind)),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%w (after %d attempts)", ctx.Err(), attempt)
		}
		delay *= 2
	}
	return fmt.Errorf("after %d attempts: %w", w.retries, lastErr)
}
