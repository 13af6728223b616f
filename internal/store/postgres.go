package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/st20medic/trucks/internal/config"
	"github.com/st20medic/trucks/internal/domain"
)

// VehicleState is one vehicle's full evaluation input: the snapshot plus the
// suppression and clearance state persisted on its row.
type VehicleState struct {
	Snapshot        domain.VehicleSnapshot
	Clearances      domain.ClearanceState
	LastBatchSentAt *time.Time
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg *config.Config) (*PostgresStore, error) {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBMaxConns,
	)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const vehicleColumns = `
	id, unit_label, odometer, service_status, out_of_service_reason,
	oil_last_service_odometer, oil_last_service_date,
	brake_last_service_odometer, brake_last_service_date,
	tire_last_service_odometer, tire_last_service_date,
	registration_expiry, inspection_expiry,
	alert_clearances, last_batch_sent_at, updated_at`

func (s *PostgresStore) ListVehicleStates(ctx context.Context) ([]VehicleState, error) {
	query := `SELECT` + vehicleColumns + ` FROM vehicles ORDER BY unit_label, id`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list vehicles failed: %w", err)
	}
	defer rows.Close()

	var states []VehicleState
	for rows.Next() {
		st, err := scanVehicleState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list vehicles failed: %w", err)
	}
	return states, nil
}

func (s *PostgresStore) GetVehicleState(ctx context.Context, vehicleID string) (VehicleState, error) {
	query := `SELECT` + vehicleColumns + ` FROM vehicles WHERE id = $1`
	rows, err := s.pool.Query(ctx, query, vehicleID)
	if err != nil {
		return VehicleState{}, fmt.Errorf("get vehicle %s failed: %w", vehicleID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return VehicleState{}, fmt.Errorf("get vehicle %s failed: %w", vehicleID, err)
		}
		return VehicleState{}, fmt.Errorf("vehicle %s: %w", vehicleID, ErrNotFound)
	}
	return scanVehicleState(rows)
}

func scanVehicleState(row pgx.Row) (VehicleState, error) {
	var (
		st             VehicleState
		oosReason      *string
		oilOdo         *int64
		oilDate        *time.Time
		brakeOdo       *int64
		brakeDate      *time.Time
		tireOdo        *int64
		tireDate       *time.Time
		regExpiry      *time.Time
		inspExpiry     *time.Time
		clearancesJSON []byte
	)

	err := row.Scan(
		&st.Snapshot.ID,
		&st.Snapshot.UnitLabel,
		&st.Snapshot.Odometer,
		&st.Snapshot.ServiceStatus,
		&oosReason,
		&oilOdo, &oilDate,
		&brakeOdo, &brakeDate,
		&tireOdo, &tireDate,
		&regExpiry,
		&inspExpiry,
		&clearancesJSON,
		&st.LastBatchSentAt,
		&st.Snapshot.UpdatedAt,
	)
	if err != nil {
		return VehicleState{}, fmt.Errorf("scan vehicle row failed: %w", err)
	}

	if oosReason != nil {
		st.Snapshot.OutOfServiceReason = *oosReason
	}

	st.Snapshot.LastService = make(map[domain.AlertKind]domain.ServiceRecord)
	setService := func(kind domain.AlertKind, odo *int64, date *time.Time) {
		if odo == nil {
			return
		}
		rec := domain.ServiceRecord{Odometer: *odo}
		if date != nil {
			rec.Date = *date
		}
		st.Snapshot.LastService[kind] = rec
	}
	setService(domain.KindOilChange, oilOdo, oilDate)
	setService(domain.KindBrakeService, brakeOdo, brakeDate)
	setService(domain.KindTireService, tireOdo, tireDate)

	st.Snapshot.DocumentExpiry = make(map[domain.AlertKind]time.Time)
	if regExpiry != nil {
		st.Snapshot.DocumentExpiry[domain.KindRegistration] = *regExpiry
	}
	if inspExpiry != nil {
		st.Snapshot.DocumentExpiry[domain.KindInspection] = *inspExpiry
	}

	st.Clearances = domain.ClearanceState{}
	if len(clearancesJSON) > 0 {
		raw := map[string]time.Time{}
		if err := json.Unmarshal(clearancesJSON, &raw); err != nil {
			return VehicleState{}, fmt.Errorf("decode clearances for %s failed: %w", st.Snapshot.ID, err)
		}
		for k, v := range raw {
			st.Clearances[domain.AlertKind(k)] = v
		}
	}

	return st, nil
}

// RecordBatchSent stamps every listed vehicle after a fully successful digest
// dispatch. This is the only write path for last_batch_sent_at.
func (s *PostgresStore) RecordBatchSent(ctx context.Context, vehicleIDs []string, at time.Time) error {
	if len(vehicleIDs) == 0 {
		return nil
	}
	query := `UPDATE vehicles SET last_batch_sent_at = $1 WHERE id = ANY($2)`
	tag, err := s.pool.Exec(ctx, query, at, vehicleIDs)
	if err != nil {
		return fmt.Errorf("record batch sent failed: %w", err)
	}
	if int(tag.RowsAffected()) != len(vehicleIDs) {
		return fmt.Errorf("record batch sent: updated %d of %d vehicles", tag.RowsAffected(), len(vehicleIDs))
	}
	return nil
}

// RecordClearance stamps one alert kind as cleared at the given time.
func (s *PostgresStore) RecordClearance(ctx context.Context, vehicleID string, kind domain.AlertKind, at time.Time) error {
	query := `
		UPDATE vehicles
		SET alert_clearances = jsonb_set(
			COALESCE(alert_clearances, '{}'::jsonb),
			ARRAY[$2::text],
			to_jsonb($3::timestamptz),
			true
		)
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query, vehicleID, string(kind), at)
	if err != nil {
		return fmt.Errorf("record clearance %s/%s failed: %w", vehicleID, kind, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vehicle %s: %w", vehicleID, ErrNotFound)
	}
	return nil
}

// RestoreClearance puts a kind's cleared-at back to a previous value, removing
// the entry entirely when prev is nil. Used to roll back a clearance whose
// accountability write could not be confirmed.
func (s *PostgresStore) RestoreClearance(ctx context.Context, vehicleID string, kind domain.AlertKind, prev *time.Time) error {
	if prev == nil {
		query := `UPDATE vehicles SET alert_clearances = COALESCE(alert_clearances, '{}'::jsonb) - $2 WHERE id = $1`
		if _, err := s.pool.Exec(ctx, query, vehicleID, string(kind)); err != nil {
			return fmt.Errorf("restore clearance %s/%s failed: %w", vehicleID, kind, err)
		}
		return nil
	}
	return s.RecordClearance(ctx, vehicleID, kind, *prev)
}

// AppendClearanceLog inserts one immutable accountability record.
func (s *PostgresStore) AppendClearanceLog(ctx context.Context, rec domain.AccountabilityRecord) error {
	query := `
		INSERT INTO alert_clearance_log
			(id, vehicle_id, alert_kind, cleared_at, cleared_odometer, cleared_expiry, justification, author, created_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`
	_, err := s.pool.Exec(ctx, query,
		rec.ID,
		rec.VehicleID,
		string(rec.Kind),
		rec.ClearedAt,
		rec.ClearedOdometer,
		rec.ClearedExpiry,
		rec.Justification,
		rec.Author,
	)
	if err != nil {
		return fmt.Errorf("append clearance log %s/%s failed: %w", rec.VehicleID, rec.Kind, err)
	}
	return nil
}

// ListClearanceLog returns the accountability history for one vehicle, newest
// first. Consumed by the history export elsewhere in the stack.
func (s *PostgresStore) ListClearanceLog(ctx context.Context, vehicleID string) ([]domain.AccountabilityRecord, error) {
	query := `
		SELECT id, vehicle_id, alert_kind, cleared_at, cleared_odometer, cleared_expiry, justification, author
		FROM alert_clearance_log
		WHERE vehicle_id = $1
		ORDER BY cleared_at DESC
	`
	rows, err := s.pool.Query(ctx, query, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("list clearance log for %s failed: %w", vehicleID, err)
	}
	defer rows.Close()

	var recs []domain.AccountabilityRecord
	for rows.Next() {
		var rec domain.AccountabilityRecord
		var kind string
		if err := rows.Scan(&rec.ID, &rec.VehicleID, &kind, &rec.ClearedAt,
			&rec.ClearedOdometer, &rec.ClearedExpiry, &rec.Justification, &rec.Author); err != nil {
			return nil, fmt.Errorf("scan clearance log row failed: %w", err)
		}
		rec.Kind = domain.AlertKind(kind)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list clearance log for %s failed: %w", vehicleID, err)
	}
	return recs, nil
}
