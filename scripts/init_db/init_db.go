package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found — using system environment variables")
	}

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		dbGetEnv("DB_USER", "fleet_user"),
		dbGetEnv("DB_PASSWORD", "fleet_password"),
		dbGetEnv("DB_HOST", "localhost"),
		dbGetEnv("DB_PORT", "5432"),
		dbGetEnv("DB_NAME", "fleet_maintenance"),
	)

	ctx := context.Background()

	fmt.Println("Connecting to Postgres...")
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Postgres is running:\n  docker-compose up -d postgres", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ Connected")

	// Run all steps in order
	step1_vehicles_table(ctx, conn)
	step2_clearance_log_table(ctx, conn)
	step3_indexes(ctx, conn)
	step4_sample_fleet(ctx, conn)
	step5_verify(ctx, conn)

	fmt.Println("\n✅ Database initialised successfully")
	fmt.Println("   Run next: go run scripts/seed_redis/seed_redis.go")
}

// ─────────────────────────────────────────────────────────────
// Step 1 — vehicles table
// ─────────────────────────────────────────────────────────────
func step1_vehicles_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 1: vehicles table ──────────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS vehicles (

			-- Identity
			id                          TEXT        PRIMARY KEY,
			unit_label                  TEXT        NOT NULL,

			-- Current odometer, miles
			odometer                    BIGINT      NOT NULL DEFAULT 0,

			-- Must exactly match domain.ServiceStatus constants:
			-- IN_SERVICE | OUT_OF_SERVICE
			service_status              TEXT        NOT NULL DEFAULT 'IN_SERVICE',
			out_of_service_reason       TEXT,

			-- Mileage-based items — NULL means never serviced,
			-- which the evaluator treats as due since odometer zero
			oil_last_service_odometer   BIGINT,
			oil_last_service_date       DATE,
			brake_last_service_odometer BIGINT,
			brake_last_service_date     DATE,
			tire_last_service_odometer  BIGINT,
			tire_last_service_date      DATE,

			-- Compliance documents — NULL means not yet configured,
			-- which the evaluator skips silently
			registration_expiry         DATE,
			inspection_expiry           DATE,

			-- Per-kind clearance timestamps, written only by the
			-- clearance workflow: {"OIL_CHANGE": "2026-...", ...}
			alert_clearances            JSONB       NOT NULL DEFAULT '{}',

			-- Suppression: stamped only after a fully successful digest
			last_batch_sent_at          TIMESTAMPTZ,

			updated_at                  TIMESTAMPTZ NOT NULL DEFAULT NOW(),

			CONSTRAINT chk_service_status CHECK (
				service_status IN ('IN_SERVICE', 'OUT_OF_SERVICE')
			),
			CONSTRAINT chk_odometer CHECK (odometer >= 0)
		);
	`, "vehicles table created")
}

// ─────────────────────────────────────────────────────────────
// Step 2 — alert_clearance_log table
// ─────────────────────────────────────────────────────────────
func step2_clearance_log_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 2: alert_clearance_log table ───────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS alert_clearance_log (

			-- UUID generated in Go, never reused
			id                TEXT        PRIMARY KEY,

			vehicle_id        TEXT        NOT NULL REFERENCES vehicles(id),

			-- Must exactly match domain.AlertKind constants
			alert_kind        TEXT        NOT NULL,

			cleared_at        TIMESTAMPTZ NOT NULL,

			-- Vehicle state at the moment of clearing
			cleared_odometer  BIGINT      NOT NULL,
			cleared_expiry    DATE,

			-- The accountability trail: who, and why
			justification     TEXT        NOT NULL,
			author            TEXT        NOT NULL DEFAULT '',

			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),

			CONSTRAINT chk_alert_kind CHECK (
				alert_kind IN ('OIL_CHANGE', 'REGISTRATION', 'INSPECTION',
				               'BRAKE_SERVICE', 'TIRE_SERVICE')
			),
			CONSTRAINT chk_justification CHECK (justification <> '')
		);
	`, "alert_clearance_log table created")
}

// ─────────────────────────────────────────────────────────────
// Step 3 — Indexes
// ─────────────────────────────────────────────────────────────
func step3_indexes(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 3: Indexes ─────────────────────────────")

	indexes := []struct {
		name string
		sql  string
		why  string
	}{
		{
			name: "idx_vehicles_unit_label",
			sql: `CREATE INDEX IF NOT EXISTS idx_vehicles_unit_label
				  ON vehicles (unit_label);`,
			why: "query: stable digest ordering",
		},
		{
			name: "idx_clearance_log_vehicle",
			sql: `CREATE INDEX IF NOT EXISTS idx_clearance_log_vehicle
				  ON alert_clearance_log (vehicle_id, cleared_at DESC);`,
			why: "query: clearance history for one vehicle",
		},
	}

	for _, idx := range indexes {
		execOrFatal(ctx, conn, idx.sql,
			fmt.Sprintf("%-40s ← %s", idx.name, idx.why),
		)
	}
}

// ─────────────────────────────────────────────────────────────
// Step 4 — Sample fleet
// ─────────────────────────────────────────────────────────────
func step4_sample_fleet(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 4: Sample fleet ────────────────────────")

	execOrFatal(ctx, conn, `
		INSERT INTO vehicles
			(id, unit_label, odometer, service_status,
			 oil_last_service_odometer, oil_last_service_date,
			 brake_last_service_odometer, brake_last_service_date,
			 tire_last_service_odometer, tire_last_service_date,
			 registration_expiry, inspection_expiry)
		VALUES
			('unit-201', 'Medic 201', 104600, 'IN_SERVICE',
			 100000, NOW() - INTERVAL '4 months',
			 90000,  NOW() - INTERVAL '14 months',
			 80000,  NOW() - INTERVAL '22 months',
			 NOW() + INTERVAL '5 months', NOW() + INTERVAL '20 days'),
			('unit-202', 'Medic 202', 88450, 'IN_SERVICE',
			 87000, NOW() - INTERVAL '1 month',
			 70000, NOW() - INTERVAL '10 months',
			 60000, NOW() - INTERVAL '18 months',
			 NOW() + INTERVAL '11 months', NOW() + INTERVAL '7 months'),
			('unit-203', 'Medic 203', 121900, 'OUT_OF_SERVICE',
			 118000, NOW() - INTERVAL '2 months',
			 100000, NOW() - INTERVAL '12 months',
			 95000,  NOW() - INTERVAL '16 months',
			 NOW() + INTERVAL '2 months', NOW() + INTERVAL '4 months')
		ON CONFLICT (id) DO NOTHING;
	`, "sample fleet inserted (3 vehicles)")

	execOrFatal(ctx, conn, `
		UPDATE vehicles
		SET out_of_service_reason = 'Transmission rebuild at Hanley''s'
		WHERE id = 'unit-203' AND out_of_service_reason IS NULL;
	`, "out-of-service reason set for Medic 203")
}

// ─────────────────────────────────────────────────────────────
// Step 5 — Verify everything was created
// ─────────────────────────────────────────────────────────────
func step5_verify(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 5: Verification ────────────────────────")

	// Check tables exist
	tables := []string{"vehicles", "alert_clearance_log"}
	for _, table := range tables {
		var exists bool
		err := conn.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_name = $1
			)
		`, table).Scan(&exists)
		if err != nil || !exists {
			log.Fatalf("Table %s was not created: %v", table, err)
		}
		fmt.Printf("  ✓ table: %s\n", table)
	}

	// Check fleet rows
	var vehicleCount int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM vehicles`).Scan(&vehicleCount); err != nil {
		log.Fatalf("Vehicle count check failed: %v", err)
	}
	fmt.Printf("  ✓ vehicles: %d\n", vehicleCount)

	// Check indexes
	var indexCount int
	err := conn.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM pg_indexes
		WHERE tablename IN ('vehicles', 'alert_clearance_log')
		AND indexname LIKE 'idx_%'
	`).Scan(&indexCount)
	if err != nil {
		log.Fatalf("Index check failed: %v", err)
	}
	fmt.Printf("  ✓ indexes created: %d\n", indexCount)
}

// ─────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────

// execOrFatal runs a SQL statement and prints result or exits on error
func execOrFatal(ctx context.Context, conn *pgx.Conn, sql, label string) {
	_, err := conn.Exec(ctx, sql)
	if err != nil {
		log.Fatalf("FAILED — %s\nError: %v\nSQL: %s", label, err, sql)
	}
	fmt.Printf("  ✓ %s\n", label)
}

func dbGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
