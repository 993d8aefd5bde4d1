package repository

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xilian/diagnostics-service/internal/database"
	"github.com/xilian/diagnostics-service/internal/models"
)

// setupTestDB sets up a TimescaleDB test container and returns a database connection
func setupTestDB(t *testing.T) (*database.DB, func()) {
	t.Helper()

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"timescale/timescaledb-ha:pg16",
		postgres.WithDatabase("test_diagnostics"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_pass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute)),
	)
	if err != nil {
		t.Fatalf("Failed to start container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	db := &database.DB{DB: sqlDB}

	if err := runTestMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return db, cleanup
}

// runTestMigrations runs the database migrations for testing
func runTestMigrations(db *database.DB) error {
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS timescaledb;`,

		`CREATE TABLE sensor_readings (
			id BIGSERIAL,
			device_id VARCHAR(64) NOT NULL,
			sensor_id VARCHAR(64) NOT NULL,
			metric_name VARCHAR(128) NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			unit VARCHAR(32),
			quality VARCHAR(16) NOT NULL DEFAULT 'good',
			recorded_at TIMESTAMPTZ NOT NULL,
			metadata JSONB,
			PRIMARY KEY (recorded_at, id)
		);`,

		`SELECT create_hypertable('sensor_readings', 'recorded_at');`,

		`CREATE INDEX idx_readings_device_time ON sensor_readings (device_id, recorded_at DESC);`,
		`CREATE INDEX idx_readings_metric_time ON sensor_readings (metric_name, recorded_at DESC);`,

		`CREATE TABLE anomalies (
			detection_id VARCHAR(64) PRIMARY KEY,
			device_id VARCHAR(64) NOT NULL,
			sensor_id VARCHAR(64) NOT NULL,
			metric_name VARCHAR(128) NOT NULL,
			algorithm VARCHAR(32) NOT NULL,
			current_value DOUBLE PRECISION NOT NULL,
			expected_value DOUBLE PRECISION NOT NULL,
			deviation DOUBLE PRECISION NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			severity VARCHAR(16) NOT NULL,
			acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
			recorded_at TIMESTAMPTZ NOT NULL
		);`,

		`CREATE INDEX idx_anomalies_device_time ON anomalies (device_id, recorded_at DESC);`,
	}

	ctx := context.Background()
	for _, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

func TestPostgresTelemetryRepository_InsertAndQueryReadings(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPostgresTelemetryRepository(db)
	ctx := context.Background()

	baseTime := time.Now().UTC().Truncate(time.Second)
	readings := []models.SensorReading{
		{
			DeviceID: "press-07", SensorID: "temp-1", MetricName: "bearing_temp",
			Value: 70.5, Unit: "°C", Quality: models.QualityGood,
			Timestamp: baseTime,
			Metadata:  map[string]string{"shift": "night"},
		},
		{
			DeviceID: "press-07", SensorID: "temp-1", MetricName: "bearing_temp",
			Value: 71.2, Timestamp: baseTime.Add(time.Minute),
		},
		{
			DeviceID: "press-08", SensorID: "vib-1", MetricName: "vibration_rms",
			Value: 3.1, Unit: "mm/s", Timestamp: baseTime.Add(2 * time.Minute),
		},
	}

	count, err := repo.InsertReadings(ctx, readings)
	if err != nil {
		t.Fatalf("Failed to insert readings: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 inserted, got %d", count)
	}

	// Filter by device
	results, err := repo.QueryReadings(ctx, ReadingFilter{DeviceIDs: []string{"press-07"}})
	if err != nil {
		t.Fatalf("Failed to query readings: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 readings for press-07, got %d", len(results))
	}

	// Newest first by default
	if results[0].Value != 71.2 {
		t.Errorf("Expected newest reading first, got value %v", results[0].Value)
	}

	// Metadata round-trips
	if results[1].Metadata["shift"] != "night" {
		t.Errorf("Expected metadata to round-trip, got %v", results[1].Metadata)
	}

	// Empty quality is stored as good
	if results[0].Quality != models.QualityGood {
		t.Errorf("Expected defaulted quality good, got %q", results[0].Quality)
	}

	// Time-bounded ascending query
	start := baseTime.Add(30 * time.Second)
	results, err = repo.QueryReadings(ctx, ReadingFilter{Start: &start, Ascending: true})
	if err != nil {
		t.Fatalf("Failed to query readings: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 readings after start bound, got %d", len(results))
	}
	if results[0].Value != 71.2 {
		t.Errorf("Expected ascending order, got first value %v", results[0].Value)
	}
}

func TestPostgresTelemetryRepository_QueryAggregated(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPostgresTelemetryRepository(db)
	ctx := context.Background()

	// Two readings in the 09:00 hour, one in the 10:00 hour
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	readings := []models.SensorReading{
		{DeviceID: "press-07", SensorID: "temp-1", MetricName: "bearing_temp", Value: 70, Timestamp: day.Add(9*time.Hour + 5*time.Minute)},
		{DeviceID: "press-07", SensorID: "temp-1", MetricName: "bearing_temp", Value: 74, Timestamp: day.Add(9*time.Hour + 40*time.Minute)},
		{DeviceID: "press-07", SensorID: "temp-1", MetricName: "bearing_temp", Value: 80, Timestamp: day.Add(10*time.Hour + 10*time.Minute)},
	}
	if _, err := repo.InsertReadings(ctx, readings); err != nil {
		t.Fatalf("Failed to insert readings: %v", err)
	}

	buckets, err := repo.QueryAggregated(ctx, models.Interval1h, ReadingFilter{})
	if err != nil {
		t.Fatalf("Failed to query aggregated: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("Expected 2 hourly buckets, got %d", len(buckets))
	}

	first := buckets[0]
	if !first.BucketStart.Equal(day.Add(9 * time.Hour)) {
		t.Errorf("Expected bucket aligned to 09:00, got %v", first.BucketStart)
	}
	if first.Count != 2 {
		t.Errorf("Expected 2 readings in first bucket, got %d", first.Count)
	}
	if first.Mean != 72 {
		t.Errorf("Expected mean 72, got %v", first.Mean)
	}
	if first.Min != 70 || first.Max != 74 {
		t.Errorf("Expected min 70 / max 74, got %v / %v", first.Min, first.Max)
	}

	second := buckets[1]
	if second.Count != 1 || second.StdDev != 0 {
		t.Errorf("Expected single-point bucket with zero stddev, got count %d stddev %v", second.Count, second.StdDev)
	}
}

func TestPostgresTelemetryRepository_AnomalyLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPostgresTelemetryRepository(db)
	ctx := context.Background()

	record := models.AnomalyRecord{
		DetectionID:   "det-0001",
		DeviceID:      "press-07",
		SensorID:      "temp-1",
		MetricName:    "bearing_temp",
		Algorithm:     models.AlgorithmZScore,
		CurrentValue:  150,
		ExpectedValue: 100,
		Deviation:     5.2,
		Score:         0.86,
		Severity:      models.SeverityHigh,
		Timestamp:     time.Now().UTC().Truncate(time.Second),
	}

	if err := repo.InsertAnomaly(ctx, record); err != nil {
		t.Fatalf("Failed to insert anomaly: %v", err)
	}

	// Duplicate detection ID is rejected without touching the original
	dup := record
	dup.CurrentValue = 999
	if err := repo.InsertAnomaly(ctx, dup); err != ErrDuplicateDetection {
		t.Fatalf("Expected ErrDuplicateDetection, got %v", err)
	}

	records, err := repo.QueryAnomalies(ctx, AnomalyFilter{DeviceIDs: []string{"press-07"}})
	if err != nil {
		t.Fatalf("Failed to query anomalies: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 anomaly, got %d", len(records))
	}
	if records[0].CurrentValue != 150 {
		t.Errorf("Expected original record preserved, got current value %v", records[0].CurrentValue)
	}
	if records[0].Acknowledged {
		t.Error("Expected new anomaly to be unacknowledged")
	}

	// Acknowledge, then filter by acknowledgement
	if err := repo.AcknowledgeAnomaly(ctx, "det-0001"); err != nil {
		t.Fatalf("Failed to acknowledge: %v", err)
	}
	if err := repo.AcknowledgeAnomaly(ctx, "missing"); err != ErrAnomalyNotFound {
		t.Fatalf("Expected ErrAnomalyNotFound, got %v", err)
	}

	acked := true
	records, err = repo.QueryAnomalies(ctx, AnomalyFilter{Acknowledged: &acked})
	if err != nil {
		t.Fatalf("Failed to query acknowledged anomalies: %v", err)
	}
	if len(records) != 1 || !records[0].Acknowledged {
		t.Fatalf("Expected 1 acknowledged anomaly, got %+v", records)
	}
}

func TestPostgresTelemetryRepository_InjectionResistance(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPostgresTelemetryRepository(db)
	ctx := context.Background()

	readings := []models.SensorReading{
		{DeviceID: "press-07", SensorID: "temp-1", MetricName: "bearing_temp", Value: 70, Timestamp: time.Now().UTC()},
	}
	if _, err := repo.InsertReadings(ctx, readings); err != nil {
		t.Fatalf("Failed to insert readings: %v", err)
	}

	// Hostile filter values must be treated as literals, matching nothing
	hostile := ReadingFilter{
		DeviceIDs:   []string{"press-07'; DROP TABLE sensor_readings; --"},
		MetricNames: []string{"bearing_temp' OR '1'='1"},
	}
	results, err := repo.QueryReadings(ctx, hostile)
	if err != nil {
		t.Fatalf("Hostile filter should not error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Hostile filter matched %d rows, expected none", len(results))
	}

	// The table survived
	results, err = repo.QueryReadings(ctx, ReadingFilter{})
	if err != nil {
		t.Fatalf("Failed to query after hostile filter: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Expected table intact with 1 row, got %d", len(results))
	}
}
