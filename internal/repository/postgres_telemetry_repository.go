package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xilian/diagnostics-service/internal/database"
	"github.com/xilian/diagnostics-service/internal/models"
)

// PostgresTelemetryRepository implements TelemetryRepository using
// PostgreSQL/TimescaleDB. Every filter value is rendered as a bound $n
// parameter through condSet; caller-supplied text never reaches query text.
type PostgresTelemetryRepository struct {
	db *database.DB
}

// NewPostgresTelemetryRepository creates a new PostgreSQL telemetry repository
func NewPostgresTelemetryRepository(db *database.DB) *PostgresTelemetryRepository {
	return &PostgresTelemetryRepository{db: db}
}

// condSet accumulates WHERE conditions with positionally bound arguments.
// It is the single point where filter values meet SQL text, which keeps the
// query shape structurally independent of caller input.
type condSet struct {
	conds []string
	args  []interface{}
}

// bind adds one argument and returns its placeholder
func (c *condSet) bind(value interface{}) string {
	c.args = append(c.args, value)
	return fmt.Sprintf("$%d", len(c.args))
}

// add appends a condition whose sole placeholder is the bound value
func (c *condSet) add(format string, value interface{}) {
	c.conds = append(c.conds, fmt.Sprintf(format, c.bind(value)))
}

// addIn appends an IN condition with one placeholder per element
func (c *condSet) addIn(column string, values []string) {
	if len(values) == 0 {
		return
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = c.bind(v)
	}
	c.conds = append(c.conds, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")))
}

// where renders the accumulated conditions, or an empty string if none
func (c *condSet) where() string {
	if len(c.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.conds, " AND ")
}

// readingConds translates a ReadingFilter into bound conditions
func readingConds(filter ReadingFilter) *condSet {
	c := &condSet{}
	if filter.Start != nil {
		c.add("recorded_at >= %s", *filter.Start)
	}
	if filter.End != nil {
		c.add("recorded_at <= %s", *filter.End)
	}
	c.addIn("device_id", filter.DeviceIDs)
	c.addIn("sensor_id", filter.SensorIDs)
	c.addIn("metric_name", filter.MetricNames)
	return c
}

// InsertReadings appends a batch of readings in a single transaction
func (r *PostgresTelemetryRepository) InsertReadings(ctx context.Context, readings []models.SensorReading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}
	for i := range readings {
		if err := readings[i].Validate(); err != nil {
			return 0, fmt.Errorf("reading %d: %w", i, err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // Rollback is safe to call even after Commit
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sensor_readings (
			device_id, sensor_id, metric_name, value, unit, quality,
			recorded_at, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range readings {
		reading := &readings[i]
		quality := reading.Quality
		if quality == "" {
			quality = models.QualityGood
		}

		var metadataJSON []byte
		if reading.Metadata != nil {
			metadataJSON, err = json.Marshal(reading.Metadata)
			if err != nil {
				return 0, fmt.Errorf("failed to marshal metadata for reading %d: %w", i, err)
			}
		}

		_, err := stmt.ExecContext(ctx,
			reading.DeviceID, reading.SensorID, reading.MetricName,
			reading.Value, reading.Unit, string(quality),
			reading.Timestamp, metadataJSON,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert reading %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return len(readings), nil
}

// QueryReadings returns readings matching the filter
func (r *PostgresTelemetryRepository) QueryReadings(ctx context.Context, filter ReadingFilter) ([]models.SensorReading, error) {
	c := readingConds(filter)

	order := "DESC"
	if filter.Ascending {
		order = "ASC"
	}

	query := fmt.Sprintf(`
		SELECT device_id, sensor_id, metric_name, value, unit, quality,
		       recorded_at, metadata
		FROM sensor_readings%s
		ORDER BY recorded_at %s
		LIMIT %s OFFSET %s
	`, c.where(), order, c.bind(filter.EffectiveLimit()), c.bind(filter.Offset))

	rows, err := r.db.QueryContext(ctx, query, c.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	return scanReadingRows(rows)
}

// QueryAggregated buckets matching readings into epoch-aligned windows
func (r *PostgresTelemetryRepository) QueryAggregated(ctx context.Context, interval models.AggregateInterval, filter ReadingFilter) ([]models.AggregateBucket, error) {
	width := interval.Duration()
	if width <= 0 {
		return nil, fmt.Errorf("unknown aggregate interval %q", interval)
	}

	c := readingConds(filter)
	widthArg := c.bind(int64(width.Seconds()))

	// floor(epoch / width) * width aligns buckets to epoch boundaries;
	// GROUP BY omits empty buckets by construction.
	query := fmt.Sprintf(`
		SELECT metric_name,
		       to_timestamp(floor(extract(epoch FROM recorded_at) / %[1]s) * %[1]s) AT TIME ZONE 'UTC' AS bucket_start,
		       count(*), avg(value), min(value), max(value),
		       coalesce(stddev_samp(value), 0)
		FROM sensor_readings%[2]s
		GROUP BY metric_name, bucket_start
		ORDER BY bucket_start ASC, metric_name ASC
	`, widthArg, c.where())

	rows, err := r.db.QueryContext(ctx, query, c.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregated readings: %w", err)
	}
	defer rows.Close()

	var buckets []models.AggregateBucket
	for rows.Next() {
		var b models.AggregateBucket
		if err := rows.Scan(&b.MetricName, &b.BucketStart, &b.Count, &b.Mean, &b.Min, &b.Max, &b.StdDev); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate row: %w", err)
		}
		b.BucketStart = b.BucketStart.UTC()
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating aggregate rows: %w", err)
	}
	return buckets, nil
}

// InsertAnomaly appends one anomaly record
func (r *PostgresTelemetryRepository) InsertAnomaly(ctx context.Context, record models.AnomalyRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO anomalies (
			detection_id, device_id, sensor_id, metric_name, algorithm,
			current_value, expected_value, deviation, score, severity,
			acknowledged, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.DetectionID, record.DeviceID, record.SensorID, record.MetricName,
		string(record.Algorithm), record.CurrentValue, record.ExpectedValue,
		record.Deviation, record.Score, string(record.Severity),
		record.Acknowledged, record.Timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateDetection
		}
		return fmt.Errorf("failed to insert anomaly: %w", err)
	}
	return nil
}

// QueryAnomalies returns anomaly records matching the filter, newest first
func (r *PostgresTelemetryRepository) QueryAnomalies(ctx context.Context, filter AnomalyFilter) ([]models.AnomalyRecord, error) {
	c := &condSet{}
	if filter.Start != nil {
		c.add("recorded_at >= %s", *filter.Start)
	}
	if filter.End != nil {
		c.add("recorded_at <= %s", *filter.End)
	}
	c.addIn("device_id", filter.DeviceIDs)
	if len(filter.Severities) > 0 {
		severities := make([]string, len(filter.Severities))
		for i, s := range filter.Severities {
			severities[i] = string(s)
		}
		c.addIn("severity", severities)
	}
	if filter.Acknowledged != nil {
		c.add("acknowledged = %s", *filter.Acknowledged)
	}

	query := fmt.Sprintf(`
		SELECT detection_id, device_id, sensor_id, metric_name, algorithm,
		       current_value, expected_value, deviation, score, severity,
		       acknowledged, recorded_at
		FROM anomalies%s
		ORDER BY recorded_at DESC
		LIMIT %s
	`, c.where(), c.bind(filter.EffectiveLimit()))

	rows, err := r.db.QueryContext(ctx, query, c.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer rows.Close()

	var records []models.AnomalyRecord
	for rows.Next() {
		var rec models.AnomalyRecord
		var algorithm, severity string
		err := rows.Scan(
			&rec.DetectionID, &rec.DeviceID, &rec.SensorID, &rec.MetricName,
			&algorithm, &rec.CurrentValue, &rec.ExpectedValue, &rec.Deviation,
			&rec.Score, &severity, &rec.Acknowledged, &rec.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan anomaly row: %w", err)
		}
		rec.Algorithm = models.Algorithm(algorithm)
		rec.Severity = models.Severity(severity)
		rec.Timestamp = rec.Timestamp.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating anomaly rows: %w", err)
	}
	return records, nil
}

// AcknowledgeAnomaly marks a record acknowledged
func (r *PostgresTelemetryRepository) AcknowledgeAnomaly(ctx context.Context, detectionID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE anomalies SET acknowledged = TRUE WHERE detection_id = $1`,
		detectionID,
	)
	if err != nil {
		return fmt.Errorf("failed to acknowledge anomaly: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAnomalyNotFound
	}
	return nil
}

// scanReadingRows scans database rows into SensorReading structs
func scanReadingRows(rows *sql.Rows) ([]models.SensorReading, error) {
	var results []models.SensorReading

	for rows.Next() {
		var reading models.SensorReading
		var unit sql.NullString
		var quality string
		var metadataJSON []byte

		err := rows.Scan(
			&reading.DeviceID, &reading.SensorID, &reading.MetricName,
			&reading.Value, &unit, &quality, &reading.Timestamp, &metadataJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading row: %w", err)
		}

		if unit.Valid {
			reading.Unit = unit.String
		}
		reading.Quality = models.ReadingQuality(quality)
		reading.Timestamp = reading.Timestamp.UTC()
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &reading.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal reading metadata: %w", err)
			}
		}

		results = append(results, reading)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reading rows: %w", err)
	}
	return results, nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint
// violation (SQLSTATE 23505)
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqlErr interface{ SQLState() string }
	if errors.As(err, &sqlErr) {
		return sqlErr.SQLState() == "23505"
	}
	return strings.Contains(err.Error(), "SQLSTATE 23505")
}
