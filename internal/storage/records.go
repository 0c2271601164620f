package storage

import (
	"context"
	"fmt"

	"github.com/KevinKickass/OpenTestBench/internal/types"
	"github.com/google/uuid"
)

const recordColumns = `
	id, instance_id, tag, batch_id, batch_name, module_class,
	product_model, serial_number, status, outcome,
	range_low, range_high,
	setpoint_ll, setpoint_l, setpoint_h, setpoint_hh,
	reading_0, reading_25, reading_50, reading_75, reading_100,
	observed_high, observed_low, error_detail,
	started_at, finished_at, created_at`

// SaveRecords persists a set of channel records in one transaction.
// Fields are sentinel-encoded first so no NaN reaches the database.
func (p *PostgresClient) SaveRecords(ctx context.Context, records []*ChannelRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, record := range records {
		if record.ID == "" {
			record.ID = uuid.New().String()
		}
		encodeRecord(record)

		_, err := tx.Exec(ctx, `
			INSERT INTO channel_records (
				id, instance_id, tag, batch_id, batch_name, module_class,
				product_model, serial_number, status, outcome,
				range_low, range_high,
				setpoint_ll, setpoint_l, setpoint_h, setpoint_hh,
				reading_0, reading_25, reading_50, reading_75, reading_100,
				observed_high, observed_low, error_detail,
				started_at, finished_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
				$11, $12, $13, $14, $15, $16,
				$17, $18, $19, $20, $21,
				$22, $23, $24, $25, $26
			)
		`, record.ID, record.InstanceID, record.Tag, record.BatchID, record.BatchName,
			string(record.ModuleClass), record.ProductModel, record.SerialNumber,
			record.Status, record.Outcome,
			record.RangeLow, record.RangeHigh,
			record.SetpointLL, record.SetpointL, record.SetpointH, record.SetpointHH,
			record.Reading0, record.Reading25, record.Reading50, record.Reading75, record.Reading100,
			record.ObservedHigh, record.ObservedLow, record.ErrorDetail,
			record.StartedAt, record.FinishedAt)
		if err != nil {
			return fmt.Errorf("failed to insert record for %s: %w", record.Tag, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// LoadRecordsByTag returns every stored run of one channel tag, newest
// first. Sentinels are decoded back to NaN.
func (p *PostgresClient) LoadRecordsByTag(ctx context.Context, tag string) ([]*ChannelRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM channel_records
		WHERE tag = $1
		ORDER BY created_at DESC
	`, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := make([]*ChannelRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// LoadRecordsByBatch returns every record of one batch.
func (p *PostgresClient) LoadRecordsByBatch(ctx context.Context, batchID string) ([]*ChannelRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM channel_records
		WHERE batch_id = $1
		ORDER BY tag, created_at DESC
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := make([]*ChannelRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// ListTags returns the distinct channel tags present in the store.
func (p *PostgresClient) ListTags(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT DISTINCT tag FROM channel_records ORDER BY tag
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	tags := make([]string, 0)
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}

	return tags, rows.Err()
}

// DeleteByTag removes every record of one channel tag and reports how
// many rows went away.
func (p *PostgresClient) DeleteByTag(ctx context.Context, tag string) (int64, error) {
	result, err := p.pool.Exec(ctx, `
		DELETE FROM channel_records WHERE tag = $1
	`, tag)
	if err != nil {
		return 0, fmt.Errorf("failed to delete records: %w", err)
	}
	return result.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*ChannelRecord, error) {
	var record ChannelRecord
	var class string

	err := row.Scan(
		&record.ID, &record.InstanceID, &record.Tag, &record.BatchID, &record.BatchName, &class,
		&record.ProductModel, &record.SerialNumber, &record.Status, &record.Outcome,
		&record.RangeLow, &record.RangeHigh,
		&record.SetpointLL, &record.SetpointL, &record.SetpointH, &record.SetpointHH,
		&record.Reading0, &record.Reading25, &record.Reading50, &record.Reading75, &record.Reading100,
		&record.ObservedHigh, &record.ObservedLow, &record.ErrorDetail,
		&record.StartedAt, &record.FinishedAt, &record.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}

	record.ModuleClass = types.ModuleClass(class)
	decodeRecord(&record)

	return &record, nil
}
