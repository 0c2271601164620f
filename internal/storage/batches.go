package storage

import (
	"context"
	"fmt"

	"github.com/KevinKickass/OpenTestBench/internal/types"
)

// SaveBatch upserts a batch record. Called when a batch is created and
// again when its run finishes.
func (p *PostgresClient) SaveBatch(ctx context.Context, batch types.TestBatch) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO test_batches (
			batch_id, name, status, total_count, tested_count,
			passed_count, failed_count, first_test_at, last_test_at,
			product_model, serial_number, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (batch_id) DO UPDATE SET
			status = EXCLUDED.status,
			tested_count = EXCLUDED.tested_count,
			passed_count = EXCLUDED.passed_count,
			failed_count = EXCLUDED.failed_count,
			first_test_at = EXCLUDED.first_test_at,
			last_test_at = EXCLUDED.last_test_at
	`, batch.BatchID, batch.Name, string(batch.Status), batch.TotalCount, batch.TestedCount,
		batch.PassedCount, batch.FailedCount, batch.FirstTestAt, batch.LastTestAt,
		batch.ProductModel, batch.SerialNumber, batch.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return nil
}

// ListBatches returns all stored batches, newest first.
func (p *PostgresClient) ListBatches(ctx context.Context) ([]types.TestBatch, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT batch_id, name, status, total_count, tested_count,
		       passed_count, failed_count, first_test_at, last_test_at,
		       product_model, serial_number, created_at
		FROM test_batches
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	batches := make([]types.TestBatch, 0)
	for rows.Next() {
		var batch types.TestBatch
		var status string
		if err := rows.Scan(
			&batch.BatchID, &batch.Name, &status, &batch.TotalCount, &batch.TestedCount,
			&batch.PassedCount, &batch.FailedCount, &batch.FirstTestAt, &batch.LastTestAt,
			&batch.ProductModel, &batch.SerialNumber, &batch.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batch.Status = types.BatchStatus(status)
		batches = append(batches, batch)
	}

	return batches, rows.Err()
}

// DeleteBatch removes a batch and its channel records.
func (p *PostgresClient) DeleteBatch(ctx context.Context, batchID string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM channel_records WHERE batch_id = $1`, batchID); err != nil {
		return fmt.Errorf("failed to delete batch records: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM test_batches WHERE batch_id = $1`, batchID); err != nil {
		return fmt.Errorf("failed to delete batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
