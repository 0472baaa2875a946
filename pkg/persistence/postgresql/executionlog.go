package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/drishiq/ddsa/pkg/models"
	"github.com/drishiq/ddsa/pkg/persistence"
)

// ExecutionLogRepository handles execution-record database operations.
// Records are append-only; there is no update or delete path.
type ExecutionLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionLogRepository creates a new execution log repository.
func NewExecutionLogRepository(db *sql.DB, logger *slog.Logger) *ExecutionLogRepository {
	return &ExecutionLogRepository{db: db, logger: logger}
}

// Append durably writes one execution record.
func (r *ExecutionLogRepository) Append(ctx context.Context, record *models.StageExecutionRecord) error {
	if record.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate record ID: %w", err)
		}

		record.ID = id.String()
	}

	inputJSON, err := json.Marshal(record.InputData)
	if err != nil {
		return fmt.Errorf("failed to encode input data: %w", err)
	}

	outputJSON, err := json.Marshal(record.OutputData)
	if err != nil {
		return fmt.Errorf("failed to encode output data: %w", err)
	}

	query := `
		INSERT INTO stage_execution_records (
			id, thread_id, stage_id, started_at, status,
			duration_ms, tokens_in, tokens_out, cost_usd,
			retry_count, dry_run, input_data, output_data, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		record.ThreadID,
		record.StageID,
		record.StartedAt,
		string(record.Status),
		record.DurationMs,
		record.TokensIn,
		record.TokensOut,
		record.CostUSD,
		record.RetryCount,
		record.DryRun,
		inputJSON,
		outputJSON,
		record.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to append execution record for thread %s: %w", record.ThreadID, err)
	}

	return nil
}

// Query returns the records matching the filter in chronological order.
func (r *ExecutionLogRepository) Query(ctx context.Context, filter persistence.ExecutionFilter) ([]*models.StageExecutionRecord, error) {
	query := `
		SELECT
			id
		  , thread_id
		  , stage_id
		  , started_at
		  , status
		  , duration_ms
		  , tokens_in
		  , tokens_out
		  , cost_usd
		  , retry_count
		  , dry_run
		  , input_data
		  , output_data
		  , error_message
		FROM stage_execution_records
		WHERE 1 = 1
	`

	args := make([]any, 0, 4)

	if filter.ThreadID != "" {
		args = append(args, filter.ThreadID)
		query += " AND thread_id = $" + strconv.Itoa(len(args))
	} else if len(filter.ThreadIDs) > 0 {
		args = append(args, pq.Array(filter.ThreadIDs))
		query += " AND thread_id = ANY($" + strconv.Itoa(len(args)) + ")"
	}

	if filter.StageID != "" {
		args = append(args, filter.StageID)
		query += " AND stage_id = $" + strconv.Itoa(len(args))
	}

	if filter.From != nil {
		args = append(args, *filter.From)
		query += " AND started_at >= $" + strconv.Itoa(len(args))
	}

	if filter.To != nil {
		args = append(args, *filter.To)
		query += " AND started_at <= $" + strconv.Itoa(len(args))
	}

	query += " ORDER BY started_at ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution records: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	records := make([]*models.StageExecutionRecord, 0)

	for rows.Next() {
		record, err := scanExecutionRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution record: %w", err)
		}

		records = append(records, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating execution records: %w", err)
	}

	return records, nil
}

func scanExecutionRecord(row rowScanner) (*models.StageExecutionRecord, error) {
	var (
		record       models.StageExecutionRecord
		status       string
		inputJSON    []byte
		outputJSON   []byte
		errorMessage sql.NullString
	)

	err := row.Scan(
		&record.ID,
		&record.ThreadID,
		&record.StageID,
		&record.StartedAt,
		&status,
		&record.DurationMs,
		&record.TokensIn,
		&record.TokensOut,
		&record.CostUSD,
		&record.RetryCount,
		&record.DryRun,
		&inputJSON,
		&outputJSON,
		&errorMessage,
	)
	if err != nil {
		return nil, err
	}

	record.Status = models.StageStatus(status)

	if errorMessage.Valid {
		record.ErrorMessage = errorMessage.String
	}

	if len(inputJSON) > 0 {
		err = json.Unmarshal(inputJSON, &record.InputData)
		if err != nil {
			return nil, fmt.Errorf("failed to decode input data: %w", err)
		}
	}

	if len(outputJSON) > 0 {
		err = json.Unmarshal(outputJSON, &record.OutputData)
		if err != nil {
			return nil, fmt.Errorf("failed to decode output data: %w", err)
		}
	}

	return &record, nil
}
