package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/drishiq/ddsa/pkg/models"
	"github.com/drishiq/ddsa/pkg/persistence"
)

// ExecutionLogRepository appends records to one JSON-lines file per thread.
// Files are only ever appended to, matching the append-only audit contract.
type ExecutionLogRepository struct {
	root string
}

// NewExecutionLogRepository creates a new execution log repository.
func NewExecutionLogRepository(root string) *ExecutionLogRepository {
	return &ExecutionLogRepository{root: root}
}

func (r *ExecutionLogRepository) dir() string {
	return filepath.Join(r.root, "executions")
}

func (r *ExecutionLogRepository) path(threadID string) string {
	return filepath.Join(r.dir(), threadID+".jsonl")
}

// Append durably writes one execution record.
func (r *ExecutionLogRepository) Append(_ context.Context, record *models.StageExecutionRecord) error {
	err := os.MkdirAll(r.dir(), 0o755)
	if err != nil {
		return fmt.Errorf("failed to create execution log directory: %w", err)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode execution record: %w", err)
	}

	f, err := os.OpenFile(r.path(record.ThreadID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open execution log for thread %s: %w", record.ThreadID, err)
	}

	_, err = f.Write(append(data, '\n'))
	if err != nil {
		_ = f.Close()

		return fmt.Errorf("failed to append execution record: %w", err)
	}

	err = f.Sync()
	if err != nil {
		_ = f.Close()

		return fmt.Errorf("failed to sync execution log: %w", err)
	}

	return f.Close()
}

// Query returns the records matching the filter in chronological order.
func (r *ExecutionLogRepository) Query(ctx context.Context, filter persistence.ExecutionFilter) ([]*models.StageExecutionRecord, error) {
	threadIDs, err := r.threadsInScope(filter)
	if err != nil {
		return nil, err
	}

	records := make([]*models.StageExecutionRecord, 0)

	for _, threadID := range threadIDs {
		threadRecords, err := r.readThread(threadID)
		if err != nil {
			return nil, err
		}

		for _, record := range threadRecords {
			if matches(record, filter) {
				records = append(records, record)
			}
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})

	return records, nil
}

func (r *ExecutionLogRepository) threadsInScope(filter persistence.ExecutionFilter) ([]string, error) {
	if filter.ThreadID != "" {
		return []string{filter.ThreadID}, nil
	}

	if len(filter.ThreadIDs) > 0 {
		return filter.ThreadIDs, nil
	}

	root := os.DirFS(r.dir())

	files, err := fs.Glob(root, "*.jsonl")
	if err != nil {
		return nil, fmt.Errorf("failed to list execution log files: %w", err)
	}

	threadIDs := make([]string, 0, len(files))
	for _, name := range files {
		threadIDs = append(threadIDs, name[:len(name)-6]) // Remove .jsonl extension
	}

	return threadIDs, nil
}

func (r *ExecutionLogRepository) readThread(threadID string) ([]*models.StageExecutionRecord, error) {
	f, err := os.Open(r.path(threadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to open execution log for thread %s: %w", threadID, err)
	}

	defer func() {
		_ = f.Close()
	}()

	records := make([]*models.StageExecutionRecord, 0)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record models.StageExecutionRecord

		err := json.Unmarshal(line, &record)
		if err != nil {
			return nil, fmt.Errorf("failed to decode execution record for thread %s: %w", threadID, err)
		}

		records = append(records, &record)
	}

	err = scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to read execution log for thread %s: %w", threadID, err)
	}

	return records, nil
}

func matches(record *models.StageExecutionRecord, filter persistence.ExecutionFilter) bool {
	if filter.StageID != "" && record.StageID != filter.StageID {
		return false
	}

	if filter.From != nil && record.StartedAt.Before(*filter.From) {
		return false
	}

	if filter.To != nil && record.StartedAt.After(*filter.To) {
		return false
	}

	return true
}
