package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"positionscope/internal/model"
)

// JsonlStorage writes scan output to JSONL files. Valued and skipped records
// land in the same file, distinguishable by shape.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// PutPositionBatch appends valued positions as JSON lines.
func (s *JsonlStorage) PutPositionBatch(positions []model.ValuedPosition) error {
	if len(positions) == 0 {
		return nil
	}
	lines := make([]interface{}, len(positions))
	for i := range positions {
		lines[i] = positions[i]
	}
	return s.appendLines(lines)
}

// PutSkippedBatch appends skipped positions as JSON lines.
func (s *JsonlStorage) PutSkippedBatch(skipped []model.SkippedPosition) error {
	if len(skipped) == 0 {
		return nil
	}
	lines := make([]interface{}, len(skipped))
	for i := range skipped {
		lines[i] = skipped[i]
	}
	return s.appendLines(lines)
}

func (s *JsonlStorage) appendLines(records []interface{}) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}
