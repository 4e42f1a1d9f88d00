package storage

import "positionscope/internal/model"

// Storage defines a sink for scan output.
type Storage interface {
	PutPositionBatch(positions []model.ValuedPosition) error
	PutSkippedBatch(skipped []model.SkippedPosition) error
}
