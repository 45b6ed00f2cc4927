package common

import (
	"github.com/google/uuid"
)

// NewBatchID generates a unique orchestration batch ID with the "batch_" prefix
// Format: batch_<uuid>
func NewBatchID() string {
	return "batch_" + uuid.New().String()
}
