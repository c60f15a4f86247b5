// Package aicache stores the results of expensive AI processing runs
// over uploaded files so repeat requests do not re-invoke the provider.
// Results live in PostgreSQL keyed by (file, processing type) with a
// short-lived Redis front.
package aicache

import (
	"context"
	"fmt"
	"time"

	"github.com/studyable/studyhub/internal/apperr"
)

// ProcessingType names one kind of AI run over a file.
type ProcessingType string

const (
	ProcessingSummary ProcessingType = "summary"
	ProcessingMCQ     ProcessingType = "mcq_generation"
)

// ParseProcessingType validates a processing type received at the boundary.
func ParseProcessingType(s string) (ProcessingType, error) {
	switch p := ProcessingType(s); p {
	case ProcessingSummary, ProcessingMCQ:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown processing type %q", apperr.ErrValidation, s)
}

// Entry is one cached processing result.
type Entry struct {
	ID             int64          `json:"id"`
	PhysicalFileID int64          `json:"physical_file_id"`
	Type           ProcessingType `json:"processing_type"`
	ProviderFileID string         `json:"provider_file_id,omitempty"`
	Result         string         `json:"result"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Store persists cache entries. Put upserts on (file, type): a re-run
// of the same processing replaces the earlier result.
type Store interface {
	Put(ctx context.Context, e Entry) (Entry, error)
	Get(ctx context.Context, physicalFileID int64, typ ProcessingType) (Entry, error)
	DeleteForFile(ctx context.Context, physicalFileID int64) (int64, error)
}
