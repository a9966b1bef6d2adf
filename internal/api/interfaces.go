package api

import (
	"context"

	"github.com/triptide/collector/internal/pipeline"
)

// PipelineRunner runs one pipeline stage for a city.
type PipelineRunner interface {
	RunStage(ctx context.Context, city, stage string) error
}

// StatusProvider reports configured cities and stored data volumes.
type StatusProvider interface {
	Status() (pipeline.Status, error)
}
