package runner

import (
	"context"

	"github.com/ShayCichocki/assetflow/pkg/models"
)

// Recorder persists run outcomes. Recording failures are logged and never
// change the outcome of a run.
type Recorder interface {
	StartRun(ctx context.Context, run *models.Run) error
	RecordTask(ctx context.Context, tr *models.TaskRun) error
	FinishRun(ctx context.Context, run *models.Run) error
}
